package domain_test

import (
	"testing"

	"github.com/aussiebroadwan/agencydesk/internal/auth/domain"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    domain.Role
		wantErr bool
	}{
		{"admin", domain.RoleAdmin, false},
		{"RH", domain.RoleRH, false},
		{" Comptable ", domain.RoleComptable, false},
		{"consultant", domain.RoleConsultant, false},
		{"superuser", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := domain.ParseRole(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, domain.ErrUnknownRole)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestRoles_Complete(t *testing.T) {
	rs := domain.Roles()
	require.Len(t, rs, 6)
	for _, r := range rs {
		require.True(t, r.Valid())
	}
	rs[0] = "mutated"
	require.Equal(t, domain.RoleAdmin, domain.Roles()[0])
}

func TestUserRef_String(t *testing.T) {
	ref := domain.UserRef{Role: domain.RoleManager, ID: "01HZX"}
	require.Equal(t, "manager:01HZX", ref.String())
	require.False(t, ref.IsZero())
	require.True(t, domain.UserRef{}.IsZero())
}

func TestNormalizeEmail(t *testing.T) {
	got, err := domain.NormalizeEmail("  Jane.Doe@Example.COM ")
	require.NoError(t, err)
	require.Equal(t, "jane.doe@example.com", got)

	for _, bad := range []string{"", "jane", "Jane <jane@example.com>", "@example.com"} {
		_, err := domain.NormalizeEmail(bad)
		require.ErrorIs(t, err, domain.ErrInvalidEmail, bad)
	}
}
