package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/agencydesk/internal/auth/domain"
)

func TestAccountService_Create(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a := h.createAccount(t, domain.RoleConsultant, "Nina@Example.com")
	require.Equal(t, "nina@example.com", a.Email)
	require.NotEqual(t, testPassword, a.PasswordHash)

	_, err := h.accounts.Create(ctx, CreateAccountParams{
		Role: domain.RoleConsultant, Email: "nina@example.com", Name: "Nina", Password: testPassword,
	})
	require.ErrorIs(t, err, ErrAccountExists)

	// Emails are unique per role table only.
	_, err = h.accounts.Create(ctx, CreateAccountParams{
		Role: domain.RoleManager, Email: "nina@example.com", Name: "Nina", Password: testPassword,
	})
	require.NoError(t, err)

	invalid := []CreateAccountParams{
		{Role: "intern", Email: "x@example.com", Name: "X", Password: testPassword},
		{Role: domain.RoleClient, Email: "not-an-email", Name: "X", Password: testPassword},
		{Role: domain.RoleClient, Email: "x@example.com", Name: "  ", Password: testPassword},
		{Role: domain.RoleClient, Email: "x@example.com", Name: "X", Password: "short"},
	}
	for _, p := range invalid {
		_, err := h.accounts.Create(ctx, p)
		require.ErrorIs(t, err, ErrInvalidRequest, "%+v", p)
	}
}

func TestAccountService_ChangePassword(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.createAccount(t, domain.RoleRH, "remy@example.com")

	err := h.accounts.ChangePassword(ctx, a.Ref(), "wrong password", "a brand new secret")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	err = h.accounts.ChangePassword(ctx, a.Ref(), testPassword, "short")
	require.ErrorIs(t, err, ErrInvalidRequest)

	require.NoError(t, h.accounts.ChangePassword(ctx, a.Ref(), testPassword, "a brand new secret"))

	_, err = h.auth.Login(ctx, domain.RoleRH, "remy@example.com", testPassword)
	require.ErrorIs(t, err, ErrInvalidCredentials)
	res, err := h.auth.Login(ctx, domain.RoleRH, "remy@example.com", "a brand new secret")
	require.NoError(t, err)
	require.NotNil(t, res.Token)
}

func TestMFASettingsService(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.createAccount(t, domain.RoleComptable, "cass@example.com")

	s, err := h.settings.Get(ctx, a.Ref())
	require.NoError(t, err)
	require.False(t, s.Enabled)
	require.Equal(t, "cass@example.com", s.Destination)

	s, err = h.settings.Enable(ctx, a.Ref(), "", "")
	require.NoError(t, err)
	require.True(t, s.Enabled)
	require.Equal(t, domain.ChannelEmail, s.Channel)
	require.Equal(t, "cass@example.com", s.Destination)
	firstID := s.ID

	s, err = h.settings.Enable(ctx, a.Ref(), domain.ChannelEmail, "Cass.Alt@Example.org")
	require.NoError(t, err)
	require.Equal(t, "cass.alt@example.org", s.Destination)
	require.Equal(t, firstID, s.ID)

	s, err = h.settings.Disable(ctx, a.Ref())
	require.NoError(t, err)
	require.False(t, s.Enabled)
	require.Equal(t, "cass.alt@example.org", s.Destination)

	_, err = h.settings.Enable(ctx, a.Ref(), domain.Channel("sms"), "")
	require.ErrorIs(t, err, ErrInvalidRequest)
	_, err = h.settings.Enable(ctx, a.Ref(), domain.ChannelEmail, "nope")
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestBootstrapService(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	svc := &BootstrapService{Store: h.store, Accounts: h.accounts, Token: "let-me-in"}

	done, err := svc.IsBootstrapped(ctx)
	require.NoError(t, err)
	require.False(t, done)

	data := domain.BootstrapData{AdminEmail: "root@example.com", AdminName: "Root", AdminPassword: testPassword}

	_, err = svc.Bootstrap(ctx, "wrong", data)
	require.ErrorIs(t, err, ErrBootstrapUnauthorized)

	admin, err := svc.Bootstrap(ctx, "let-me-in", data)
	require.NoError(t, err)
	require.Equal(t, domain.RoleAdmin, admin.Role)

	done, err = svc.IsBootstrapped(ctx)
	require.NoError(t, err)
	require.True(t, done)

	data.AdminEmail = "second@example.com"
	_, err = svc.Bootstrap(ctx, "let-me-in", data)
	require.ErrorIs(t, err, ErrBootstrapAlready)

	res, err := h.auth.Login(ctx, domain.RoleAdmin, "root@example.com", testPassword)
	require.NoError(t, err)
	require.NotNil(t, res.Token)
}
