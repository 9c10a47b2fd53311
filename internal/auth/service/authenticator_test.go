package service

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/agencydesk/internal/auth/domain"
	"github.com/aussiebroadwan/agencydesk/pkg/jwtx"
)

func scrapeMetrics(t *testing.T, h *harness) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestLogin_WithoutMFA(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.createAccount(t, domain.RoleConsultant, "cora@example.com")

	res, err := h.auth.Login(ctx, domain.RoleConsultant, "  Cora@Example.com ", testPassword)
	require.NoError(t, err)
	require.False(t, res.MFARequired())
	require.NotNil(t, res.Token)
	require.Equal(t, a.Ref(), res.Token.User)
	require.Equal(t, "Bearer", res.Token.TokenType)
	require.Equal(t, int(time.Hour.Seconds()), res.Token.ExpiresIn)

	claims, err := h.keys.Verifier.Verify(res.Token.Token)
	require.NoError(t, err)
	require.Equal(t, a.ID, claims.Subject)
	require.Equal(t, "consultant", claims.Role)
	require.Equal(t, res.Token.SessionID, claims.SID)
	require.Equal(t, []string{jwtx.AMRPassword}, claims.AMR)

	// No second factor means no challenge and nothing sent.
	require.Equal(t, 0, h.outbox.Sent())
	require.Contains(t, scrapeMetrics(t, h), `agencydesk_auth_logins_total{outcome="success",role="consultant"} 1`)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.createAccount(t, domain.RoleManager, "max@example.com")

	cases := []struct {
		name     string
		role     domain.Role
		email    string
		password string
	}{
		{"wrong password", domain.RoleManager, "max@example.com", "not the password"},
		{"unknown email", domain.RoleManager, "nobody@example.com", testPassword},
		{"other role table", domain.RoleComptable, "max@example.com", testPassword},
		{"empty password", domain.RoleManager, "max@example.com", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := h.auth.Login(ctx, tc.role, tc.email, tc.password)
			require.ErrorIs(t, err, ErrInvalidCredentials)
			require.Nil(t, res.Token)
			require.Nil(t, res.Challenge)
		})
	}

	_, err := h.auth.Login(ctx, domain.Role("intern"), "max@example.com", testPassword)
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestLogin_WithMFA(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	start := h.clock.Now()

	ch, code := h.loginWithMFA(t, domain.RoleRH, "rhea@example.com")
	require.Equal(t, domain.ChannelEmail, ch.Channel)
	require.Equal(t, "r***@example.com", ch.MaskedDestination)
	require.NoError(t, ch.DeliveryErr)
	require.Len(t, code, CodeLength)

	stored, err := h.store.MFAChallenges().GetMFAChallenge(ctx, ch.ID)
	require.NoError(t, err)
	require.Equal(t, 0, stored.Attempts)
	require.Nil(t, stored.ConsumedAt)
	require.True(t, stored.ExpiresAt.Equal(start.Add(10*time.Minute)))
	require.Equal(t, "r***@example.com", stored.Destination)
	require.NotContains(t, stored.CodeHash, code)
	require.True(t, stored.MatchesCode(code))

	require.Contains(t, scrapeMetrics(t, h), `agencydesk_auth_logins_total{outcome="mfa_required",role="rh"} 1`)
}

func TestLogin_DisabledMFAIssuesToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.createAccount(t, domain.RoleClient, "cleo@example.com")

	_, err := h.settings.Enable(ctx, a.Ref(), domain.ChannelEmail, "")
	require.NoError(t, err)
	_, err = h.settings.Disable(ctx, a.Ref())
	require.NoError(t, err)

	res, err := h.auth.Login(ctx, domain.RoleClient, "cleo@example.com", testPassword)
	require.NoError(t, err)
	require.NotNil(t, res.Token)
	require.Equal(t, 0, h.outbox.Sent())
}
