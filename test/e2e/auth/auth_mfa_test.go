package auth_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/aussiebroadwan/agencydesk/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

const (
	mfaEmail    = "rh@agency.example"
	mfaPassword = "Rh-password-123"
)

// enableMFA provisions an rh account and turns on the email second factor.
func enableMFA(t *testing.T, client *authsdk.SDKClient) {
	t.Helper()
	ctx := context.Background()

	admin := bootstrapAdmin(t, client)
	createUser(t, admin, "rh", mfaEmail, mfaPassword)

	session, err := client.Login(ctx, "rh", mfaEmail, mfaPassword)
	require.NoError(t, err, "Login without MFA should return a session")

	settings, err := session.UpdateMFASettings(ctx, authsdk.UpdateMFASettingsRequest{Enabled: true})
	require.NoError(t, err)
	require.True(t, settings.Enabled)
	require.Equal(t, mfaEmail, settings.Destination)
}

// TestMFALoginFlow logs in with an emailed code and checks the session.
func TestMFALoginFlow(t *testing.T) {
	baseURL, cleanup := setupAuthContainer(t)
	defer cleanup()

	client := authsdk.NewSDKClient(baseURL)
	ctx := t.Context()
	enableMFA(t, client)

	mfa := loginExpectingMFA(t, client, "rh", mfaEmail, mfaPassword)
	require.Equal(t, "email", mfa.Channel)
	require.Equal(t, "r***@agency.example", mfa.Destination)

	code, err := client.DevOutboxCode(ctx, mfaEmail)
	require.NoError(t, err)
	require.Len(t, code, 6)

	session, err := client.VerifyMFA(ctx, mfa.ChallengeID, code)
	require.NoError(t, err)

	me, err := session.Me(ctx)
	require.NoError(t, err)
	require.Equal(t, "rh", me.Role)
	require.Equal(t, mfaEmail, me.Email)
	require.Contains(t, me.AMR, "mfa")

	_, err = client.VerifyMFA(ctx, mfa.ChallengeID, code)
	require.ErrorIs(t, err, authsdk.ErrChallengeConsumed, "A code must not be usable twice")

	require.NoError(t, session.Logout(ctx))
}

// TestMFAAttemptLimit locks a challenge after repeated wrong codes.
func TestMFAAttemptLimit(t *testing.T) {
	baseURL, cleanup := setupAuthContainer(t)
	defer cleanup()

	client := authsdk.NewSDKClient(baseURL)
	ctx := t.Context()
	enableMFA(t, client)

	mfa := loginExpectingMFA(t, client, "rh", mfaEmail, mfaPassword)
	code, err := client.DevOutboxCode(ctx, mfaEmail)
	require.NoError(t, err)

	wrong := "000000"
	if code == wrong {
		wrong = "999999"
	}
	for range 2 {
		_, err = client.VerifyMFA(ctx, mfa.ChallengeID, wrong)
		require.ErrorIs(t, err, authsdk.ErrInvalidCode)
	}
	_, err = client.VerifyMFA(ctx, mfa.ChallengeID, wrong)
	require.ErrorIs(t, err, authsdk.ErrAttemptsExceeded)

	_, err = client.VerifyMFA(ctx, mfa.ChallengeID, code)
	require.ErrorIs(t, err, authsdk.ErrAttemptsExceeded, "The right code is refused once the limit is hit")
	assertStatus(t, err, http.StatusTooManyRequests)
}

// TestMFAResend issues a second code for the same login.
func TestMFAResend(t *testing.T) {
	baseURL, cleanup := setupAuthContainer(t)
	defer cleanup()

	client := authsdk.NewSDKClient(baseURL)
	ctx := t.Context()
	enableMFA(t, client)

	first := loginExpectingMFA(t, client, "rh", mfaEmail, mfaPassword)

	second, err := client.ResendMFA(ctx, first.ChallengeID)
	require.NoError(t, err)
	require.NotEqual(t, first.ChallengeID, second.ChallengeID)

	code, err := client.DevOutboxCode(ctx, mfaEmail)
	require.NoError(t, err)

	_, err = client.VerifyMFA(ctx, second.ChallengeID, code)
	require.NoError(t, err)
}
