package auth_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/aussiebroadwan/agencydesk/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

// TestRateLimitLoginEndpoint verifies that /v1/auth/login is rate limited
// per IP and email (strict limit: 5 req/min).
func TestRateLimitLoginEndpoint(t *testing.T) {
	baseURL, cleanup := setupAuthContainerWithDefaultRateLimits(t)
	defer cleanup()

	client := authsdk.NewSDKClient(baseURL)
	ctx := context.Background()

	for i := range 5 {
		_, err := client.Login(ctx, "client", "nobody@corp.example", "wrong-password")
		require.ErrorIs(t, err, authsdk.ErrInvalidCredentials, "request %d should fail authentication, not the limiter", i+1)
	}

	_, err := client.Login(ctx, "client", "nobody@corp.example", "wrong-password")
	assertStatus(t, err, http.StatusTooManyRequests)

	// Another email is counted separately.
	_, err = client.Login(ctx, "client", "somebody@corp.example", "wrong-password")
	require.ErrorIs(t, err, authsdk.ErrInvalidCredentials)
}

// TestRateLimitBootstrapEndpoint verifies the one-time setup endpoint cannot
// be used to guess the bootstrap token.
func TestRateLimitBootstrapEndpoint(t *testing.T) {
	baseURL, cleanup := setupAuthContainerWithDefaultRateLimits(t)
	defer cleanup()

	client := authsdk.NewSDKClient(baseURL)
	ctx := context.Background()

	req := authsdk.BootstrapRequest{
		AdminEmail:    adminEmail,
		AdminName:     adminName,
		AdminPassword: adminPassword,
	}
	for range 5 {
		_, err := client.Bootstrap(ctx, "wrong-token", req)
		assertStatus(t, err, http.StatusUnauthorized)
	}

	_, err := client.Bootstrap(ctx, "wrong-token", req)
	assertStatus(t, err, http.StatusTooManyRequests)
}
