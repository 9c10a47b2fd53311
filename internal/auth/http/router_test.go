package http

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/agencydesk/internal/auth/domain"
	"github.com/aussiebroadwan/agencydesk/internal/auth/metrics"
	"github.com/aussiebroadwan/agencydesk/internal/auth/notify"
	"github.com/aussiebroadwan/agencydesk/internal/auth/service"
	"github.com/aussiebroadwan/agencydesk/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/agencydesk/pkg/authsdk"
	"github.com/aussiebroadwan/agencydesk/pkg/cryptox"
	"github.com/aussiebroadwan/agencydesk/pkg/httpx"
	"github.com/aussiebroadwan/agencydesk/pkg/jwtx"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "authhttp")
	if err != nil {
		panic(err)
	}
	cryptox.SetPepperPath(filepath.Join(dir, "pepper"))

	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

const (
	testPassword   = "correct horse battery"
	bootstrapToken = "let-me-in"
)

type failingSender struct{}

func (failingSender) Send(context.Context, notify.Message) error {
	return fmt.Errorf("%w: relay unavailable", notify.ErrDeliveryFailed)
}

type testServer struct {
	*httptest.Server
	client   *authsdk.SDKClient
	accounts *service.AccountService
}

type serverOption func(*Router, *service.ChallengeService)

func withSender(s notify.Sender) serverOption {
	return func(r *Router, c *service.ChallengeService) {
		c.Sender = s
		r.DevOutbox = nil
	}
}

func generousLimits() httpx.RateLimitProfiles {
	l := httpx.RateLimitConfig{RequestsPerWindow: 1000, Window: time.Minute, Burst: 1000}
	return httpx.RateLimitProfiles{Strict: l, Moderate: l, Public: l}
}

func newTestServer(t *testing.T, limits httpx.RateLimitProfiles, opts ...serverOption) *testServer {
	t.Helper()

	st, err := sqlite.NewStore(sqlite.DSN(filepath.Join(t.TempDir(), "auth.db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	keys, err := jwtx.NewKeyManager(jwtx.KeyManagerOptions{
		Algorithm: jwtx.AlgorithmEdDSA,
		Issuer:    "agencydesk-test",
		Audience:  []string{"agencydesk"},
		NumKeys:   1,
	})
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	outbox := notify.NewOutbox()
	m := metrics.New()

	sessions := &service.SessionService{
		Store:      st,
		KeyManager: keys,
		Issuer:     "agencydesk-test",
		Audience:   []string{"agencydesk"},
		TTL:        time.Hour,
	}
	challenges := &service.ChallengeService{
		Store:    st,
		Sender:   outbox,
		Sessions: sessions,
		Metrics:  m,
		Policy:   service.MFAPolicy{CodeTTL: 10 * time.Minute, MaxAttempts: 3},
	}
	accounts := &service.AccountService{Store: st}

	r := NewRouter(keys, "test", st, logger, limits)
	r.Authenticator = &service.Authenticator{Store: st, Sessions: sessions, Challenges: challenges, Metrics: m}
	r.SessionService = sessions
	r.ChallengeService = challenges
	r.MFASettingsService = &service.MFASettingsService{Store: st}
	r.AccountService = accounts
	r.BootstrapService = &service.BootstrapService{Store: st, Accounts: accounts, Token: bootstrapToken}
	r.Metrics = m
	r.DevOutbox = outbox
	for _, opt := range opts {
		opt(r, challenges)
	}
	r.ApplyRoutes()

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &testServer{
		Server:   srv,
		client:   authsdk.NewSDKClient(srv.URL),
		accounts: accounts,
	}
}

func (s *testServer) createAccount(t *testing.T, role domain.Role, email string) domain.Account {
	t.Helper()
	a, err := s.accounts.Create(context.Background(), service.CreateAccountParams{
		Role:     role,
		Email:    email,
		Name:     "Test User",
		Password: testPassword,
	})
	require.NoError(t, err)
	return a
}

func (s *testServer) post(t *testing.T, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(s.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestRouter_Health(t *testing.T) {
	s := newTestServer(t, generousLimits())
	ctx := context.Background()

	live, err := s.client.GetLiveness(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", live.Status)
	require.Equal(t, "test", live.Version)

	ready, err := s.client.GetReadiness(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", ready.Status)
	require.NotNil(t, ready.Checks)
	require.Equal(t, "ok", ready.Checks.Database)
	require.Equal(t, "ok", ready.Checks.Signer)

	jwks, err := s.client.GetJWKS(ctx)
	require.NoError(t, err)
	require.Len(t, jwks.Keys, 1)
	require.Equal(t, "OKP", jwks.Keys[0].Kty)
}

func TestRouter_LoginWithoutMFA(t *testing.T) {
	s := newTestServer(t, generousLimits())
	ctx := context.Background()
	a := s.createAccount(t, domain.RoleClient, "ops@client.example")

	sess, err := s.client.Login(ctx, "client", "OPS@client.example", testPassword)
	require.NoError(t, err)
	require.Equal(t, "client", sess.Role())
	require.Equal(t, a.ID, sess.UserID())

	me, err := sess.Me(ctx)
	require.NoError(t, err)
	require.Equal(t, a.ID, me.UserID)
	require.Equal(t, "ops@client.example", me.Email)
	require.Equal(t, []string{jwtx.AMRPassword}, me.AMR)

	// Same email, wrong role table.
	_, err = s.client.Login(ctx, "manager", "ops@client.example", testPassword)
	require.ErrorIs(t, err, authsdk.ErrInvalidCredentials)

	_, err = s.client.Login(ctx, "client", "ops@client.example", "not the password")
	require.ErrorIs(t, err, authsdk.ErrInvalidCredentials)
}

func TestRouter_LoginValidation(t *testing.T) {
	s := newTestServer(t, generousLimits())

	resp := s.post(t, "/v1/auth/login", `{"role":"client","email":"nope","password":""}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), authsdk.ErrorCodeValidation)

	resp = s.post(t, "/v1/auth/login", `{"role":"client"`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRouter_MFALoginFlow(t *testing.T) {
	s := newTestServer(t, generousLimits())
	ctx := context.Background()
	s.createAccount(t, domain.RoleConsultant, "jane@agency.example")

	sess, err := s.client.Login(ctx, "consultant", "jane@agency.example", testPassword)
	require.NoError(t, err)

	_, err = sess.UpdateMFASettings(ctx, authsdk.UpdateMFASettingsRequest{Enabled: true})
	require.NoError(t, err)
	settings, err := sess.GetMFASettings(ctx)
	require.NoError(t, err)
	require.True(t, settings.Enabled)
	require.Equal(t, "email", settings.Channel)
	require.Equal(t, "jane@agency.example", settings.Destination)

	_, err = s.client.Login(ctx, "consultant", "jane@agency.example", testPassword)
	var mfa *authsdk.MFARequiredError
	require.ErrorAs(t, err, &mfa)
	require.NotEmpty(t, mfa.ChallengeID)
	require.Equal(t, "email", mfa.Channel)
	require.Equal(t, "j***@agency.example", mfa.Destination)
	require.Empty(t, mfa.Warning)

	code, err := s.client.DevOutboxCode(ctx, "jane@agency.example")
	require.NoError(t, err)
	require.Len(t, code, service.CodeLength)

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	_, err = s.client.VerifyMFA(ctx, mfa.ChallengeID, wrong)
	require.ErrorIs(t, err, authsdk.ErrInvalidCode)

	mfaSess, err := s.client.VerifyMFA(ctx, mfa.ChallengeID, code)
	require.NoError(t, err)

	me, err := mfaSess.Me(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{jwtx.AMRPassword, jwtx.AMROTP, jwtx.AMRMFA}, me.AMR)

	// The code is single use.
	_, err = s.client.VerifyMFA(ctx, mfa.ChallengeID, code)
	require.ErrorIs(t, err, authsdk.ErrChallengeConsumed)

	_, err = s.client.ResendMFA(ctx, mfa.ChallengeID)
	require.ErrorIs(t, err, authsdk.ErrChallengeConsumed)
}

func TestRouter_MFAAttemptLimit(t *testing.T) {
	s := newTestServer(t, generousLimits())
	ctx := context.Background()
	a := s.createAccount(t, domain.RoleRH, "hr@agency.example")

	sess, err := s.client.Login(ctx, "rh", a.Email, testPassword)
	require.NoError(t, err)
	_, err = sess.UpdateMFASettings(ctx, authsdk.UpdateMFASettingsRequest{Enabled: true})
	require.NoError(t, err)

	_, err = s.client.Login(ctx, "rh", a.Email, testPassword)
	var mfa *authsdk.MFARequiredError
	require.ErrorAs(t, err, &mfa)

	code, err := s.client.DevOutboxCode(ctx, a.Email)
	require.NoError(t, err)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	_, err = s.client.VerifyMFA(ctx, mfa.ChallengeID, wrong)
	require.ErrorIs(t, err, authsdk.ErrInvalidCode)
	_, err = s.client.VerifyMFA(ctx, mfa.ChallengeID, wrong)
	require.ErrorIs(t, err, authsdk.ErrInvalidCode)
	_, err = s.client.VerifyMFA(ctx, mfa.ChallengeID, wrong)
	require.ErrorIs(t, err, authsdk.ErrAttemptsExceeded)

	_, err = s.client.VerifyMFA(ctx, mfa.ChallengeID, code)
	require.ErrorIs(t, err, authsdk.ErrAttemptsExceeded)

	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)

	// A dead challenge cannot be revived for another round of guesses.
	_, err = s.client.ResendMFA(ctx, mfa.ChallengeID)
	require.ErrorIs(t, err, authsdk.ErrAttemptsExceeded)
}

func TestRouter_MFAResend(t *testing.T) {
	s := newTestServer(t, generousLimits())
	ctx := context.Background()
	a := s.createAccount(t, domain.RoleComptable, "books@agency.example")

	sess, err := s.client.Login(ctx, "comptable", a.Email, testPassword)
	require.NoError(t, err)
	_, err = sess.UpdateMFASettings(ctx, authsdk.UpdateMFASettingsRequest{
		Enabled:     true,
		Destination: "Second@Agency.example",
	})
	require.NoError(t, err)

	_, err = s.client.Login(ctx, "comptable", a.Email, testPassword)
	var first *authsdk.MFARequiredError
	require.ErrorAs(t, err, &first)
	require.Equal(t, "s***@agency.example", first.Destination)

	second, err := s.client.ResendMFA(ctx, first.ChallengeID)
	require.NoError(t, err)
	require.NotEqual(t, first.ChallengeID, second.ChallengeID)

	code, err := s.client.DevOutboxCode(ctx, "second@agency.example")
	require.NoError(t, err)
	_, err = s.client.VerifyMFA(ctx, second.ChallengeID, code)
	require.NoError(t, err)

	_, err = s.client.ResendMFA(ctx, "no-such-challenge")
	require.ErrorIs(t, err, authsdk.ErrChallengeNotFound)
}

func TestRouter_MFAResendLimit(t *testing.T) {
	s := newTestServer(t, generousLimits())
	ctx := context.Background()
	a := s.createAccount(t, domain.RoleManager, "lead@agency.example")

	sess, err := s.client.Login(ctx, "manager", a.Email, testPassword)
	require.NoError(t, err)
	_, err = sess.UpdateMFASettings(ctx, authsdk.UpdateMFASettingsRequest{Enabled: true})
	require.NoError(t, err)

	_, err = s.client.Login(ctx, "manager", a.Email, testPassword)
	var first *authsdk.MFARequiredError
	require.ErrorAs(t, err, &first)

	for range 3 {
		_, err = s.client.ResendMFA(ctx, first.ChallengeID)
		require.NoError(t, err)
	}
	_, err = s.client.ResendMFA(ctx, first.ChallengeID)
	require.ErrorIs(t, err, authsdk.ErrResendLimit)
	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)

	// A new sign-in starts a new chain.
	_, err = s.client.Login(ctx, "manager", a.Email, testPassword)
	var again *authsdk.MFARequiredError
	require.ErrorAs(t, err, &again)
	_, err = s.client.ResendMFA(ctx, again.ChallengeID)
	require.NoError(t, err)
}

func TestRouter_DeliveryFailureWarning(t *testing.T) {
	s := newTestServer(t, generousLimits(), withSender(failingSender{}))
	ctx := context.Background()
	a := s.createAccount(t, domain.RoleManager, "lead@agency.example")

	sess, err := s.client.Login(ctx, "manager", a.Email, testPassword)
	require.NoError(t, err)
	_, err = sess.UpdateMFASettings(ctx, authsdk.UpdateMFASettingsRequest{Enabled: true})
	require.NoError(t, err)

	_, err = s.client.Login(ctx, "manager", a.Email, testPassword)
	var mfa *authsdk.MFARequiredError
	require.ErrorAs(t, err, &mfa)
	require.Equal(t, authsdk.WarningDeliveryFailed, mfa.Warning)

	// Without the outbox the dev endpoint is not mounted.
	_, err = s.client.DevOutboxCode(ctx, a.Email)
	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestRouter_LogoutRevokesToken(t *testing.T) {
	s := newTestServer(t, generousLimits())
	ctx := context.Background()
	a := s.createAccount(t, domain.RoleClient, "client@corp.example")

	sess, err := s.client.Login(ctx, "client", a.Email, testPassword)
	require.NoError(t, err)
	token := sess.AccessToken()

	require.NoError(t, sess.Logout(ctx))
	_, err = sess.Me(ctx)
	require.ErrorIs(t, err, authsdk.ErrSessionClosed)

	// The signature is still valid but the session is gone.
	stale := s.client.NewSession(token, 3600)
	_, err = stale.Me(ctx)
	require.ErrorIs(t, err, authsdk.ErrInvalidToken)
}

func TestRouter_AccountsAndPassword(t *testing.T) {
	s := newTestServer(t, generousLimits())
	ctx := context.Background()

	_, err := s.client.Bootstrap(ctx, "wrong", authsdk.BootstrapRequest{
		AdminEmail:    "root@agency.example",
		AdminName:     "Root",
		AdminPassword: testPassword,
	})
	require.ErrorIs(t, err, authsdk.ErrBootstrapUnauthorized)

	boot, err := s.client.Bootstrap(ctx, bootstrapToken, authsdk.BootstrapRequest{
		AdminEmail:    "root@agency.example",
		AdminName:     "Root",
		AdminPassword: testPassword,
	})
	require.NoError(t, err)
	require.Equal(t, "admin", boot.Role)
	require.NotEmpty(t, boot.AdminID)

	_, err = s.client.Bootstrap(ctx, bootstrapToken, authsdk.BootstrapRequest{
		AdminEmail:    "other@agency.example",
		AdminName:     "Other",
		AdminPassword: testPassword,
	})
	require.ErrorIs(t, err, authsdk.ErrAlreadyBootstrapped)

	admin, err := s.client.Login(ctx, "admin", "root@agency.example", testPassword)
	require.NoError(t, err)

	created, err := admin.CreateAccount(ctx, authsdk.CreateAccountRequest{
		Role:     "consultant",
		Email:    "new@agency.example",
		Name:     "New Consultant",
		Password: testPassword,
	})
	require.NoError(t, err)
	require.Equal(t, "consultant", created.Role)

	_, err = admin.CreateAccount(ctx, authsdk.CreateAccountRequest{
		Role:     "consultant",
		Email:    "new@agency.example",
		Name:     "Duplicate",
		Password: testPassword,
	})
	require.ErrorIs(t, err, authsdk.ErrAccountExists)

	consultant, err := s.client.Login(ctx, "consultant", "new@agency.example", testPassword)
	require.NoError(t, err)

	_, err = consultant.CreateAccount(ctx, authsdk.CreateAccountRequest{
		Role:     "admin",
		Email:    "sneaky@agency.example",
		Name:     "Sneaky",
		Password: testPassword,
	})
	require.ErrorIs(t, err, authsdk.ErrAccessDenied)

	require.ErrorIs(t, consultant.ChangePassword(ctx, "not the password", "another long password"),
		authsdk.ErrInvalidCredentials)
	require.NoError(t, consultant.ChangePassword(ctx, testPassword, "another long password"))

	_, err = s.client.Login(ctx, "consultant", "new@agency.example", testPassword)
	require.ErrorIs(t, err, authsdk.ErrInvalidCredentials)
	_, err = s.client.Login(ctx, "consultant", "new@agency.example", "another long password")
	require.NoError(t, err)
}

func TestRouter_BootstrapDisabled(t *testing.T) {
	s := newTestServer(t, generousLimits(), func(r *Router, _ *service.ChallengeService) {
		r.BootstrapService.Token = ""
	})

	resp := s.post(t, "/v1/bootstrap", `{}`)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRouter_LoginRateLimit(t *testing.T) {
	limits := generousLimits()
	limits.Strict = httpx.RateLimitConfig{RequestsPerWindow: 2, Window: time.Minute, Burst: 2}
	s := newTestServer(t, limits)

	body := `{"role":"client","email":"x@corp.example","password":"wrong password"}`
	require.Equal(t, http.StatusUnauthorized, s.post(t, "/v1/auth/login", body).StatusCode)
	require.Equal(t, http.StatusUnauthorized, s.post(t, "/v1/auth/login", body).StatusCode)

	resp := s.post(t, "/v1/auth/login", body)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("Retry-After"))

	// A different email has its own bucket.
	other := `{"role":"client","email":"y@corp.example","password":"wrong password"}`
	require.Equal(t, http.StatusUnauthorized, s.post(t, "/v1/auth/login", other).StatusCode)
}

func TestRouter_Metrics(t *testing.T) {
	s := newTestServer(t, generousLimits())
	s.createAccount(t, domain.RoleClient, "m@corp.example")

	_, err := s.client.Login(context.Background(), "client", "m@corp.example", testPassword)
	require.NoError(t, err)

	resp, err := http.Get(s.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `agencydesk_auth_logins_total{outcome="success",role="client"} 1`)
}
