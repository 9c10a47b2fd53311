package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/agencydesk/internal/auth/domain"
	"github.com/aussiebroadwan/agencydesk/internal/auth/metrics"
	"github.com/aussiebroadwan/agencydesk/internal/auth/notify"
	"github.com/aussiebroadwan/agencydesk/internal/auth/service"
	"github.com/aussiebroadwan/agencydesk/internal/auth/store"
	"github.com/aussiebroadwan/agencydesk/pkg/httpx"
	"github.com/aussiebroadwan/agencydesk/pkg/jwtx"
	"github.com/aussiebroadwan/agencydesk/pkg/slogx"

	_ "github.com/aussiebroadwan/agencydesk/api/auth" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	keys         *jwtx.KeyManager
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	limits       httpx.RateLimitProfiles

	store              store.Store
	Authenticator      *service.Authenticator
	SessionService     *service.SessionService
	ChallengeService   *service.ChallengeService
	MFASettingsService *service.MFASettingsService
	AccountService     *service.AccountService
	BootstrapService   *service.BootstrapService
	Metrics            *metrics.Metrics

	// DevOutbox is mounted at /v1/dev/outbox when set. Leave nil in
	// production.
	DevOutbox *notify.Outbox
}

func NewRouter(
	keys *jwtx.KeyManager,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
	limits httpx.RateLimitProfiles,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		keys:         keys,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
		limits:       limits,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerMFASettings()
	r.registerAccounts()
	r.registerBootstrap()
	r.registerSystem()
	r.registerDev()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			AgencyDesk Authentication Service API
//	@version		0.1.0
//	@description	Email and password login for the six account roles of AgencyDesk, with an optional emailed one-time code as second factor.
//	@description
//	@description				Session tokens are signed JWTs and can be verified using the JWKS endpoint.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/agencydesk
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Session token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// authenticated requires a live session; roles, when given, restrict the
// caller's role.
func (r *Router) authenticated(h http.Handler, limit httpx.RateLimitConfig, roles ...string) http.Handler {
	mws := []httpx.Middleware{httpx.AuthnMiddleware(r.keys.Verifier, r.SessionService)}
	if len(roles) > 0 {
		mws = append(mws, httpx.RequireRole(roles...))
	}
	mws = append(mws, httpx.RateLimitByUser(limit))
	return httpx.Chain(h, mws...)
}

func (r *Router) registerAuth() {
	h := &AuthHandler{
		Authenticator: r.Authenticator,
		Challenges:    r.ChallengeService,
		Sessions:      r.SessionService,
	}

	// Password guessing is limited per IP and per email.
	r.Mux.Handle("POST /v1/auth/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIPAndJSONField(r.limits.Strict, "email"),
		),
	)

	// Code submission and resends are limited per IP and per challenge, on
	// top of the attempt ceiling of the challenge itself.
	r.Mux.Handle("POST /v1/auth/mfa/verify",
		httpx.Chain(http.HandlerFunc(h.HandleVerify),
			httpx.RateLimitByIPAndJSONField(r.limits.Strict, "challenge_id"),
		),
	)
	r.Mux.Handle("POST /v1/auth/mfa/resend",
		httpx.Chain(http.HandlerFunc(h.HandleResend),
			httpx.RateLimitByIPAndJSONField(r.limits.Strict, "challenge_id"),
		),
	)

	r.Mux.Handle("GET /v1/auth/me", r.authenticated(http.HandlerFunc(h.HandleMe), r.limits.Moderate))
	r.Mux.Handle("POST /v1/auth/logout", r.authenticated(http.HandlerFunc(h.HandleLogout), r.limits.Moderate))
}

func (r *Router) registerMFASettings() {
	h := &MFASettingsHandler{Settings: r.MFASettingsService}

	r.Mux.Handle("GET /v1/auth/mfa/settings", r.authenticated(http.HandlerFunc(h.HandleGet), r.limits.Moderate))
	r.Mux.Handle("PUT /v1/auth/mfa/settings", r.authenticated(http.HandlerFunc(h.HandlePut), r.limits.Moderate))
}

func (r *Router) registerAccounts() {
	h := &AccountsHandler{Accounts: r.AccountService}

	r.Mux.Handle("POST /v1/auth/password",
		r.authenticated(http.HandlerFunc(h.HandleChangePassword), r.limits.Strict),
	)
	r.Mux.Handle("POST /v1/auth/accounts",
		r.authenticated(http.HandlerFunc(h.HandleCreate), r.limits.Moderate, domain.RoleAdmin.String()),
	)
}

func (r *Router) registerBootstrap() {
	// One-time setup endpoint.
	bootstrapHandler := &BootstrapHandler{BootstrapService: r.BootstrapService}
	r.Mux.Handle("POST /v1/bootstrap",
		httpx.Chain(bootstrapHandler,
			httpx.RateLimitByIP(r.limits.Strict),
		),
	)
}

func (r *Router) registerSystem() {
	h := &SystemHandler{
		Version:   r.buildVersion,
		StartTime: r.startTime,
		Store:     r.store,
		Keys:      r.keys,
	}

	// Monitoring systems may poll frequently.
	r.Mux.Handle("GET /livez",
		httpx.Chain(http.HandlerFunc(h.HandleLivez), httpx.RateLimitByIP(r.limits.Public)),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(http.HandlerFunc(h.HandleReadyz), httpx.RateLimitByIP(r.limits.Public)),
	)
	r.Mux.Handle("GET /.well-known/jwks.json",
		httpx.Chain(http.HandlerFunc(h.HandleJWKS), httpx.RateLimitByIP(r.limits.Public)),
	)
	r.Mux.Handle("GET /metrics", r.Metrics.Handler())
}

func (r *Router) registerDev() {
	if r.DevOutbox == nil {
		return
	}
	r.logger.Warn("dev outbox endpoint enabled; codes are readable over HTTP")
	r.Mux.Handle("GET /v1/dev/outbox",
		httpx.Chain(&DevOutboxHandler{Outbox: r.DevOutbox}, httpx.RateLimitByIP(r.limits.Public)),
	)
}
