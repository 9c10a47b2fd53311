package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/aussiebroadwan/agencydesk/internal/auth/http"
	"github.com/aussiebroadwan/agencydesk/internal/auth/metrics"
	"github.com/aussiebroadwan/agencydesk/internal/auth/notify"
	"github.com/aussiebroadwan/agencydesk/internal/auth/service"
	"github.com/aussiebroadwan/agencydesk/internal/auth/store"
	"github.com/aussiebroadwan/agencydesk/internal/auth/store/drivers/postgres"
	"github.com/aussiebroadwan/agencydesk/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/agencydesk/pkg/cryptox"
	"github.com/aussiebroadwan/agencydesk/pkg/jwtx"
	"github.com/aussiebroadwan/agencydesk/pkg/slogx"
)

// BuildVersion is overridden at build time with
// -ldflags "-X github.com/aussiebroadwan/agencydesk/internal/auth/app.BuildVersion=...".
var BuildVersion = "v0.1.0"

// Application encapsulates the auth service application with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db         store.Store
	keyManager *jwtx.KeyManager
	sender     notify.Sender
	outbox     *notify.Outbox // nil unless MAIL_OUTBOX
	metrics    *metrics.Metrics

	// Services
	sessionService      *service.SessionService
	challengeService    *service.ChallengeService
	authenticator       *service.Authenticator
	mfaSettingsService  *service.MFASettingsService
	accountService      *service.AccountService
	bootstrapService    *service.BootstrapService
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "auth-service",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
		metrics: metrics.New(),
	}

	cryptox.SetPepperPath(app.cfg.PepperFile)

	if err := app.initDatabase(context.Background()); err != nil {
		return nil, err
	}

	keyManager, err := InitAuthKeys(app.cfg, app.logger)
	if err != nil {
		_ = app.db.Close()
		return nil, fmt.Errorf("failed to initialize JWT keys: %w", err)
	}
	app.keyManager = keyManager

	app.initSender()
	app.initServices()
	app.initHTTP()

	return app, nil
}

// Handler exposes the routed HTTP handler, mainly for tests.
func (app *Application) Handler() http.Handler { return app.router }

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("auth service starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		app.housekeepingService.Stop()
		_ = app.db.Close()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down auth service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGrace)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("auth service stopped")
	return nil
}

// initDatabase opens postgres when AUTH_DATABASE_URL is set, the SQLite file
// otherwise, and applies migrations.
func (app *Application) initDatabase(ctx context.Context) error {
	var (
		db     store.Store
		err    error
		driver string
	)
	if app.cfg.DatabaseURL != "" {
		driver = "postgres"
		connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		db, err = postgres.NewStore(connectCtx, app.cfg.DatabaseURL)
	} else {
		driver = "sqlite"
		db, err = sqlite.NewStore(sqlite.DSN(app.cfg.DatabaseFile))
	}
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully", "driver", driver)
	return nil
}

// initSender picks the in-memory outbox or the SMTP relay. Config validation
// already refused the outbox in prod.
func (app *Application) initSender() {
	if app.cfg.MailOutbox {
		app.outbox = notify.NewOutbox()
		app.sender = app.outbox
		app.logger.Warn("one-time codes are kept in memory and not emailed", "env", app.cfg.Env)
		return
	}

	app.sender = &notify.SMTPSender{
		Addr:     app.cfg.SMTPAddr,
		From:     app.cfg.SMTPFrom,
		Username: app.cfg.SMTPUsername,
		Password: app.cfg.SMTPPassword,
		Timeout:  app.cfg.SMTPTimeout,
	}
	app.logger.Info("one-time codes are delivered by smtp", "addr", app.cfg.SMTPAddr)
}

// initServices initializes all business logic services
func (app *Application) initServices() {
	app.sessionService = &service.SessionService{
		Store:      app.db,
		KeyManager: app.keyManager,
		Issuer:     app.cfg.Issuer,
		Audience:   app.cfg.AudienceList(),
		TTL:        app.cfg.SessionTTL,
	}
	app.challengeService = &service.ChallengeService{
		Store:    app.db,
		Sender:   app.sender,
		Sessions: app.sessionService,
		Metrics:  app.metrics,
		Policy: service.MFAPolicy{
			CodeTTL:      app.cfg.MFACodeTTL,
			MaxAttempts:  app.cfg.MFAMaxAttempts,
			MaxResends:   app.cfg.MFAMaxResends,
			ResendWindow: app.cfg.MFAResendWindow,
		},
	}
	app.authenticator = &service.Authenticator{
		Store:      app.db,
		Sessions:   app.sessionService,
		Challenges: app.challengeService,
		Metrics:    app.metrics,
	}
	app.mfaSettingsService = &service.MFASettingsService{Store: app.db}
	app.accountService = &service.AccountService{Store: app.db}
	app.bootstrapService = &service.BootstrapService{
		Store:    app.db,
		Accounts: app.accountService,
		Token:    app.cfg.BootstrapToken,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.Housekeeping,
	)
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.keyManager,
		BuildVersion,
		app.db,
		app.logger,
		app.cfg.RateLimits(),
	)

	router.Authenticator = app.authenticator
	router.SessionService = app.sessionService
	router.ChallengeService = app.challengeService
	router.MFASettingsService = app.mfaSettingsService
	router.AccountService = app.accountService
	router.BootstrapService = app.bootstrapService
	router.Metrics = app.metrics
	router.DevOutbox = app.outbox // nil unless MAIL_OUTBOX
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
