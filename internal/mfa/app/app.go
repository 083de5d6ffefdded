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

	httpapi "github.com/aussiebroadwan/phimfa/internal/mfa/http"
	"github.com/aussiebroadwan/phimfa/internal/mfa/metrics"
	"github.com/aussiebroadwan/phimfa/internal/mfa/service"
	"github.com/aussiebroadwan/phimfa/internal/mfa/store"
	"github.com/aussiebroadwan/phimfa/internal/mfa/store/drivers/postgres"
	"github.com/aussiebroadwan/phimfa/internal/mfa/store/drivers/sqlite"
	"github.com/aussiebroadwan/phimfa/pkg/cryptox"
	"github.com/aussiebroadwan/phimfa/pkg/idx"
	"github.com/aussiebroadwan/phimfa/pkg/jwtx"
	"github.com/aussiebroadwan/phimfa/pkg/slogx"
)

const (
	// BuildVersion is overridden at build time via ldflags.
	BuildVersion = "v0.1.0"
)

const startupTimeout = 30 * time.Second

// Application encapsulates the MFA service with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db      store.Store
	cipher  *cryptox.Cipher
	hasher  *cryptox.BackupCodeHasher
	metrics *metrics.Metrics

	audit               *service.AuditRecorder
	mfaService          *service.MFAService
	housekeepingService *service.HousekeepingService
	housekeepingStarted bool

	server *http.Server
	router *httpapi.Router
}

// New validates cfg and builds every dependency. Nothing is started.
func New(cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "mfa-service",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
		metrics: metrics.New(),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}
	if err := app.initCrypto(); err != nil {
		_ = app.db.Close()
		return nil, err
	}
	if err := app.initServices(); err != nil {
		_ = app.db.Close()
		return nil, err
	}
	if err := app.initHTTP(); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	return app, nil
}

// Handler returns the root HTTP handler.
func (app *Application) Handler() http.Handler { return app.router }

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start()
	app.housekeepingStarted = true

	app.logger.Info("mfa service starting",
		"port", app.cfg.Port,
		"version", BuildVersion,
		"driver", app.cfg.DatabaseDriver,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = app.Shutdown()
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

// Shutdown drains in-flight requests, stops housekeeping and closes the
// database. In-memory sessions and limiter state are discarded.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down mfa service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	if app.housekeepingStarted {
		app.housekeepingService.Stop()
		app.housekeepingStarted = false
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("mfa service stopped")
	return nil
}

// initDatabase opens the configured driver and applies migrations.
func (app *Application) initDatabase() error {
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	var (
		db  store.Store
		err error
	)
	switch app.cfg.DatabaseDriver {
	case DriverPostgres:
		db, err = postgres.NewStore(ctx, app.cfg.DatabaseDSN, postgres.PoolConfig{
			MaxConns: int32(app.cfg.DBMaxConns),
		})
	default:
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

	app.logger.Info("database migrations applied successfully", "driver", app.cfg.DatabaseDriver)
	return nil
}

// initCrypto loads the master key and pepper.
func (app *Application) initCrypto() error {
	keyMaterial, ephemeral, err := cryptox.LoadMasterKey(app.cfg.MasterKeyPath)
	if err != nil {
		return fmt.Errorf("failed to load master key: %w", err)
	}
	if ephemeral {
		if app.cfg.Env == "prod" {
			return errors.New("a master key is required in prod: set MFA_MASTER_KEY_PATH or MFA_MASTER_KEY")
		}
		app.logger.Warn("using an ephemeral master key, enrollments will not survive a restart")
	}

	app.cipher, err = cryptox.NewCipher(keyMaterial)
	if err != nil {
		return fmt.Errorf("failed to initialize cipher: %w", err)
	}

	pepper, err := cryptox.LoadOrCreatePepper(app.cfg.PepperFile)
	if err != nil {
		return fmt.Errorf("failed to load pepper: %w", err)
	}
	app.hasher, err = cryptox.NewBackupCodeHasher(pepper)
	if err != nil {
		return fmt.Errorf("failed to initialize backup code hasher: %w", err)
	}
	return nil
}

// initServices builds the MFA core.
func (app *Application) initServices() error {
	limiter, err := service.NewRateLimiter(app.cfg.MaxAttempts, app.cfg.CoolDown)
	if err != nil {
		return fmt.Errorf("failed to initialize rate limiter: %w", err)
	}
	sessions, err := service.NewSessionManager(app.cfg.StandardSessionDuration, app.cfg.ElevatedSessionDuration, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize session manager: %w", err)
	}

	sink := service.MultiAuditSink{
		service.LogAuditSink{Logger: app.logger},
		service.StoreAuditSink{Store: app.db},
	}
	app.audit = service.NewAuditRecorder(sink, app.logger, idx.NewGenerator(nil), app.cfg.AuditEscalationThreshold)

	app.mfaService = &service.MFAService{
		Store:                     app.db,
		Engine:                    app.cfg.engine(),
		Cipher:                    app.cipher,
		BackupCodes:               service.NewBackupCodeStore(app.db, app.hasher),
		Limiter:                   limiter,
		Sessions:                  sessions,
		Audit:                     app.audit,
		Observer:                  app.metrics,
		BackupCodeCount:           app.cfg.BackupCodeCount,
		QRCodeSize:                app.cfg.QRCodeSize,
		AllowBackupBeforeVerified: app.cfg.AllowBackupBeforeVerified,
	}

	app.housekeepingService = service.NewHousekeepingService(
		sessions,
		limiter,
		app.logger,
		app.cfg.SweepInterval,
	)
	app.housekeepingService.Observer = app.metrics
	return nil
}

// initHTTP builds the caller-token verifier, router and server.
func (app *Application) initHTTP() error {
	verifier, err := jwtx.NewVerifierHS256([]byte(app.cfg.CallerTokenSecret), jwtx.VerifyOptions{
		Issuer:   app.cfg.CallerTokenIssuer,
		Audience: app.cfg.CallerTokenAudience,
		Leeway:   app.cfg.CallerTokenLeeway,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize token verifier: %w", err)
	}

	router := httpapi.NewRouter(verifier, BuildVersion, app.db, app.mfaService, app.metrics, app.logger)
	router.ApplyRoutes()
	app.router = router

	for _, l := range router.Limiters() {
		app.housekeepingService.Pruners = append(app.housekeepingService.Pruners, l)
	}

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
	return nil
}
