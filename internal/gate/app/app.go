package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aussiebroadwan/gate/internal/gate/guard"
	httpapi "github.com/aussiebroadwan/gate/internal/gate/http"
	"github.com/aussiebroadwan/gate/internal/gate/relay"
	"github.com/aussiebroadwan/gate/internal/gate/service"
	"github.com/aussiebroadwan/gate/internal/gate/store"
	"github.com/aussiebroadwan/gate/internal/gate/store/drivers/postgres"
	"github.com/aussiebroadwan/gate/internal/gate/store/drivers/sqlite"
	"github.com/aussiebroadwan/gate/pkg/cryptox"
	"github.com/aussiebroadwan/gate/pkg/httpx"
	"github.com/aussiebroadwan/gate/pkg/limiter"
	"github.com/aussiebroadwan/gate/pkg/mailx"
	"github.com/aussiebroadwan/gate/pkg/passwordx"
	"github.com/aussiebroadwan/gate/pkg/slogx"
)

// BuildVersion is stamped at build time:
//
//	go build -ldflags "-X github.com/aussiebroadwan/gate/internal/gate/app.BuildVersion=v1.2.3"
var BuildVersion = "v0.1.0"

var ErrNoDatabaseURL = errors.New("app: DATABASE_URL is required when DB_DRIVER is postgres")

// Application owns the gate service and everything it depends on.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db      store.Store
	redis   *redis.Client // nil when counters are in memory
	limiter limiter.Limiter
	guard   *guard.Guard
	relay   *relay.Relay

	tokenService        *service.TokenService
	authService         *service.AuthService
	inviteService       *service.InviteService
	housekeepingService *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

// New builds an Application. Connections are released again when a later
// step fails.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "gate",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	cryptox.SetPepperPath(cfg.PepperFile)
	if err := cryptox.LoadPepper(); err != nil {
		return nil, fmt.Errorf("failed to load pepper: %w", err)
	}

	ctx := context.Background()
	if err := app.initDatabase(ctx); err != nil {
		return nil, err
	}
	if err := app.initLimiter(ctx); err != nil {
		app.closeResources()
		return nil, err
	}
	if err := app.initGuard(); err != nil {
		app.closeResources()
		return nil, err
	}
	if err := app.initRelay(); err != nil {
		app.closeResources()
		return nil, err
	}

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Handler exposes the routed handler, mainly for tests.
func (app *Application) Handler() http.Handler { return app.router }

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("gate starting",
		"port", app.cfg.Port,
		"version", BuildVersion,
		"db_driver", app.cfg.DBDriver,
		"relay_cookies", app.relay.Available(),
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.housekeepingService.Stop()
			app.closeResources()
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

// Shutdown drains in-flight requests, then stops housekeeping and closes the
// limiter and the store.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down gate...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.closeResources(); err != nil {
		return err
	}

	app.logger.Info("gate stopped")
	return nil
}

func (app *Application) closeResources() error {
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis", "error", err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database", "error", err)
			return err
		}
	}
	return nil
}

// initDatabase opens the configured driver and applies migrations
func (app *Application) initDatabase(ctx context.Context) error {
	var (
		db  store.Store
		err error
	)
	switch app.cfg.DBDriver {
	case "postgres":
		if app.cfg.DatabaseURL == "" {
			return ErrNoDatabaseURL
		}
		db, err = postgres.NewStore(ctx, app.cfg.DatabaseURL, app.logger)
	case "sqlite", "":
		db, err = sqlite.NewStore(sqlite.DSN(app.cfg.DatabaseFile))
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", app.cfg.DBDriver)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		app.db = nil
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully", "driver", app.cfg.DBDriver)
	return nil
}

func (app *Application) initLimiter(ctx context.Context) error {
	if app.cfg.RedisAddr == "" {
		app.limiter = limiter.NewMemory()
		app.logger.Info("attempt counters kept in memory")
		return nil
	}

	client, err := limiter.NewRedisClient(ctx, limiter.RedisConfig{
		Addr:     app.cfg.RedisAddr,
		Password: app.cfg.RedisPassword,
		DB:       app.cfg.RedisDB,
	}, app.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize limiter: %w", err)
	}
	app.redis = client
	app.limiter = limiter.NewRedis(client)
	app.logger.Info("attempt counters kept in redis", "addr", app.cfg.RedisAddr)
	return nil
}

func (app *Application) initGuard() error {
	secret := []byte(app.cfg.SessionSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return fmt.Errorf("failed to generate session secret: %w", err)
		}
		app.logger.Warn("SESSION_SECRET not set; sessions will not survive a restart")
	}
	if !app.cfg.CookieSecure {
		app.logger.Warn("COOKIE_SECURE disabled; cookies will be sent over plain http")
	}

	g, err := guard.New(guard.Config{
		Secret: secret,
		MaxAge: app.cfg.SessionMaxAge,
		Secure: app.cfg.CookieSecure,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize session guard: %w", err)
	}
	app.guard = g
	return nil
}

func (app *Application) initRelay() error {
	var key []byte
	if app.cfg.CookiesKeyFile != "" {
		k, err := cryptox.LoadSealKey(app.cfg.CookiesKeyFile)
		if err != nil {
			return fmt.Errorf("failed to load cookie pool key: %w", err)
		}
		key = k
	}

	pool, err := relay.LoadPool(app.cfg.CookiesJSON, app.cfg.CookiesFile, key)
	if err != nil {
		return fmt.Errorf("failed to load cookie pool: %w", err)
	}
	if pool.Len() == 0 {
		app.logger.Warn("no upstream cookies configured; relay actions will fail")
	}
	app.relay = relay.New(pool, relay.Config{
		Timeout:     app.cfg.RelayTimeout,
		Concurrency: app.cfg.RelayConcurrency,
	})
	return nil
}

func (app *Application) initServices() {
	app.tokenService = &service.TokenService{
		Store: app.db,
		TTL:   app.cfg.APITokenTTL,
	}
	app.inviteService = &service.InviteService{
		Store:  app.db,
		Prefix: app.cfg.InviteKeyPrefix,
	}

	policy := passwordx.DefaultPolicy()
	policy.RequireSymbol = app.cfg.PasswordRequireSymbol

	var breach passwordx.BreachChecker = passwordx.NopChecker{}
	if app.cfg.HIBPEnabled {
		breach = passwordx.NewPwnedClient(
			passwordx.WithEndpoint(app.cfg.HIBPEndpoint),
			passwordx.WithTimeout(app.cfg.HIBPTimeout),
		)
	}

	var mailer mailx.Mailer = mailx.LogMailer{Logger: app.logger}
	if app.cfg.SMTPHost != "" {
		mailer = mailx.NewSMTPMailer(mailx.SMTPConfig{
			Host:     app.cfg.SMTPHost,
			Port:     app.cfg.SMTPPort,
			Username: app.cfg.SMTPUsername,
			Password: app.cfg.SMTPPassword,
			From:     app.cfg.SMTPFrom,
			FromName: "Gate",
		})
	} else {
		app.logger.Warn("SMTP_HOST not set; password reset mail will only be logged")
	}

	app.authService = &service.AuthService{
		Store:   app.db,
		Tokens:  app.tokenService,
		Limiter: app.limiter,
		Breach:  breach,
		Policy:  policy,
		Mailer:  mailer,
		LoginLimit: service.AttemptLimit{
			Max:    app.cfg.LoginMaxAttempts,
			Window: app.cfg.LoginLockout,
		},
		RegisterLimit: service.AttemptLimit{
			Max:    app.cfg.RegisterMaxAttempts,
			Window: app.cfg.RegisterLockout,
		},
		ResetTTL: app.cfg.ResetTokenTTL,
		ResetURL: app.cfg.ResetURL,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.limiter,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		BuildVersion,
		app.db,
		app.limiter,
		httpx.NewOriginPolicy(app.cfg.AllowedOrigins...),
		app.logger,
	)

	router.TrustProxy = app.cfg.TrustProxyHeaders
	router.APIPassword = app.cfg.APIPassword
	router.Guard = app.guard
	router.AuthService = app.authService
	router.TokenService = app.tokenService
	router.InviteService = app.inviteService
	router.Relay = app.relay
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
