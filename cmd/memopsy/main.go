package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/memopsy/memopsy/internal/app"
	"github.com/memopsy/memopsy/internal/auth"
	"github.com/memopsy/memopsy/internal/dashboard"
	"github.com/memopsy/memopsy/internal/gate"
	"github.com/memopsy/memopsy/internal/observability"
	"github.com/memopsy/memopsy/internal/platform/cache"
	"github.com/memopsy/memopsy/internal/platform/db"
	"github.com/memopsy/memopsy/internal/profiles"
	"github.com/memopsy/memopsy/internal/rbac"
	"github.com/memopsy/memopsy/internal/shared"
	"github.com/memopsy/memopsy/internal/users"
	"github.com/memopsy/memopsy/internal/view"
	"github.com/memopsy/memopsy/migrations"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	if cfg.DBAutoMigrate {
		applied, err := db.Migrate(migrations.FS, migrations.Dir, cfg.PGDSN)
		if err != nil {
			logger.Error("migrate database", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("database migrations checked", slog.Bool("applied", applied))
	}

	pools := db.NewProvider(func(ctx context.Context) (*pgxpool.Pool, error) {
		return db.New(ctx, cfg.PGDSN)
	})
	defer pools.Close()
	dbpool, err := pools.Get(ctx)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Warn("redis unavailable, login throttle will fail open", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	policy, err := gate.LoadPolicy(cfg.GatePolicyFile)
	if err != nil {
		logger.Error("load gate policy", slog.Any("error", err))
		os.Exit(1)
	}

	sessionManager := shared.NewSessionManager(cfg.SessionSecret, cfg.SessionTTL, cfg.SecureCookies())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	rbacRepo := rbac.NewRepository(dbpool)
	resolver := rbac.NewResolver(rbacRepo, logger)
	rbacMiddleware := rbac.Middleware{Authorize: shared.Check, Logger: logger}

	authService := auth.NewService(auth.Deps{
		Repo:     auth.NewRepository(dbpool),
		Resolver: resolver,
		Issuer:   sessionManager,
		Limiter:  auth.NewThrottle(redisClient, cfg.LoginMaxAttempts, cfg.LoginWindow),
		Audit:    auditLogger,
		Observer: metrics,
		Logger:   logger,
	})
	authHandler := auth.NewHandler(logger, authService, templates, sessionManager, csrfManager, auth.Paths{
		SignIn: policy.SignInPath,
		Home:   policy.HomePath,
	})

	usersHandler := users.NewHandler(logger, users.NewService(users.NewRepository(dbpool), auditLogger, logger))
	profilesHandler := profiles.NewHandler(logger, profiles.NewService(profiles.NewRepository(dbpool), auditLogger, logger), rbacMiddleware)
	permissionsHandler := rbac.NewPermissionsHandler(logger, rbac.NewCatalogService(rbacRepo), shared.Check)
	dashboardHandler := dashboard.NewHandler(logger, templates, csrfManager, dashboard.Paths{
		SignIn:       policy.SignInPath,
		Inactive:     policy.InactivePath,
		Unauthorized: policy.UnauthorizedPath,
	})

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Gate:               gate.New(policy, sessionManager, metrics, logger),
		CSRFManager:        csrfManager,
		AuthHandler:        authHandler,
		UsersHandler:       usersHandler,
		ProfilesHandler:    profilesHandler,
		PermissionsHandler: permissionsHandler,
		DashboardHandler:   dashboardHandler,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: cfg.AppReadTimeout,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
