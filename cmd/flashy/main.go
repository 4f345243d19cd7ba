package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/flashy-edu/flashy/internal/app"
	"github.com/flashy-edu/flashy/internal/auth"
	"github.com/flashy-edu/flashy/internal/observability"
	"github.com/flashy-edu/flashy/internal/platform/cache"
	"github.com/flashy-edu/flashy/internal/platform/db"
	"github.com/flashy-edu/flashy/internal/platform/migration"
	"github.com/flashy-edu/flashy/internal/rbac"
	"github.com/flashy-edu/flashy/internal/roles"
	"github.com/flashy-edu/flashy/internal/shared"
	"github.com/flashy-edu/flashy/internal/users"
	"github.com/flashy-edu/flashy/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)
	if cfg.TestMode {
		logger.Info("test mode detected, skipping runtime startup")
		return
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("flashy exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	if cfg.AutoMigrate {
		if err := migration.RunUp(cfg.PGDSN, cfg.MigrationsDir, logger); err != nil {
			return err
		}
	}

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return err
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	issuer, err := auth.NewTokenIssuer(auth.IssuerConfig{
		Secret:     cfg.JWTSecret,
		Issuer:     cfg.JWTIssuer,
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
	})
	if err != nil {
		return err
	}
	logger.Info("role claims staleness window", slog.Duration("window", issuer.StalenessWindow()))

	roleStore, err := rbac.NewCachedStore(rbac.NewPGStore(dbpool), cfg.RoleCacheSize)
	if err != nil {
		return err
	}
	rbacMiddleware := rbac.Middleware{Verifier: issuer, Logger: logger, Observer: metrics}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		return err
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	var identity auth.IdentityProvider
	if cfg.GoogleSignInEnabled() {
		google, err := auth.NewGoogleProvider(auth.GoogleConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURI,
		})
		if err != nil {
			return err
		}
		identity = google
	}

	authService, err := auth.NewService(auth.ServiceConfig{
		Repo:         auth.NewRepository(dbpool),
		Roles:        roleStore,
		Issuer:       issuer,
		Revocations:  auth.NewRedisRevocationList(redisClient, cfg.RevocationPrefix),
		Notifier:     jobClient,
		Observer:     metrics,
		Logger:       logger,
		PasswordCost: cfg.PasswordCost,
		Identity:     identity,
	})
	if err != nil {
		return err
	}

	auditLogger := shared.NewAuditLogger(dbpool)
	usersRepo := users.NewRepository(dbpool)
	usersService := users.NewService(usersRepo, logger).WithAudit(auditLogger)
	profileService := users.NewProfileService(usersRepo, usersRepo, logger)
	rolesService := roles.NewService(roles.NewRepository(dbpool), roleStore, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		RBACMiddleware:     rbacMiddleware,
		AuthHandler:        auth.NewHandler(logger, authService, rbacMiddleware, cfg.LoginRateLimitPerMinute),
		UsersHandler:       users.NewHandler(logger, usersService, rbacMiddleware),
		ProfileHandler:     users.NewProfileHandler(logger, profileService, rbacMiddleware),
		AssignmentsHandler: rbac.NewAssignmentsHandler(logger, rbac.NewService(roleStore, logger).WithAudit(auditLogger), rbacMiddleware),
		RolesHandler:       roles.NewHandler(logger, rolesService, rbacMiddleware),
		JobHandler:         jobs.NewHandler(inspector, logger, rbacMiddleware),
		Metrics:            metrics,
		Readiness: []app.ReadinessCheck{
			{Name: "postgres", Check: dbpool.Ping},
			{Name: "redis", Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.AppShutdownGrace)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
