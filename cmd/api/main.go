package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/helpdesk-service/internal/api/http"
	"github.com/spec-kit/helpdesk-service/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/persistence"
	"github.com/spec-kit/helpdesk-service/internal/policy"
	"github.com/spec-kit/helpdesk-service/internal/realtime"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/service"
	"github.com/spec-kit/helpdesk-service/internal/storage"
	"github.com/spec-kit/helpdesk-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App.Env)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	var store repository.Store
	if pg.Enabled() {
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		store = repository.NewPostgresStore(pg.PoolHandle())
	} else {
		store = repository.NewMemoryStore()
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	hub := realtime.NewHub(logger, metrics)
	if cfg.Realtime.RelayEnabled && redis.Enabled() {
		relay := realtime.NewRedisRelay(redis.Client, cfg.Realtime.RelayChannel, logger)
		hub.SetForwarder(relay)
		go func() {
			if err := relay.Run(ctx, hub); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("realtime relay stopped", zap.Error(err))
			}
		}()
	}
	go hub.Run(ctx)

	dispatcher := events.NewInMemoryDispatcher(logger)
	broadcaster := realtime.NewBroadcaster(hub, logger)
	worker.StartRealtimeWorker(dispatcher, broadcaster)
	worker.StartNotificationWorker(service.NewNotificationService(dispatcher, logger, cfg.Notification))

	mode, err := policy.ParseAssignmentMode(cfg.Policy.Assignment)
	if err != nil {
		logger.Fatal("invalid assignment policy", zap.Error(err))
	}
	pol := policy.New(mode)

	ticketService := service.NewTicketService(service.TicketDependencies{
		Store:        store,
		Policy:       pol,
		Dispatcher:   dispatcher,
		Metrics:         metrics,
		Logger:       logger,
		StoreTimeout: cfg.Store.Timeout,
	})
	dashboardService := service.NewDashboardService(store, pol, logger, cfg.Store.Timeout)
	userService := service.NewUserService(store, pol, logger, cfg.Store.Timeout)
	authService := service.NewAuthService(cfg.Auth, store.Users(), logger)
	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), store.Users(), cfg.Auth.CookieName)

	blobs, err := storage.NewLocalBlobStore(cfg.Upload.Dir, cfg.Upload.BaseURL, cfg.Upload.MaxBytes, logger)
	if err != nil {
		logger.Fatal("failed to prepare upload dir", zap.Error(err))
	}

	validate := validator.New()

	deps := []handlers.Dependency{{Name: "store", Pinger: store}}
	if pg.Enabled() {
		deps = append(deps, handlers.Dependency{Name: "postgres", Pinger: pg})
	}
	if redis.Enabled() {
		deps = append(deps, handlers.Dependency{Name: "redis", Pinger: redis})
	}

	app := fiber.New(fiber.Config{
		AppName:   cfg.App.Name,
		BodyLimit: int(cfg.Upload.MaxBytes) + 1<<20,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	uploadPrefix := ""
	if strings.HasPrefix(cfg.Upload.BaseURL, "/") {
		uploadPrefix = cfg.Upload.BaseURL
	}

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:    handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, hub.ConnectionCount, deps...),
		Users:     handlers.NewUsersHandler(authService, userService, validate, cfg.Auth.CookieName, cfg.App.Env == "production"),
		Tickets:   handlers.NewTicketsHandler(ticketService, blobs, validate, cfg.Upload.MaxBytes),
		Dashboard: handlers.NewDashboardHandler(dashboardService),
		WS: handlers.NewWSHandler(ctx, hub, authMiddleware, ticketService.AuthorizeRoom, realtime.ClientConfig{
			SendBuffer:     cfg.Realtime.SendBuffer,
			WriteWait:      cfg.Realtime.WriteWait,
			PongWait:       cfg.Realtime.PongWait,
			PingPeriod:     cfg.Realtime.PingPeriod,
			MaxMessageSize: cfg.Realtime.MaxMessageSize,
		}, logger),
		AuthMiddleware:  authMiddleware,
		CreateLimiter:   httptransport.RateLimiter("tickets", cfg.RateLimit.TicketCreateMax, cfg.RateLimit.TicketCreateWindow, "too many tickets, slow down"),
		LoginLimiter:    httptransport.RateLimiter("login", cfg.RateLimit.LoginMax, cfg.RateLimit.LoginWindow, "too many login attempts, wait a moment"),
		RegisterLimiter: httptransport.RateLimiter("register", cfg.RateLimit.RegisterMax, cfg.RateLimit.RegisterWindow, "too many registrations, wait a moment"),
		Metrics:         metrics.Handler(),
		UploadDir:       blobs.Dir(),
		UploadPrefix:    uploadPrefix,
	})

	refresher, err := worker.NewDashboardRefresher(cfg.Dashboard.RefreshSpec, broadcaster, metrics, logger)
	if err != nil {
		logger.Fatal("failed to schedule dashboard refresh", zap.Error(err))
	}
	refresher.Start(ctx)

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	refresher.Stop()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
