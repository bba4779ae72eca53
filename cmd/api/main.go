package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/support-chat-service/internal/api/http"
	"github.com/spec-kit/support-chat-service/internal/api/http/handlers"
	"github.com/spec-kit/support-chat-service/internal/auth"
	"github.com/spec-kit/support-chat-service/internal/config"
	"github.com/spec-kit/support-chat-service/internal/events"
	"github.com/spec-kit/support-chat-service/internal/observability"
	"github.com/spec-kit/support-chat-service/internal/persistence"
	"github.com/spec-kit/support-chat-service/internal/repository"
	"github.com/spec-kit/support-chat-service/internal/service"
	"github.com/spec-kit/support-chat-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations && pg.PoolHandle() != nil {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()
	presence := persistence.NewPresenceCache(redis, cfg.Chat.PresenceTTL())

	var (
		sessionRepo repository.SessionRepository
		messageRepo repository.MessageRepository
		agentRepo   repository.AgentRepository
	)
	if pool := pg.PoolHandle(); pool != nil {
		sessionRepo = repository.NewSessionRepository(pool)
		messageRepo = repository.NewMessageRepository(pool)
		agentRepo = repository.NewAgentRepository(pool)
	} else {
		logger.Warn("running with in-memory repositories; state is not durable")
		sessionRepo = repository.NewMemorySessionRepository()
		messageRepo = repository.NewMemoryMessageRepository()
		agentRepo = repository.NewMemoryAgentRepository()
	}

	dispatcher := events.NewInMemoryDispatcher()
	locks := service.NewSessionLocks()

	registry := service.NewSessionRegistry(service.RegistryDependencies{
		SessionRepo: sessionRepo,
		MessageRepo: messageRepo,
		AgentRepo:   agentRepo,
		Locks:       locks,
		Dispatcher:  dispatcher,
	})
	agentPool := service.NewAgentPool(service.PoolDependencies{
		AgentRepo:   agentRepo,
		SessionRepo: sessionRepo,
		Registry:    registry,
		Presence:    presence,
		Logger:      logger,
	})
	store := service.NewMessageStore(service.StoreDependencies{
		SessionRepo: sessionRepo,
		MessageRepo: messageRepo,
		Locks:       locks,
		Dispatcher:  dispatcher,
	})
	gateway := service.NewSyncGateway(registry, store, messageRepo, cfg.Chat.PollWindowLimit)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authService := service.NewAgentAuthService(agentRepo, tokens)
	authMiddleware := auth.NewAuthMiddleware(tokens, agentRepo)

	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	worker.StartNotificationWorker(notificationService)

	reaper := worker.NewWaitingReaper(registry, sessionRepo, logger,
		cfg.Chat.WaitingTimeout(), cfg.Chat.ReaperInterval())
	go reaper.Run(ctx)

	metrics := observability.NewMetrics()

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Sessions: handlers.NewSessionsHandler(handlers.SessionsDependencies{
			Registry: registry,
			Pool:     agentPool,
			Store:    store,
			Gateway:  gateway,
			Tokens:   tokens,
		}),
		Agent:          handlers.NewAgentHandler(agentPool, registry, gateway),
		Auth:           handlers.NewAuthHandler(authService),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
