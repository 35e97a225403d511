package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/helpdesk-sla/internal/api/http"
	"github.com/spec-kit/helpdesk-sla/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-sla/internal/auth"
	"github.com/spec-kit/helpdesk-sla/internal/clock"
	"github.com/spec-kit/helpdesk-sla/internal/config"
	"github.com/spec-kit/helpdesk-sla/internal/events"
	"github.com/spec-kit/helpdesk-sla/internal/observability"
	"github.com/spec-kit/helpdesk-sla/internal/persistence"
	"github.com/spec-kit/helpdesk-sla/internal/repository"
	"github.com/spec-kit/helpdesk-sla/internal/repository/docstore"
	"github.com/spec-kit/helpdesk-sla/internal/repository/memory"
	"github.com/spec-kit/helpdesk-sla/internal/service"
	"github.com/spec-kit/helpdesk-sla/internal/worker"
)

type stores struct {
	tickets  repository.TicketRepository
	rules    repository.SLARuleRepository
	comments repository.CommentRepository
}

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

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	readiness := map[string]handlers.Pinger{}

	var st stores
	switch cfg.Store.Backend {
	case config.StoreBackendPostgres:
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			logger.Fatal("failed to connect postgres", zap.Error(err))
		}
		if pg.Pool == nil {
			logger.Fatal("POSTGRES_DSN is required for the postgres backend")
		}
		defer pg.Close()
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.Pool, logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		readiness["postgres"] = pg
		st = stores{
			tickets:  repository.NewTicketRepository(pg.Pool),
			rules:    repository.NewSLARuleRepository(pg.Pool),
			comments: repository.NewCommentRepository(pg.Pool),
		}
	case config.StoreBackendFirestore:
		fs, err := persistence.NewFirestore(ctx, cfg.Firestore, logger)
		if err != nil {
			logger.Fatal("failed to connect firestore", zap.Error(err))
		}
		defer fs.Close()
		readiness["firestore"] = fs
		st = stores{
			tickets:  docstore.NewTicketRepository(fs.Client),
			rules:    docstore.NewSLARuleRepository(fs.Client),
			comments: docstore.NewCommentRepository(fs.Client),
		}
	default:
		logger.Warn("using in-memory store; data is lost on restart")
		st = stores{
			tickets:  memory.NewTicketRepository(),
			rules:    memory.NewSLARuleRepository(),
			comments: memory.NewCommentRepository(),
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()
	if redis.UniversalClient() != nil {
		readiness["redis"] = redis
	}
	ruleRepo := repository.NewCachedSLARuleRepository(st.rules, redis.UniversalClient(), cfg.SLA.RuleCacheTTL, logger)

	clk := clock.Real()
	dispatcher := events.NewInMemoryDispatcher(logger)
	worker.StartNotificationWorker(service.NewNotificationService(dispatcher, logger, cfg.Notification))

	ruleService := service.NewSLARuleService(ruleRepo, clk, logger)
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:  st.tickets,
		CommentRepo: st.comments,
		Calculator:  service.NewTimerCalculator(ruleService),
		Dispatcher:  dispatcher,
		Clock:       clk,
		Logger:      logger,
	})
	monitor := service.NewSLAMonitor(service.SLAMonitorDependencies{
		TicketRepo: st.tickets,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Clock:      clk,
		Logger:     logger,
		Options: service.SLAMonitorOptions{
			Concurrency: cfg.SLA.SweepConcurrency,
			Timeout:     cfg.SLA.SweepTimeout,
		},
	})

	slaWorker := worker.NewSLAWorker(monitor, worker.SLAWorkerOptions{
		Interval:     cfg.SLA.SweepInterval,
		RunOnStartup: cfg.SLA.SweepOnStartup,
	}, logger)
	if err := slaWorker.Start(ctx); err != nil {
		logger.Fatal("failed to start sla worker", zap.Error(err))
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, readiness),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		SLARules:       handlers.NewSLARulesHandler(ruleService),
		SLASweeps:      handlers.NewSLASweepHandler(slaWorker),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
		Gatherer:       prometheus.DefaultGatherer,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	slaWorker.Stop()
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
