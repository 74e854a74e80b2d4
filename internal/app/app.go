package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ticket-assist/internal/api/http"
	"github.com/spec-kit/ticket-assist/internal/api/http/handlers"
	"github.com/spec-kit/ticket-assist/internal/auth"
	"github.com/spec-kit/ticket-assist/internal/config"
	"github.com/spec-kit/ticket-assist/internal/events"
	"github.com/spec-kit/ticket-assist/internal/llm"
	"github.com/spec-kit/ticket-assist/internal/mail"
	"github.com/spec-kit/ticket-assist/internal/observability"
	"github.com/spec-kit/ticket-assist/internal/persistence"
	"github.com/spec-kit/ticket-assist/internal/repository"
	"github.com/spec-kit/ticket-assist/internal/service"
	"github.com/spec-kit/ticket-assist/internal/worker"
	"github.com/spec-kit/ticket-assist/internal/workflow"
)

// App holds every long-lived component of one process.
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics

	Postgres *persistence.Postgres
	Redis    *persistence.Redis
	Tickets  repository.TicketRepository
	Users    repository.UserRepository

	Bus     *events.Bus
	Tokens  *auth.TokenManager
	Service *service.TicketService
	Triage  *workflow.Triage
	Assist  *workflow.Assist

	pool            *worker.Pool
	sweeper         *worker.Sweeper
	shutdownTracing func(context.Context) error
}

// New connects the stores and wires workflows, services and the event bus.
// Close releases what New acquired.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger, Metrics: observability.NewMetrics()}

	shutdown, err := observability.SetupTracing(ctx, cfg.App.Name, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}
	a.shutdownTracing = shutdown

	a.Postgres, err = persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("postgres: %w", err)
	}
	if pool := a.Postgres.PoolHandle(); pool != nil {
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pool, cfg.Postgres.MigrationsDir, logger); err != nil {
				a.Close(ctx)
				return nil, fmt.Errorf("migrations: %w", err)
			}
		}
		a.Tickets = repository.NewTicketRepository(pool)
		a.Users = repository.NewUserRepository(pool)
	} else {
		a.Tickets = repository.NewMemoryTicketRepository()
		a.Users = repository.NewMemoryUserRepository()
	}

	a.Redis = persistence.NewRedis(cfg.Redis, logger)

	var checkpoints workflow.CheckpointStore = workflow.NewMemoryCheckpoints()
	if a.Redis.Enabled() {
		checkpoints = workflow.NewRedisCheckpoints(a.Redis.Client, cfg.App.Name, cfg.Workflow.CheckpointTTL())
	}

	var queue events.Queue
	switch cfg.Events.Backend {
	case "redis":
		if !a.Redis.Enabled() {
			a.Close(ctx)
			return nil, errors.New("redis event queue requires REDIS_ADDR")
		}
		queue = events.NewRedisQueue(a.Redis.Client, cfg.Events.QueueKey)
	default:
		queue = events.NewMemoryQueue(cfg.Events.BufferSize)
	}
	a.Bus = events.NewBus(queue)

	normalizer := llm.NewNormalizer(logger)
	client := llm.NewClient(cfg.LLM)
	sender := mail.NewSender(cfg.Mail, logger)

	assigner := service.NewAssignmentService(service.AssignmentDependencies{UserRepo: a.Users, Logger: logger})
	notifier := service.NewNotificationService(service.NotificationDependencies{
		Sender:   sender,
		UserRepo: a.Users,
		Logger:   logger,
	})

	scheduler := workflow.NewScheduler(checkpoints, workflow.PolicyFromConfig(cfg.Workflow), logger, a.Metrics)
	a.Triage = workflow.NewTriage(scheduler, a.Tickets, llm.NewTriageAgent(client, normalizer), assigner, notifier, logger, a.Metrics)
	a.Assist = workflow.NewAssist(scheduler, a.Tickets, a.Users, llm.NewModeratorAssistAgent(client, normalizer), notifier, logger, a.Metrics)

	if err := worker.RegisterWorkflows(a.Bus, a.Triage, a.Assist); err != nil {
		a.Close(ctx)
		return nil, err
	}

	a.Tokens = auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	a.Service = service.NewTicketService(service.TicketDependencies{
		TicketRepo: a.Tickets,
		UserRepo:   a.Users,
		Dispatcher: a.Bus,
		Logger:     logger,
	})
	return a, nil
}

// HTTP builds the fiber application.
func (a *App) HTTP() *fiber.App {
	server := fiber.New(fiber.Config{
		AppName:      a.Config.App.Name,
		ErrorHandler: httptransport.ErrorHandler(a.Logger),
	})
	httptransport.RegisterMiddlewares(server, a.Logger, a.Metrics, a.Config.App.RequestTimeout())

	// The in-memory user store starts empty, so tokens are trusted as issued.
	var users repository.UserRepository
	if a.Postgres.PoolHandle() != nil {
		users = a.Users
	} else {
		a.Logger.Warn("no user store configured; bearer token claims are trusted without lookup")
	}

	httptransport.RegisterRoutes(server, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(a.Config.App.Name, a.Config.App.Version, a.Postgres, a.Redis, a.Metrics),
		Tickets:        handlers.NewTicketsHandler(a.Service),
		AuthMiddleware: auth.NewAuthMiddleware(a.Tokens, users),
	})
	return server
}

// StartBackground launches the workflow workers and the stale-triage sweeper.
func (a *App) StartBackground(ctx context.Context) error {
	a.pool = worker.NewPool(a.Bus, a.Config.Events.Workers, a.Logger)
	a.pool.Start(ctx)

	if !a.Config.Sweeper.Enabled {
		return nil
	}
	a.sweeper = worker.NewSweeper(a.Tickets, a.Bus, a.Config.Sweeper, a.Logger)
	return a.sweeper.Start(ctx)
}

// Close stops background work and releases connections. Workers must
// already have been signalled through their context.
func (a *App) Close(ctx context.Context) {
	if a.sweeper != nil {
		a.sweeper.Stop()
	}
	if a.Bus != nil {
		_ = a.Bus.Queue().Close()
	}
	if a.pool != nil {
		a.pool.Wait()
	}
	a.Redis.Close()
	a.Postgres.Close()
	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(ctx); err != nil {
			a.Logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}
}
