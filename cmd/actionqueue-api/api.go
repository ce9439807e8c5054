// Package main provides the action queue API server implementation.
package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/hotdash/actionqueue/pkg/attribution"
	"github.com/hotdash/actionqueue/pkg/cache"
	"github.com/hotdash/actionqueue/pkg/eventbus"
	"github.com/hotdash/actionqueue/pkg/executor"
	"github.com/hotdash/actionqueue/pkg/persistence"
	"github.com/hotdash/actionqueue/pkg/ranking"
	"github.com/hotdash/actionqueue/pkg/services"
	"github.com/hotdash/actionqueue/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	cache       cache.Cache
	executor    executor.Executor
	analytics   attribution.Client
	limiter     attribution.Limiter
	validate    *validator.Validate
	reranker    *attribution.Reranker
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	cache cache.Cache,
	executor executor.Executor,
	analytics attribution.Client,
	limiter attribution.Limiter,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		eventBus:    eventBus,
		cache:       cache,
		executor:    executor,
		analytics:   analytics,
		limiter:     limiter,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	actionService := services.NewAction(a.persistence, a.executor, a.eventBus, a.cache, a.logger)
	rankingService := services.NewRanking(a.persistence, ranking.NewEngine(ranking.DefaultConfig()), a.cache, a.logger)
	a.reranker = attribution.NewReranker(a.persistence, a.analytics, a.limiter, rankingService, a.eventBus, a.logger)

	handlers := web.NewAPIHandlers(actionService, rankingService, a.reranker, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Action Queue API")
	})

	q := app.Group("/actions")
	q.Get("/", handlers.GetActions)
	q.Post("/", handlers.CreateAction)
	q.Get("/summary", handlers.GetActionsSummary)
	q.Get("/:id", handlers.GetAction)
	q.Get("/:id/validate", handlers.ValidateAction)
	q.Get("/:id/decisions", handlers.GetActionDecisions)

	// Lifecycle endpoints:
	q.Post("/:id/submit", handlers.SubmitAction)
	q.Post("/:id/approve", handlers.ApproveAction)
	q.Post("/:id/reject", handlers.RejectAction)
	q.Post("/:id/request-changes", handlers.RequestChangesAction)
	q.Post("/:id/apply", handlers.ApplyAction)
	q.Post("/:id/audit", handlers.AuditAction)
	q.Post("/:id/learn", handlers.LearnAction)
	q.Post("/:id/attribution/refresh", handlers.RefreshAttribution)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(ctx context.Context, port int) error {
	app := a.App()

	// Drain queued attribution refreshes while the server runs.
	go a.reranker.Run(ctx)

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
