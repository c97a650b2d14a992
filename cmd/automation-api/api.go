// Package main provides the automation API server implementation.
package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	cli "github.com/urfave/cli/v3"

	"github.com/pulseops/automation/pkg/channels/webhook"
	"github.com/pulseops/automation/pkg/cmd"
	"github.com/pulseops/automation/pkg/engine"
	"github.com/pulseops/automation/pkg/persistence"
	"github.com/pulseops/automation/pkg/rules"
	"github.com/pulseops/automation/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	engine      *engine.Engine
	ruleEngine  *rules.Engine
	validate    *validator.Validate
}

// NewAPI wires the API's collaborators. The returned cleanup closes the
// persistence connection.
func NewAPI(ctx context.Context, command *cli.Command, logger *slog.Logger) (*API, func(), error) {
	store, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		if err := store.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}

	sender := webhook.NewSender(command.String("gateway-url"), command.String("gateway-api-key"), nil)
	reg := cmd.NewRegistry(logger, sender, cmd.NewNoopRecordStore(logger), nil, nil)

	eng := engine.NewEngine(store, reg, nil, nil, logger)
	ruleEngine := rules.NewEngine(store, eng, nil, logger)

	return &API{
		logger:      logger,
		persistence: store,
		engine:      eng,
		ruleEngine:  ruleEngine,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}, cleanup, nil
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.persistence, a.engine, a.ruleEngine, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Automation API")
	})

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Delete("/:id", handlers.DeleteWorkflow)
	w.Post("/:id/fire", handlers.FireWorkflow)
	w.Get("/:id/executions", handlers.GetExecutions)
	w.Post("/:id/actions", handlers.CreateAction)
	w.Delete("/:id/actions/:actionId", handlers.DeleteAction)

	e := app.Group("/executions")
	e.Get("/:id", handlers.GetExecution)
	e.Post("/:id/pause", handlers.PauseExecution)
	e.Post("/:id/resume", handlers.ResumeExecution)
	e.Post("/:id/cancel", handlers.CancelExecution)

	r := app.Group("/rules")
	r.Get("/", handlers.GetRules)
	r.Post("/", handlers.CreateRule)
	r.Post("/:id/evaluate", handlers.EvaluateRule)

	m := app.Group("/messages")
	m.Get("/", handlers.GetMessages)
	m.Post("/", handlers.CreateMessage)
	m.Get("/:id", handlers.GetMessage)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	return a.App().Listen(":" + strconv.Itoa(port))
}
