// Package main provides the ChatFlow API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/chatflow-io/chatflow/pkg/chat"
	"github.com/chatflow-io/chatflow/pkg/clock"
	"github.com/chatflow-io/chatflow/pkg/cmd"
	"github.com/chatflow-io/chatflow/pkg/correlator"
	"github.com/chatflow-io/chatflow/pkg/engine"
	"github.com/chatflow-io/chatflow/pkg/eventbus"
	"github.com/chatflow-io/chatflow/pkg/log"
	"github.com/chatflow-io/chatflow/pkg/persistence"
	"github.com/chatflow-io/chatflow/pkg/protocol"
	"github.com/chatflow-io/chatflow/pkg/timers"
	"github.com/chatflow-io/chatflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"go.opentelemetry.io/otel/trace"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	validate    *validator.Validate
	tracer      trace.Tracer
}

// NewAPI builds the API server. A nil tracer leaves engine spans on the
// noop tracer.
func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	tracer trace.Tracer,
) *API {
	return &API{
		persistence: persistence,
		logger:      logger,
		eventBus:    eventBus,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		tracer:      tracer,
	}
}

func (a *API) App() *fiber.App {
	clk := clock.New()

	// Workflow messages go through the chat service so they land in the
	// store and on the bus like user messages.
	chatService := chat.NewService(a.persistence.MessageRepository(), a.eventBus, clk)
	reg := cmd.NewRegistry(a.logger, protocol.Dependencies{Sender: chatService, Logger: a.logger})

	eng := engine.New(engine.Config{
		Workflows:  a.persistence.WorkflowRepository(),
		Executions: a.persistence.ExecutionRepository(),
		Registry:   reg,
		Timers:     timers.NewManager(clk, log.WithModule("timers")),
		Correlator: correlator.New(a.eventBus, clk),
		Publisher:  a.eventBus,
		Clock:      clk,
		Tracer:     a.tracer,
	})

	handlers := web.NewAPIHandlers(a.persistence, eng, chatService, a.validate, reg, clk)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("ChatFlow API")
	})

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Patch("/:id", handlers.UpdateWorkflow)
	w.Delete("/:id", handlers.DeleteWorkflow)
	w.Post("/:id/activate", handlers.ActivateWorkflow)
	w.Post("/:id/start", handlers.StartWorkflow)

	e := app.Group("/executions")
	e.Get("/", handlers.GetExecutions)
	e.Get("/:id", handlers.GetExecution)
	e.Post("/:id/pause", handlers.PauseExecution)
	e.Post("/:id/cancel", handlers.CancelExecution)

	c := app.Group("/chats")
	c.Get("/:chatId/messages", handlers.GetChatMessages)
	c.Post("/:chatId/messages", handlers.SendChatMessage)

	s := app.Group("/scheduled-messages")
	s.Get("/", handlers.GetScheduledMessages)
	s.Post("/", handlers.CreateScheduledMessage)
	s.Get("/:id", handlers.GetScheduledMessage)
	s.Post("/:id/cancel", handlers.CancelScheduledMessage)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
