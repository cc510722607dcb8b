// Package main provides the ChatFlow engine daemon: trigger dispatch,
// workflow execution and scheduled message delivery.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/chatflow-io/chatflow/pkg/chat"
	"github.com/chatflow-io/chatflow/pkg/clock"
	"github.com/chatflow-io/chatflow/pkg/cmd"
	"github.com/chatflow-io/chatflow/pkg/correlator"
	"github.com/chatflow-io/chatflow/pkg/engine"
	"github.com/chatflow-io/chatflow/pkg/eventbus"
	"github.com/chatflow-io/chatflow/pkg/log"
	"github.com/chatflow-io/chatflow/pkg/persistence"
	"github.com/chatflow-io/chatflow/pkg/protocol"
	"github.com/chatflow-io/chatflow/pkg/scheduler"
	"github.com/chatflow-io/chatflow/pkg/timers"
	"github.com/chatflow-io/chatflow/pkg/triggers/messagereceived"
	"github.com/chatflow-io/chatflow/pkg/triggers/schedule"
	"go.opentelemetry.io/otel/trace"
)

type Daemon struct {
	id          string
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	tracer      trace.Tracer
}

// NewDaemon builds the daemon. A nil tracer leaves engine spans on the noop
// tracer.
func NewDaemon(
	id string,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	logger *slog.Logger,
	tracer trace.Tracer,
) *Daemon {
	return &Daemon{
		id:          id,
		logger:      logger.With("engine_id", id),
		persistence: persistence,
		eventBus:    eventBus,
		tracer:      tracer,
	}
}

// Start wires the engine, both trigger dispatchers and the scheduled message
// poller, then blocks until SIGINT or SIGTERM.
func (d *Daemon) Start(ctx context.Context) error {
	d.logger.InfoContext(ctx, "Starting engine daemon")

	clk := clock.New()

	chatService := chat.NewService(d.persistence.MessageRepository(), d.eventBus, clk)
	reg := cmd.NewRegistry(d.logger, protocol.Dependencies{Sender: chatService, Logger: d.logger})

	eng := engine.New(engine.Config{
		Workflows:  d.persistence.WorkflowRepository(),
		Executions: d.persistence.ExecutionRepository(),
		Registry:   reg,
		Timers:     timers.NewManager(clk, log.WithModule("timers")),
		Correlator: correlator.New(d.eventBus, clk),
		Publisher:  d.eventBus,
		Clock:      clk,
		Tracer:     d.tracer,
	})

	messageDispatcher := messagereceived.NewDispatcher(d.persistence.WorkflowRepository(), d.eventBus, eng)
	if err := messageDispatcher.Start(ctx); err != nil {
		return err
	}

	scheduleDispatcher := schedule.NewDispatcher(d.persistence.WorkflowRepository(), eng, clk)
	if err := scheduleDispatcher.Start(ctx); err != nil {
		return err
	}

	poller := scheduler.NewPoller(d.persistence.ScheduledMessageRepository(), chatService, clk, scheduler.DefaultInterval)
	poller.Start(ctx)

	if err := d.eventBus.Subscribe(ctx); err != nil {
		d.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	d.logger.InfoContext(ctx, "Engine daemon started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	d.logger.InfoContext(ctx, "Shutting down engine daemon...")

	poller.Stop()

	if err := scheduleDispatcher.Stop(ctx); err != nil {
		d.logger.ErrorContext(ctx, "Failed to stop schedule dispatcher", "error", err)
	}

	if err := messageDispatcher.Stop(ctx); err != nil {
		d.logger.ErrorContext(ctx, "Failed to stop message dispatcher", "error", err)
	}

	return nil
}
