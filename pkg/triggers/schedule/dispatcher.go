// Package schedule starts workflow executions for scheduled triggers, both
// one-shot timestamps and recurring daily/weekly/monthly schedules.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/chatflow-io/chatflow/pkg/clock"
	"github.com/chatflow-io/chatflow/pkg/log"
	"github.com/chatflow-io/chatflow/pkg/models"
	"github.com/chatflow-io/chatflow/pkg/persistence"
)

// Starter is the engine surface the dispatcher needs.
type Starter interface {
	StartWorkflow(ctx context.Context, workflowID, userID, chatID string, triggerContext models.ExecutionContext) (string, error)
}

// Dispatcher arms cron entries for recurring schedules and in-process timers
// for one-shot ones. Like execution waits, pending one-shot timers do not
// survive a restart; Start re-arms whatever is still in the future.
type Dispatcher struct {
	workflows persistence.WorkflowRepository
	engine    Starter
	clock     clock.Clock
	logger    *slog.Logger

	cron   *cron.Cron
	timers []clock.Timer
}

func NewDispatcher(workflows persistence.WorkflowRepository, engine Starter, clk clock.Clock) *Dispatcher {
	return &Dispatcher{
		workflows: workflows,
		engine:    engine,
		clock:     clk,
		logger:    log.WithModule("trigger.schedule"),
	}
}

// Start loads the active scheduled workflows and arms their schedules.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	workflows, err := d.workflows.ActiveWorkflows(ctx)
	if err != nil {
		return fmt.Errorf("load active workflows: %w", err)
	}

	for _, workflow := range workflows {
		if workflow.Trigger.Type != models.TriggerTypeScheduled {
			continue
		}

		if err := d.arm(workflow); err != nil {
			d.logger.ErrorContext(ctx, "Skipping workflow with invalid schedule",
				"workflow_id", workflow.ID, "error", err)
		}
	}

	d.cron.Start()
	d.logger.Info("Schedule trigger dispatcher started", "cron_entries", len(d.cron.Entries()))

	return nil
}

// Stop halts the cron scheduler and pending one-shot timers.
func (d *Dispatcher) Stop(_ context.Context) error {
	if d.cron != nil {
		d.cron.Stop()
	}

	for _, timer := range d.timers {
		timer.Stop()
	}

	d.timers = nil

	return nil
}

// EntryCount returns the number of armed recurring schedules.
func (d *Dispatcher) EntryCount() int {
	if d.cron == nil {
		return 0
	}

	return len(d.cron.Entries())
}

func (d *Dispatcher) arm(workflow *models.Workflow) error {
	trigger := workflow.Trigger

	if trigger.Recurring != nil {
		spec, err := cronSpec(trigger.Recurring)
		if err != nil {
			return err
		}

		workflowID, userID, chatID := workflow.ID, workflow.UserID, workflow.ChatID
		if _, err := d.cron.AddFunc(spec, func() {
			d.fire(workflowID, userID, chatID)
		}); err != nil {
			return fmt.Errorf("add cron entry %q: %w", spec, err)
		}

		d.logger.Info("Armed recurring schedule", "workflow_id", workflow.ID, "cron", spec)

		return nil
	}

	if trigger.ScheduledTime == "" {
		return errors.New("scheduled trigger has neither a time nor a recurrence")
	}

	at, err := time.Parse(time.RFC3339, trigger.ScheduledTime)
	if err != nil {
		return fmt.Errorf("parse scheduled time %q: %w", trigger.ScheduledTime, err)
	}

	until := at.Sub(d.clock.Now())
	if until < 0 {
		d.logger.Info("Skipping past one-shot schedule",
			"workflow_id", workflow.ID, "scheduled_time", trigger.ScheduledTime)

		return nil
	}

	workflowID, userID, chatID := workflow.ID, workflow.UserID, workflow.ChatID
	d.timers = append(d.timers, d.clock.AfterFunc(until, func() {
		d.fire(workflowID, userID, chatID)
	}))

	d.logger.Info("Armed one-shot schedule", "workflow_id", workflow.ID, "fires_in", until)

	return nil
}

func (d *Dispatcher) fire(workflowID, userID, chatID string) {
	ctx := context.Background()

	executionID, err := d.engine.StartWorkflow(ctx, workflowID, userID, chatID, models.ExecutionContext{
		"scheduledTime": d.clock.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		d.logger.ErrorContext(ctx, "Failed to start scheduled workflow",
			"workflow_id", workflowID, "error", err)

		return
	}

	d.logger.InfoContext(ctx, "Started scheduled workflow",
		"workflow_id", workflowID, "execution_id", executionID)
}

// cronSpec translates a recurring schedule into a standard cron expression.
func cronSpec(recurring *models.RecurringSchedule) (string, error) {
	hour, minute, err := parseTimeOfDay(recurring.Time)
	if err != nil {
		return "", err
	}

	switch recurring.Frequency {
	case models.FrequencyDaily:
		return fmt.Sprintf("%d %d * * *", minute, hour), nil
	case models.FrequencyWeekly:
		day := 0
		if recurring.DayOfWeek != nil {
			day = *recurring.DayOfWeek
		}

		if day < 0 || day > 6 {
			return "", fmt.Errorf("day of week %d out of range", day)
		}

		return fmt.Sprintf("%d %d * * %d", minute, hour, day), nil
	case models.FrequencyMonthly:
		day := 1
		if recurring.DayOfMonth != nil {
			day = *recurring.DayOfMonth
		}

		if day < 1 || day > 31 {
			return "", fmt.Errorf("day of month %d out of range", day)
		}

		return fmt.Sprintf("%d %d %d * *", minute, hour, day), nil
	default:
		return "", fmt.Errorf("unknown frequency %q", recurring.Frequency)
	}
}

// parseTimeOfDay parses "HH:mm". An empty value means midnight.
func parseTimeOfDay(value string) (hour, minute int, err error) {
	if value == "" {
		return 0, 0, nil
	}

	parts := strings.SplitN(value, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time of day %q", value)
	}

	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", value)
	}

	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", value)
	}

	return hour, minute, nil
}
