// Package scheduler delivers scheduled chat messages when they come due. It
// is a client of the chat-send interface, not part of the engine.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/chatflow-io/chatflow/pkg/clock"
	"github.com/chatflow-io/chatflow/pkg/log"
	"github.com/chatflow-io/chatflow/pkg/models"
	"github.com/chatflow-io/chatflow/pkg/persistence"
	"github.com/chatflow-io/chatflow/pkg/protocol"
)

// DefaultInterval is how often the poller checks for due messages.
const DefaultInterval = time.Minute

// Poller periodically queries for due scheduled messages and sends them. A
// successful send marks the record sent and re-enqueues the next occurrence
// of a recurring message; a failed send records the error text.
type Poller struct {
	store    persistence.ScheduledMessageRepository
	sender   protocol.Sender
	clock    clock.Clock
	interval time.Duration
	logger   *slog.Logger

	stop chan struct{}
}

func NewPoller(store persistence.ScheduledMessageRepository, sender protocol.Sender, clk clock.Clock, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Poller{
		store:    store,
		sender:   sender,
		clock:    clk,
		interval: interval,
		logger:   log.WithModule("scheduler"),
		stop:     make(chan struct{}),
	}
}

// Start runs the poll loop until Stop is called or the context ends. One
// sweep runs immediately so messages already due are not delayed by a full
// interval.
func (p *Poller) Start(ctx context.Context) {
	p.logger.Info("Scheduled message poller started", "interval", p.interval)
	p.Sweep(ctx)

	var tick func()
	tick = func() {
		p.clock.AfterFunc(p.interval, func() {
			select {
			case <-p.stop:
				return
			case <-ctx.Done():
				return
			default:
			}

			p.Sweep(ctx)
			tick()
		})
	}
	tick()
}

// Stop halts the poll loop after the current sweep.
func (p *Poller) Stop() {
	close(p.stop)
}

// Sweep processes every currently due message once.
func (p *Poller) Sweep(ctx context.Context) {
	due, err := p.store.DueScheduledMessages(ctx, p.clock.Now())
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to query due scheduled messages", "error", err)

		return
	}

	for _, message := range due {
		p.deliver(ctx, message)
	}
}

func (p *Poller) deliver(ctx context.Context, message *models.ScheduledMessage) {
	err := p.sender.SendMessage(ctx, message.ChatID, message.UserID, message.Content, message.MessageType, message.FileInfo)
	if err != nil {
		message.Status = models.ScheduledStatusFailed
		message.Error = err.Error()

		if saveErr := p.store.SaveScheduledMessage(ctx, message); saveErr != nil {
			p.logger.ErrorContext(ctx, "Failed to record delivery failure",
				"scheduled_message_id", message.ID, "error", saveErr)
		}

		p.logger.ErrorContext(ctx, "Failed to deliver scheduled message",
			"scheduled_message_id", message.ID, "chat_id", message.ChatID, "error", err)

		return
	}

	sentAt := p.clock.Now()
	next := message.NextOccurrence()

	message.Status = models.ScheduledStatusSent
	message.SentAt = &sentAt
	message.Error = ""

	if err := p.store.SaveScheduledMessage(ctx, message); err != nil {
		p.logger.ErrorContext(ctx, "Failed to mark scheduled message sent",
			"scheduled_message_id", message.ID, "error", err)

		return
	}

	p.logger.InfoContext(ctx, "Delivered scheduled message",
		"scheduled_message_id", message.ID, "chat_id", message.ChatID)

	if next.IsZero() {
		return
	}

	// Recurrence re-enqueues as a fresh pending record so the sent one
	// stays in the history.
	successor := *message
	successor.ID = uuid.New().String()
	successor.Status = models.ScheduledStatusPending
	successor.ScheduledFor = next
	successor.SentAt = nil
	successor.CreatedAt = p.clock.Now()

	if err := p.store.SaveScheduledMessage(ctx, &successor); err != nil {
		p.logger.ErrorContext(ctx, "Failed to enqueue next recurrence",
			"scheduled_message_id", message.ID, "error", err)

		return
	}

	p.logger.InfoContext(ctx, "Enqueued next recurrence",
		"scheduled_message_id", successor.ID, "scheduled_for", next)
}
