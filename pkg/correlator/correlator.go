// Package correlator routes incoming chat messages to executions waiting on
// a response.
package correlator

import (
	"context"
	"log/slog"
	"time"

	"github.com/chatflow-io/chatflow/pkg/clock"
	"github.com/chatflow-io/chatflow/pkg/eventbus"
	"github.com/chatflow-io/chatflow/pkg/events"
	"github.com/chatflow-io/chatflow/pkg/log"
)

// FreshnessWindow bounds how old a message creation event may be, relative
// to observation time, and still count as a live response. Anything older is
// assumed to be a replayed or historical event.
const FreshnessWindow = 5 * time.Second

// Response is a correlated chat message delivered to a waiting execution.
type Response struct {
	MessageID string
	Content   string
	SenderID  string
}

// Correlator subscribes to message creation events and hands fresh messages
// from the watched chat to the registered callback.
type Correlator struct {
	bus    eventbus.EventSubscriber
	clock  clock.Clock
	logger *slog.Logger
}

func New(bus eventbus.EventSubscriber, clk clock.Clock) *Correlator {
	return &Correlator{
		bus:    bus,
		clock:  clk,
		logger: log.WithModule("correlator"),
	}
}

// Listen watches chatID for fresh messages from anyone except excludeUserID
// and invokes onResponse for each match. Messages sent by excludeUserID are
// skipped so a workflow acting on behalf of a user never treats that user's
// own outgoing messages as the awaited response. The returned function
// detaches the listener; it is safe to call more than once.
func (c *Correlator) Listen(chatID, excludeUserID string, onResponse func(ctx context.Context, response Response)) func() {
	return c.bus.Handle(events.MessageCreatedEvent, func(ctx context.Context, event any) error {
		message, ok := event.(*events.MessageCreated)
		if !ok {
			return nil
		}

		if message.ChatID != chatID || message.SenderID == excludeUserID {
			return nil
		}

		age := c.clock.Now().Sub(message.CreatedAt)
		if age > FreshnessWindow {
			c.logger.DebugContext(ctx, "Ignoring stale message event",
				"message_id", message.MessageID, "chat_id", chatID, "age", age)

			return nil
		}

		onResponse(ctx, Response{
			MessageID: message.MessageID,
			Content:   message.Content,
			SenderID:  message.SenderID,
		})

		return nil
	})
}
