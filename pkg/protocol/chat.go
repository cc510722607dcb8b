// Package protocol defines the interfaces and contracts between the engine,
// the node executors and the chat surface.
package protocol

import (
	"context"

	"github.com/chatflow-io/chatflow/pkg/models"
)

// Sender is the chat-send interface. Implementations must be safe for
// concurrent calls; a returned error is treated as node failure by the
// engine.
type Sender interface {
	SendMessage(ctx context.Context, chatID, senderID, content string, messageType models.MessageType, fileInfo *models.FileInfo) error
}
