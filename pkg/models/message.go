package models

import "time"

// MessageType distinguishes the payload kinds the chat surface renders.
type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeImage    MessageType = "image"
	MessageTypeVideo    MessageType = "video"
	MessageTypeDocument MessageType = "document"
	MessageTypeVoice    MessageType = "voice"
)

// FileInfo describes an attachment referenced by a message.
type FileInfo struct {
	Name string `json:"name,omitempty"`
	Size string `json:"size,omitempty"`
	URL  string `json:"url"`
}

// ChatMessage is one message in a chat. The engine writes these through the
// chat-send interface and the correlator observes their creation events.
type ChatMessage struct {
	ID          string      `json:"id"`
	ChatID      string      `json:"chatId"`
	SenderID    string      `json:"senderId"`
	Content     string      `json:"content"`
	MessageType MessageType `json:"messageType"`
	FileInfo    *FileInfo   `json:"fileInfo,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
}
