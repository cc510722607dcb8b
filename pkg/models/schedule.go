package models

import "time"

// ScheduledMessageStatus is the delivery state of a scheduled message.
type ScheduledMessageStatus string

const (
	ScheduledStatusPending   ScheduledMessageStatus = "pending"
	ScheduledStatusSent      ScheduledMessageStatus = "sent"
	ScheduledStatusFailed    ScheduledMessageStatus = "failed"
	ScheduledStatusCancelled ScheduledMessageStatus = "cancelled"
)

// RecurringMessage describes how a scheduled message repeats after sending.
type RecurringMessage struct {
	Frequency RecurringFrequency `json:"frequency" validate:"required,oneof=daily weekly monthly"`
	// EndDate bounds the recurrence; a next occurrence after it is not
	// re-enqueued. Nil means recur without end.
	EndDate *time.Time `json:"endDate,omitempty"`
}

// ScheduledMessage is a chat message queued for future delivery. The poller
// owns the pending -> sent/failed transitions; cancellation is a user action.
type ScheduledMessage struct {
	ID           string                 `json:"id"`
	UserID       string                 `json:"userId"       validate:"required"`
	ChatID       string                 `json:"chatId"       validate:"required"`
	Content      string                 `json:"content"      validate:"required"`
	MessageType  MessageType            `json:"messageType"  validate:"required,oneof=text image video document voice"`
	FileInfo     *FileInfo              `json:"fileInfo,omitempty"`
	ScheduledFor time.Time              `json:"scheduledFor" validate:"required"`
	Status       ScheduledMessageStatus `json:"status"`
	// WorkflowExecutionID links messages enqueued by a workflow run.
	WorkflowExecutionID string            `json:"workflowExecutionId,omitempty"`
	Recurring           *RecurringMessage `json:"recurring,omitempty"`
	CreatedAt           time.Time         `json:"createdAt"`
	SentAt              *time.Time        `json:"sentAt,omitempty"`
	Error               string            `json:"error,omitempty"`
}

// NextOccurrence computes the ScheduledFor of the next recurrence: current
// time plus one period. Returns the zero time when the message does not
// recur or the next occurrence would fall after the end date.
func (m *ScheduledMessage) NextOccurrence() time.Time {
	if m.Recurring == nil {
		return time.Time{}
	}

	var next time.Time

	switch m.Recurring.Frequency {
	case FrequencyDaily:
		next = m.ScheduledFor.Add(24 * time.Hour)
	case FrequencyWeekly:
		next = m.ScheduledFor.Add(7 * 24 * time.Hour)
	case FrequencyMonthly:
		next = m.ScheduledFor.AddDate(0, 1, 0)
	default:
		return time.Time{}
	}

	if m.Recurring.EndDate != nil && next.After(*m.Recurring.EndDate) {
		return time.Time{}
	}

	return next
}
