package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScheduledMessage_NextOccurrence(t *testing.T) {
	base := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)

	testCases := []struct {
		name      string
		recurring *RecurringMessage
		expected  time.Time
	}{
		{
			name:      "not recurring",
			recurring: nil,
			expected:  time.Time{},
		},
		{
			name:      "daily",
			recurring: &RecurringMessage{Frequency: FrequencyDaily},
			expected:  base.Add(24 * time.Hour),
		},
		{
			name:      "weekly",
			recurring: &RecurringMessage{Frequency: FrequencyWeekly},
			expected:  base.Add(7 * 24 * time.Hour),
		},
		{
			name:      "monthly",
			recurring: &RecurringMessage{Frequency: FrequencyMonthly},
			expected:  time.Date(2025, 2, 15, 9, 0, 0, 0, time.UTC),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			msg := &ScheduledMessage{ScheduledFor: base, Recurring: tc.recurring}
			assert.Equal(t, tc.expected, msg.NextOccurrence())
		})
	}
}

func TestScheduledMessage_NextOccurrence_EndDate(t *testing.T) {
	base := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)

	within := base.Add(48 * time.Hour)
	msg := &ScheduledMessage{
		ScheduledFor: base,
		Recurring:    &RecurringMessage{Frequency: FrequencyDaily, EndDate: &within},
	}
	assert.Equal(t, base.Add(24*time.Hour), msg.NextOccurrence())

	// Next occurrence past the end date is not re-enqueued.
	passed := base.Add(12 * time.Hour)
	msg.Recurring.EndDate = &passed
	assert.True(t, msg.NextOccurrence().IsZero())
}

func TestExecutionStatus_Terminal(t *testing.T) {
	assert.False(t, ExecutionStatusRunning.Terminal())
	assert.False(t, ExecutionStatusWaiting.Terminal())
	assert.False(t, ExecutionStatusPending.Terminal())
	assert.True(t, ExecutionStatusCompleted.Terminal())
	assert.True(t, ExecutionStatusFailed.Terminal())
	assert.True(t, ExecutionStatusCancelled.Terminal())
	assert.True(t, ExecutionStatusPaused.Terminal())
}

func TestExecutionUpdate_Apply(t *testing.T) {
	execution := &WorkflowExecution{
		ID:     "exec-1",
		Status: ExecutionStatusRunning,
	}

	status := ExecutionStatusWaiting
	nodeID := "delay-1"
	(ExecutionUpdate{Status: &status, CurrentNodeID: &nodeID}).Apply(execution)

	assert.Equal(t, ExecutionStatusWaiting, execution.Status)
	assert.Equal(t, "delay-1", execution.CurrentNodeID)
	// Untouched fields keep their values.
	assert.Empty(t, execution.Error)
}

func TestExecutionContext_StringValue(t *testing.T) {
	ctx := ExecutionContext{
		"name":  "Sam",
		"count": float64(3),
		"ok":    true,
	}

	assert.Equal(t, "Sam", ctx.StringValue("name"))
	assert.Equal(t, "3", ctx.StringValue("count"))
	assert.Equal(t, "true", ctx.StringValue("ok"))
	assert.Equal(t, "", ctx.StringValue("missing"))
}
