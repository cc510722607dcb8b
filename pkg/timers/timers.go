// Package timers manages the single-fire delay and timeout timers owned by
// workflow executions. In-process only: a restart loses every pending timer.
package timers

import (
	"log/slog"
	"sync"
	"time"

	"github.com/chatflow-io/chatflow/pkg/clock"
)

// Handle identifies one scheduled timer.
type Handle struct {
	executionID string
	timer       clock.Timer
}

// Manager schedules at most one timer per execution. Scheduling a second
// timer for the same execution replaces (and cancels) the first; delay and
// waitForResponse timers never coexist in a sequential traversal, so a
// replacement indicates a re-entered node rather than a conflict.
type Manager struct {
	clock  clock.Clock
	logger *slog.Logger

	mu     sync.Mutex
	active map[string]*Handle
}

// NewManager creates a timer manager on the given clock.
func NewManager(c clock.Clock, logger *slog.Logger) *Manager {
	return &Manager{
		clock:  c,
		logger: logger.With("module", "timers"),
		active: make(map[string]*Handle),
	}
}

// Schedule arms a timer for the execution. The callback runs exactly once
// after d unless the handle is cancelled first.
func (m *Manager) Schedule(executionID string, d time.Duration, callback func()) *Handle {
	m.mu.Lock()
	defer m.mu.Unlock()

	if previous, ok := m.active[executionID]; ok {
		previous.timer.Stop()
		m.logger.Warn("Replacing active timer", "execution_id", executionID)
	}

	handle := &Handle{executionID: executionID}
	handle.timer = m.clock.AfterFunc(d, func() {
		m.clear(executionID, handle)
		callback()
	})
	m.active[executionID] = handle

	return handle
}

// Cancel stops the timer if it has not fired. Safe to call with a handle
// that already fired or was cancelled.
func (m *Manager) Cancel(handle *Handle) {
	if handle == nil {
		return
	}

	handle.timer.Stop()
	m.clear(handle.executionID, handle)
}

// CancelExecution stops whatever timer the execution currently owns.
func (m *Manager) CancelExecution(executionID string) {
	m.mu.Lock()
	handle, ok := m.active[executionID]
	if ok {
		delete(m.active, executionID)
	}
	m.mu.Unlock()

	if ok {
		handle.timer.Stop()
	}
}

// ActiveCount returns the number of executions with a pending timer.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.active)
}

// clear removes the registration only if it still points at handle, so a
// fired timer does not clobber a successor scheduled for the same execution.
func (m *Manager) clear(executionID string, handle *Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.active[executionID]; ok && current == handle {
		delete(m.active, executionID)
	}
}
