/*

This file manages the process-wide runtime counters: operation and emergency cycle numbers,
skipped cycles, task outcomes and the last observed position state.

Counters live for one process lifetime only. They are safe for concurrent use by the two
cycle loops and the status server.

*/

package state

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/kilolend/lvm/internal/logger"
	"github.com/rs/zerolog"
)

// Runtime holds the counters shared between the cycle loops and the status server.
type Runtime struct {
	startedAt time.Time
	now       func() time.Time

	operations        atomic.Int64
	emergencyChecks   atomic.Int64
	skippedOperations atomic.Int64
	skippedEmergency  atomic.Int64
	failedOperations  atomic.Int64
	tasksSubmitted    atomic.Int64
	tasksFailed       atomic.Int64

	mu               sync.RWMutex
	lastOperation    time.Time
	lastOperationDur time.Duration
	lastDecision     string
	lastHealthFactor float64
	lastHealthStatus string
	lastHealthAt     time.Time

	logger zerolog.Logger
}

// Status is a consistent copy of the runtime counters.
type Status struct {
	StartedAt         time.Time  `json:"started_at"`
	UptimeSeconds     int64      `json:"uptime_seconds"`
	Operations        int64      `json:"operations"`
	EmergencyChecks   int64      `json:"emergency_checks"`
	SkippedOperations int64      `json:"skipped_operations"`
	SkippedEmergency  int64      `json:"skipped_emergency_checks"`
	FailedOperations  int64      `json:"failed_operations"`
	TasksSubmitted    int64      `json:"tasks_submitted"`
	TasksFailed       int64      `json:"tasks_failed"`
	LastOperation     *time.Time `json:"last_operation,omitempty"`
	LastOperationMs   int64      `json:"last_operation_ms"`
	LastDecision      string     `json:"last_decision,omitempty"`
	LastHealthFactor  *float64   `json:"last_health_factor,omitempty"`
	LastHealthStatus  string     `json:"last_health_status,omitempty"`
	LastHealthAt      *time.Time `json:"last_health_at,omitempty"`
}

// NewRuntime starts the uptime clock. now may be nil.
func NewRuntime(now func() time.Time) *Runtime {
	if now == nil {
		now = time.Now
	}
	return &Runtime{
		startedAt: now(),
		now:       now,
		logger:    logger.GetForComponent("runtime_state"),
	}
}

// IncrementCycleNumber advances the operation counter and returns the new value.
func (r *Runtime) IncrementCycleNumber() int64 {
	n := r.operations.Add(1)
	r.logger.Debug().Int64("newCycle", n).Msg("Incremented cycle counter")
	return n
}

// GetCurrentCycleNumber returns the number of operation cycles started so far.
func (r *Runtime) GetCurrentCycleNumber() int64 {
	return r.operations.Load()
}

// IncrementEmergencyCheck advances the emergency counter and returns the new value.
func (r *Runtime) IncrementEmergencyCheck() int64 {
	return r.emergencyChecks.Add(1)
}

// RecordSkippedOperation counts an operation tick dropped by the reentrancy guard.
func (r *Runtime) RecordSkippedOperation() {
	r.skippedOperations.Add(1)
}

// RecordSkippedEmergency counts an emergency tick dropped by the reentrancy guard.
func (r *Runtime) RecordSkippedEmergency() {
	r.skippedEmergency.Add(1)
}

// RecordFailedOperation counts an operation cycle that ended in an error or panic.
func (r *Runtime) RecordFailedOperation() {
	r.failedOperations.Add(1)
}

// RecordTask counts a task submission outcome.
func (r *Runtime) RecordTask(err error) {
	if err != nil {
		r.tasksFailed.Add(1)
		return
	}
	r.tasksSubmitted.Add(1)
}

// RecordOperation stores the completion of an operation cycle.
func (r *Runtime) RecordOperation(finished time.Time, took time.Duration, decision string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastOperation = finished
	r.lastOperationDur = took
	r.lastDecision = decision
}

// RecordHealth stores the latest observed health factor and its label.
func (r *Runtime) RecordHealth(hf float64, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastHealthFactor = hf
	r.lastHealthStatus = status
	r.lastHealthAt = r.now()
}

// LastOperation returns the completion time of the last operation cycle, zero if none.
func (r *Runtime) LastOperation() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastOperation
}

// Snapshot returns a copy of all counters.
func (r *Runtime) Snapshot() Status {
	s := Status{
		StartedAt:         r.startedAt,
		UptimeSeconds:     int64(r.now().Sub(r.startedAt).Seconds()),
		Operations:        r.operations.Load(),
		EmergencyChecks:   r.emergencyChecks.Load(),
		SkippedOperations: r.skippedOperations.Load(),
		SkippedEmergency:  r.skippedEmergency.Load(),
		FailedOperations:  r.failedOperations.Load(),
		TasksSubmitted:    r.tasksSubmitted.Load(),
		TasksFailed:       r.tasksFailed.Load(),
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.lastOperation.IsZero() {
		last := r.lastOperation
		s.LastOperation = &last
		s.LastOperationMs = r.lastOperationDur.Milliseconds()
	}
	s.LastDecision = r.lastDecision
	if !r.lastHealthAt.IsZero() {
		hf, at := r.lastHealthFactor, r.lastHealthAt
		s.LastHealthFactor = &hf
		s.LastHealthAt = &at
		s.LastHealthStatus = r.lastHealthStatus
	}
	return s
}
