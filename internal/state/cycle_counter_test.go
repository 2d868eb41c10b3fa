package state

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuntimeCounters(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := NewRuntime(func() time.Time { return clock })

	empty := r.Snapshot()
	assert.Zero(t, empty.Operations)
	assert.Nil(t, empty.LastOperation)
	assert.Nil(t, empty.LastHealthFactor)

	assert.Equal(t, int64(1), r.IncrementCycleNumber())
	assert.Equal(t, int64(2), r.IncrementCycleNumber())
	assert.Equal(t, int64(2), r.GetCurrentCycleNumber())
	assert.Equal(t, int64(1), r.IncrementEmergencyCheck())
	r.RecordSkippedOperation()
	r.RecordSkippedEmergency()
	r.RecordFailedOperation()
	r.RecordTask(nil)
	r.RecordTask(errors.New("down"))

	clock = clock.Add(90 * time.Second)
	r.RecordOperation(clock, 1500*time.Millisecond, "HOLD")
	r.RecordHealth(1.62, "OPTIMAL")

	s := r.Snapshot()
	assert.Equal(t, int64(90), s.UptimeSeconds)
	assert.Equal(t, int64(2), s.Operations)
	assert.Equal(t, int64(1), s.EmergencyChecks)
	assert.Equal(t, int64(1), s.SkippedOperations)
	assert.Equal(t, int64(1), s.SkippedEmergency)
	assert.Equal(t, int64(1), s.FailedOperations)
	assert.Equal(t, int64(1), s.TasksSubmitted)
	assert.Equal(t, int64(1), s.TasksFailed)
	require.NotNil(t, s.LastOperation)
	assert.Equal(t, clock, *s.LastOperation)
	assert.Equal(t, int64(1500), s.LastOperationMs)
	assert.Equal(t, "HOLD", s.LastDecision)
	require.NotNil(t, s.LastHealthFactor)
	assert.Equal(t, 1.62, *s.LastHealthFactor)
	assert.Equal(t, "OPTIMAL", s.LastHealthStatus)
	assert.Equal(t, clock, r.LastOperation())
}

func TestRuntimeConcurrentIncrements(t *testing.T) {
	r := NewRuntime(nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.IncrementCycleNumber()
			r.IncrementEmergencyCheck()
			r.RecordHealth(1.5, "SAFE")
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(50), r.GetCurrentCycleNumber())
	assert.Equal(t, int64(50), r.Snapshot().EmergencyChecks)
}
