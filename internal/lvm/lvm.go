package lvm

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/kilolend/lvm/internal/logger"
	"github.com/kilolend/lvm/internal/metrics"
	"github.com/kilolend/lvm/internal/state"
	"github.com/kilolend/lvm/internal/types"
	"github.com/rs/zerolog"
)

var ErrInvalidConfig = errors.New("invalid LVM configuration")

// PositionReader is the PositionMonitor surface used by the cycles.
type PositionReader interface {
	CheapHealthCheck(ctx context.Context) (*types.HealthResult, error)
	FullSnapshot(ctx context.Context) *types.PositionSnapshot
}

// MarketReader supplies the per-cycle market snapshot.
type MarketReader interface {
	MarketSnapshot(ctx context.Context) (*types.MarketSnapshot, error)
}

// LiquidityReader is the VaultLiquidityTracker surface used by the operation cycle.
type LiquidityReader interface {
	Metrics(ctx context.Context) (*types.VaultMetrics, error)
	PendingWithdrawals(ctx context.Context) []types.WithdrawalEvent
}

// RiskEvaluator scores a cycle and demotes risky decisions.
type RiskEvaluator interface {
	Score(snapshot *types.PositionSnapshot, market types.MarketSnapshot) types.RiskAssessment
	AdjustDecision(decision types.Decision, assessment types.RiskAssessment) types.Decision
}

// Decider produces one decision per operation cycle and never fails.
type Decider interface {
	Decide(ctx context.Context, snapshot *types.PositionSnapshot, market *types.MarketSnapshot) types.Decision
}

// TaskBuilder maps cycle outcomes onto tasks.
type TaskBuilder interface {
	FromDecision(decision types.Decision, snapshot *types.PositionSnapshot) (*types.Task, error)
	PrepareWithdrawal(check types.LiquidityCheck) (*types.Task, error)
	HealthAlert(health *types.HealthResult) *types.Task
}

// TaskEmitter delivers a built task.
type TaskEmitter interface {
	Emit(ctx context.Context, task *types.Task) error
}

// Config holds the configuration for creating a new LVM instance.
type Config struct {
	Position PositionReader
	Market   MarketReader
	Vault    LiquidityReader
	Risk     RiskEvaluator
	Decider  Decider
	Builder  TaskBuilder
	Emitter  TaskEmitter

	Thresholds types.RiskParameters

	OperationInterval time.Duration
	EmergencyInterval time.Duration

	Runtime *state.Runtime   // optional; a fresh one is created when nil
	Metrics *metrics.Metrics // optional
	Now     func() time.Time // optional; defaults to time.Now
}

// LVM is the leverage vault monitor: two independent timer loops over the position.
// The only shared mutable state is the pair of reentrancy flags and the runtime counters.
type LVM struct {
	position PositionReader
	market   MarketReader
	vault    LiquidityReader
	risk     RiskEvaluator
	decider  Decider
	builder  TaskBuilder
	emitter  TaskEmitter

	thresholds        types.RiskParameters
	operationInterval time.Duration
	emergencyInterval time.Duration

	runtime *state.Runtime
	metrics *metrics.Metrics
	now     func() time.Time
	logger  zerolog.Logger

	isRunning            atomic.Bool
	emergencyCheckActive atomic.Bool
}

// NewLVM creates a new LVM instance with dependency injection.
func NewLVM(cfg Config) (*LVM, error) {
	if err := validateLVMConfig(cfg); err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}

	l := &LVM{
		position:          cfg.Position,
		market:            cfg.Market,
		vault:             cfg.Vault,
		risk:              cfg.Risk,
		decider:           cfg.Decider,
		builder:           cfg.Builder,
		emitter:           cfg.Emitter,
		thresholds:        cfg.Thresholds,
		operationInterval: cfg.OperationInterval,
		emergencyInterval: cfg.EmergencyInterval,
		runtime:           cfg.Runtime,
		metrics:           cfg.Metrics,
		now:               cfg.Now,
		logger:            logger.GetForComponent("lvm_core"),
	}
	if l.now == nil {
		l.now = time.Now
	}
	if l.runtime == nil {
		l.runtime = state.NewRuntime(l.now)
	}

	l.logger.Info().
		Dur("operationInterval", l.operationInterval).
		Dur("emergencyInterval", l.emergencyInterval).
		Float64("targetHealthFactor", l.thresholds.TargetHealthFactor).
		Msg("LVM instance created successfully with dependency injection")

	return l, nil
}

// validateLVMConfig validates the LVM configuration
func validateLVMConfig(cfg Config) error {
	if cfg.Position == nil {
		return fmt.Errorf("position reader cannot be nil")
	}
	if cfg.Market == nil {
		return fmt.Errorf("market reader cannot be nil")
	}
	if cfg.Vault == nil {
		return fmt.Errorf("vault tracker cannot be nil")
	}
	if cfg.Risk == nil {
		return fmt.Errorf("risk evaluator cannot be nil")
	}
	if cfg.Decider == nil {
		return fmt.Errorf("decision engine cannot be nil")
	}
	if cfg.Builder == nil {
		return fmt.Errorf("task builder cannot be nil")
	}
	if cfg.Emitter == nil {
		return fmt.Errorf("task emitter cannot be nil")
	}
	if cfg.OperationInterval <= 0 || cfg.EmergencyInterval <= 0 {
		return fmt.Errorf("cycle intervals must be positive")
	}
	if cfg.EmergencyInterval >= cfg.OperationInterval {
		return fmt.Errorf("emergency interval %s must be shorter than operation interval %s", cfg.EmergencyInterval, cfg.OperationInterval)
	}
	return nil
}

// Runtime exposes the runtime counters for the status server.
func (l *LVM) Runtime() *state.Runtime {
	return l.runtime
}

// Run starts both loops and blocks until ctx is cancelled. The first operation cycle runs
// immediately. Each tick dispatches its cycle without waiting, so a cycle still in progress
// makes the next tick a skip. In-flight cycles are not awaited on return.
func (l *LVM) Run(ctx context.Context) {
	l.logger.Info().
		Dur("operationInterval", l.operationInterval).
		Dur("emergencyInterval", l.emergencyInterval).
		Msg("Starting LVM loops")

	go l.RunOperationCycle(ctx)

	operationTicker := time.NewTicker(l.operationInterval)
	defer operationTicker.Stop()
	emergencyTicker := time.NewTicker(l.emergencyInterval)
	defer emergencyTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info().Msg("LVM loops stopped due to context cancellation")
			return
		case <-operationTicker.C:
			go l.RunOperationCycle(ctx)
		case <-emergencyTicker.C:
			go l.RunEmergencyCycle(ctx)
		}
	}
}

// LogSummary writes the shutdown summary.
func (l *LVM) LogSummary() {
	s := l.runtime.Snapshot()
	event := l.logger.Info().
		Int64("totalOperations", s.Operations).
		Int64("emergencyChecks", s.EmergencyChecks).
		Int64("skippedOperations", s.SkippedOperations).
		Int64("failedOperations", s.FailedOperations).
		Int64("tasksSubmitted", s.TasksSubmitted).
		Int64("tasksFailed", s.TasksFailed)
	if s.LastOperation != nil {
		event = event.Time("lastOperation", *s.LastOperation)
	} else {
		event = event.Str("lastOperation", "N/A")
	}
	event.Msg("Shutdown summary")
}
