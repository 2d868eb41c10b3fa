package lvm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kilolend/lvm/internal/config"
	"github.com/kilolend/lvm/internal/metrics"
	"github.com/kilolend/lvm/internal/tasks"
	"github.com/kilolend/lvm/internal/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakePosition struct {
	snapshot *types.PositionSnapshot
	health   *types.HealthResult
	err      error
	panics   bool
}

func (f *fakePosition) CheapHealthCheck(context.Context) (*types.HealthResult, error) {
	return f.health, f.err
}

func (f *fakePosition) FullSnapshot(context.Context) *types.PositionSnapshot {
	if f.panics {
		panic("snapshot exploded")
	}
	return f.snapshot
}

type fakeMarket struct {
	snapshot *types.MarketSnapshot
	err      error
}

func (f *fakeMarket) MarketSnapshot(context.Context) (*types.MarketSnapshot, error) {
	return f.snapshot, f.err
}

type fakeVault struct {
	metrics     *types.VaultMetrics
	withdrawals []types.WithdrawalEvent
	entered     chan struct{} // closed when Metrics is first called, if set
	release     chan struct{} // Metrics blocks until closed, if set
	once        sync.Once
}

func (f *fakeVault) Metrics(context.Context) (*types.VaultMetrics, error) {
	if f.entered != nil {
		f.once.Do(func() { close(f.entered) })
	}
	if f.release != nil {
		<-f.release
	}
	if f.metrics == nil {
		return nil, errors.New("vault unavailable")
	}
	return f.metrics, nil
}

func (f *fakeVault) PendingWithdrawals(context.Context) []types.WithdrawalEvent {
	return f.withdrawals
}

// passRisk scores everything LOW and never overrides.
type passRisk struct{}

func (passRisk) Score(*types.PositionSnapshot, types.MarketSnapshot) types.RiskAssessment {
	return types.RiskAssessment{OverallScore: 90, RiskLevel: types.RiskLow}
}

func (passRisk) AdjustDecision(d types.Decision, _ types.RiskAssessment) types.Decision {
	return d
}

type fakeDecider struct {
	decision types.Decision
	calls    int
}

func (f *fakeDecider) Decide(context.Context, *types.PositionSnapshot, *types.MarketSnapshot) types.Decision {
	f.calls++
	return f.decision
}

type recordingEmitter struct {
	mu    sync.Mutex
	tasks []*types.Task
	err   error
}

func (r *recordingEmitter) Emit(_ context.Context, task *types.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, task)
	return r.err
}

func (r *recordingEmitter) taskTypes() []types.TaskType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.TaskType, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t.TaskType)
	}
	return out
}

type fixture struct {
	position *fakePosition
	market   *fakeMarket
	vault    *fakeVault
	decider  *fakeDecider
	emitter  *recordingEmitter
	metrics  *metrics.Metrics
}

func healthySnapshot(hf float64) *types.PositionSnapshot {
	return &types.PositionSnapshot{
		Timestamp: fixedNow,
		Lending: &types.LendingDetail{
			HealthFactor:        hf,
			TotalCollateralUSD:  1000,
			TotalDebtUSD:        1000 / hf,
			AvailableBorrowsUSD: 100,
		},
	}
}

func newFixture() *fixture {
	return &fixture{
		position: &fakePosition{snapshot: healthySnapshot(1.6)},
		market: &fakeMarket{snapshot: &types.MarketSnapshot{
			Timestamp:    fixedNow,
			Prices:       types.Prices{KAIA: 0.15, StKAIA: 0.151, USDT: 1},
			LendingRates: types.LendingRates{Borrow: 5, Supply: 3},
			Volatility:   types.VolatilityLow,
		}},
		vault:   &fakeVault{metrics: &types.VaultMetrics{TotalManagedAssets: 1000, LiquidBalance: 500, SharePrice: 1}},
		decider: &fakeDecider{decision: types.Decision{Action: types.ActionHold, Confidence: 0.9, Reasoning: "steady", RiskLevel: types.RiskLow, Source: config.RULE_BASED_SOURCE}},
		emitter: &recordingEmitter{},
		metrics: metrics.New(),
	}
}

func (f *fixture) build(t *testing.T) *LVM {
	t.Helper()
	builder, err := tasks.NewBuilder(tasks.Config{
		UserAddress: "0x1111111111111111111111111111111111111111",
		Risk:        config.DefaultRiskParameters,
		Now:         func() time.Time { return fixedNow },
	})
	require.NoError(t, err)

	l, err := NewLVM(Config{
		Position:          f.position,
		Market:            f.market,
		Vault:             f.vault,
		Risk:              passRisk{},
		Decider:           f.decider,
		Builder:           builder,
		Emitter:           f.emitter,
		Thresholds:        config.DefaultRiskParameters,
		OperationInterval: 100 * time.Minute,
		EmergencyInterval: 15 * time.Minute,
		Metrics:           f.metrics,
		Now:               func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return l
}

func TestNewLVMValidation(t *testing.T) {
	f := newFixture()
	l := f.build(t)
	require.NotNil(t, l.Runtime())

	_, err := NewLVM(Config{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	builder, err := tasks.NewBuilder(tasks.Config{UserAddress: "0x1", Risk: config.DefaultRiskParameters})
	require.NoError(t, err)
	_, err = NewLVM(Config{
		Position: f.position, Market: f.market, Vault: f.vault, Risk: passRisk{},
		Decider: f.decider, Builder: builder, Emitter: f.emitter,
		OperationInterval: time.Minute,
		EmergencyInterval: time.Minute,
	})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestOperationCycleHoldEmitsNothing(t *testing.T) {
	f := newFixture()
	l := f.build(t)

	assert.True(t, l.RunOperationCycle(context.Background()))
	assert.Empty(t, f.emitter.taskTypes())
	assert.Equal(t, 1, f.decider.calls)

	status := l.Runtime().Snapshot()
	assert.Equal(t, int64(1), status.Operations)
	assert.Equal(t, "HOLD", status.LastDecision)
	require.NotNil(t, status.LastHealthFactor)
	assert.Equal(t, 1.6, *status.LastHealthFactor)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Cycles.WithLabelValues(metrics.CYCLE_OPERATION, metrics.OUTCOME_COMPLETED)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Decisions.WithLabelValues("HOLD", config.RULE_BASED_SOURCE)))
}

func TestOperationCycleEmitsDecisionTask(t *testing.T) {
	f := newFixture()
	f.decider.decision = types.Decision{
		Action:     types.ActionLeverageDown,
		Confidence: 0.85,
		Reasoning:  "HF below safe threshold",
		RiskLevel:  types.RiskHigh,
		Parameters: types.LeverageDownParams{UnstakeAmount: 50, RepayAmount: 40},
	}
	l := f.build(t)

	assert.True(t, l.RunOperationCycle(context.Background()))
	assert.Equal(t, []types.TaskType{types.TaskLeverageDown}, f.emitter.taskTypes())
	assert.Equal(t, int64(1), l.Runtime().Snapshot().TasksSubmitted)
}

func TestOperationCycleSubmissionFailureDoesNotAbort(t *testing.T) {
	f := newFixture()
	f.decider.decision = types.Decision{Action: types.ActionRebalance, Confidence: 0.7, Reasoning: "drift", RiskLevel: types.RiskMedium}
	f.emitter.err = errors.New("intake down")
	l := f.build(t)

	assert.True(t, l.RunOperationCycle(context.Background()))
	status := l.Runtime().Snapshot()
	assert.Equal(t, int64(1), status.TasksFailed)
	assert.Equal(t, int64(0), status.FailedOperations)
	assert.Equal(t, "REBALANCE", status.LastDecision)
}

func TestOperationCyclePreparesWithdrawal(t *testing.T) {
	f := newFixture()
	f.vault.metrics = &types.VaultMetrics{TotalManagedAssets: 1000, LiquidBalance: 50, SharePrice: 1}
	f.vault.withdrawals = []types.WithdrawalEvent{{RequestID: "1", Assets: 30}, {RequestID: "2", Assets: 50}}
	l := f.build(t)

	assert.True(t, l.RunOperationCycle(context.Background()))
	require.Equal(t, []types.TaskType{types.TaskPrepareWithdrawal}, f.emitter.taskTypes())

	params, ok := f.emitter.tasks[0].Parameters.(types.PrepareWithdrawalParams)
	require.True(t, ok)
	assert.InDelta(t, 31.6, params.Deficit, 1e-9)
	assert.InDelta(t, 31.6, testutil.ToFloat64(f.metrics.VaultDeficit), 1e-9)
	// the decision still ran
	assert.Equal(t, 1, f.decider.calls)
}

func TestOperationCyclePreparesWithdrawalEvenWithoutLending(t *testing.T) {
	f := newFixture()
	f.position.snapshot = &types.PositionSnapshot{Timestamp: fixedNow}
	f.vault.metrics = &types.VaultMetrics{LiquidBalance: 50, SharePrice: 1}
	f.vault.withdrawals = []types.WithdrawalEvent{{RequestID: "1", Assets: 80}}
	l := f.build(t)

	assert.True(t, l.RunOperationCycle(context.Background()))
	assert.Equal(t, []types.TaskType{types.TaskPrepareWithdrawal}, f.emitter.taskTypes())
	assert.Equal(t, 0, f.decider.calls)
	assert.Nil(t, l.Runtime().Snapshot().LastHealthFactor)
}

func TestOperationCycleMarketFailureProducesNoDecision(t *testing.T) {
	f := newFixture()
	f.market.snapshot = nil
	f.market.err = errors.New("invalid price: USDT is zero")
	f.decider.decision = types.Decision{Action: types.ActionLeverageUp, Confidence: 0.8, Reasoning: "room", RiskLevel: types.RiskLow}
	l := f.build(t)

	assert.True(t, l.RunOperationCycle(context.Background()))
	assert.Equal(t, 0, f.decider.calls)
	assert.Empty(t, f.emitter.taskTypes())
	assert.Equal(t, int64(1), l.Runtime().Snapshot().FailedOperations)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Cycles.WithLabelValues(metrics.CYCLE_OPERATION, metrics.OUTCOME_FAILED)))
}

func TestOperationCycleRecoversPanic(t *testing.T) {
	f := newFixture()
	f.position.panics = true
	l := f.build(t)

	assert.True(t, l.RunOperationCycle(context.Background()))
	assert.Equal(t, int64(1), l.Runtime().Snapshot().FailedOperations)

	// the guard was released
	f.position.panics = false
	assert.True(t, l.RunOperationCycle(context.Background()))
	assert.Equal(t, int64(2), l.Runtime().Snapshot().Operations)
}

func TestOperationCycleSkipsWhileRunning(t *testing.T) {
	f := newFixture()
	f.vault.entered = make(chan struct{})
	f.vault.release = make(chan struct{})
	l := f.build(t)

	done := make(chan bool)
	go func() { done <- l.RunOperationCycle(context.Background()) }()
	<-f.vault.entered

	assert.False(t, l.RunOperationCycle(context.Background()))
	assert.Equal(t, int64(1), l.Runtime().GetCurrentCycleNumber())

	close(f.vault.release)
	assert.True(t, <-done)

	status := l.Runtime().Snapshot()
	assert.Equal(t, int64(1), status.Operations)
	assert.Equal(t, int64(1), status.SkippedOperations)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Cycles.WithLabelValues(metrics.CYCLE_OPERATION, metrics.OUTCOME_SKIPPED)))
}

func TestEmergencyCycleRunsWhileOperationBusy(t *testing.T) {
	f := newFixture()
	f.vault.entered = make(chan struct{})
	f.vault.release = make(chan struct{})
	f.position.health = &types.HealthResult{HealthFactor: 1.8, Liquidity: 200, Status: types.HealthHealthy}
	l := f.build(t)

	done := make(chan bool)
	go func() { done <- l.RunOperationCycle(context.Background()) }()
	<-f.vault.entered

	assert.True(t, l.RunEmergencyCycle(context.Background()))
	close(f.vault.release)
	<-done
	assert.Equal(t, int64(1), l.Runtime().Snapshot().EmergencyChecks)
}

func TestEmergencyCycleTasks(t *testing.T) {
	tests := []struct {
		name   string
		health *types.HealthResult
		want   []types.TaskType
	}{
		{"healthy", &types.HealthResult{HealthFactor: 1.8, Liquidity: 200, Status: types.HealthHealthy}, []types.TaskType{}},
		{"warning", &types.HealthResult{HealthFactor: 1.4, Liquidity: 10, Status: types.HealthHealthy}, []types.TaskType{types.TaskLeverageDown}},
		{"critical", &types.HealthResult{HealthFactor: 0.9, Shortfall: 15, IsUnderwater: true, Status: types.HealthCriticalUnderwater}, []types.TaskType{types.TaskEmergencyStop}},
		{"no position", &types.HealthResult{HealthFactor: types.NO_POSITION_HEALTH_FACTOR, Status: types.HealthNoPosition}, []types.TaskType{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.position.health = tt.health
			l := f.build(t)

			assert.True(t, l.RunEmergencyCycle(context.Background()))
			assert.Equal(t, tt.want, f.emitter.taskTypes())

			status := l.Runtime().Snapshot()
			require.NotNil(t, status.LastHealthFactor)
			assert.Equal(t, tt.health.HealthFactor, *status.LastHealthFactor)
			assert.Equal(t, tt.health.HealthFactor, testutil.ToFloat64(f.metrics.HealthFactor.WithLabelValues("cheap")))
		})
	}
}

func TestEmergencyCycleUnknownHealthEmitsNothing(t *testing.T) {
	f := newFixture()
	f.position.err = errors.New("rpc unreachable")
	l := f.build(t)

	assert.True(t, l.RunEmergencyCycle(context.Background()))
	assert.Empty(t, f.emitter.taskTypes())
	assert.Nil(t, l.Runtime().Snapshot().LastHealthFactor)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Cycles.WithLabelValues(metrics.CYCLE_EMERGENCY, metrics.OUTCOME_FAILED)))
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture()
	l := f.build(t)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(stopped)
	}()

	require.Eventually(t, func() bool {
		return l.Runtime().GetCurrentCycleNumber() == 1
	}, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	l.LogSummary()
}
