package lvm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kilolend/lvm/internal/datafetcher"
	"github.com/kilolend/lvm/internal/metrics"
	"github.com/kilolend/lvm/internal/position"
	"github.com/kilolend/lvm/internal/types"
	"github.com/kilolend/lvm/internal/vault"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var (
	ErrLendingStateUnknown = errors.New("lending state unknown")
	ErrMarketUnavailable   = errors.New("market snapshot unavailable")
	ErrCyclePanicked       = errors.New("cycle panicked")
)

// RunOperationCycle runs one full operation cycle. It returns false without doing anything
// when another operation cycle is still in progress.
func (l *LVM) RunOperationCycle(ctx context.Context) (ran bool) {
	if !l.isRunning.CompareAndSwap(false, true) {
		l.logger.Debug().Msg("Operation cycle still in progress, skipping tick")
		l.runtime.RecordSkippedOperation()
		l.observeCycle(metrics.CYCLE_OPERATION, metrics.OUTCOME_SKIPPED, 0)
		return false
	}
	defer l.isRunning.Store(false)

	cycleStart := l.now()
	cycleNumber := l.runtime.IncrementCycleNumber()

	// Generate unique cycle ID for tracing logs across the entire cycle
	cycleLogger := l.logger.With().
		Str("cycle_id", uuid.New().String()).
		Int64("cycle", cycleNumber).
		Logger()

	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrCyclePanicked, r)
		}
		took := l.now().Sub(cycleStart)
		if err != nil {
			cycleLogger.Error().Err(err).Dur("duration", took).Msg("Operation cycle aborted")
			l.runtime.RecordFailedOperation()
			l.observeCycle(metrics.CYCLE_OPERATION, metrics.OUTCOME_FAILED, took)
			return
		}
		cycleLogger.Info().Dur("duration", took).Msg("--- Operation cycle completed ---")
		l.observeCycle(metrics.CYCLE_OPERATION, metrics.OUTCOME_COMPLETED, took)
	}()

	ran = true
	cycleLogger.Info().Time("timestamp", cycleStart).Msg("--- Starting operation cycle ---")
	err = l.operate(ctx, cycleLogger, cycleStart)
	return ran
}

// operate is the body of the operation cycle. A returned error aborts the cycle.
func (l *LVM) operate(ctx context.Context, cycleLogger zerolog.Logger, cycleStart time.Time) error {
	// Step 1: vault liquidity, independent of the rest of the cycle
	cycleLogger.Info().Msg("Step 1: Checking vault liquidity...")
	l.checkLiquidity(ctx, cycleLogger)

	// Step 2: position
	cycleLogger.Info().Msg("Step 2: Reading position snapshot...")
	snapshot := l.position.FullSnapshot(ctx)
	if snapshot == nil || snapshot.Lending == nil {
		cycleLogger.Warn().Err(ErrLendingStateUnknown).Msg("Skipping decision this cycle")
		l.runtime.RecordOperation(l.now(), l.now().Sub(cycleStart), "")
		return nil
	}
	hf := snapshot.Lending.HealthFactor
	band := position.HealthStatus(hf, l.thresholds)
	l.runtime.RecordHealth(hf, string(band))
	if l.metrics != nil {
		l.metrics.HealthFactor.WithLabelValues("detailed").Set(hf)
	}
	cycleLogger.Info().
		Float64("healthFactor", hf).
		Str("band", string(band)).
		Float64("collateralUSD", snapshot.Lending.TotalCollateralUSD).
		Float64("debtUSD", snapshot.Lending.TotalDebtUSD).
		Float64("kaia", snapshot.Balances.KAIA).
		Float64("stKaia", snapshot.Balances.StKAIA).
		Float64("usdt", snapshot.Balances.USDT).
		Msg("Step 2: Position snapshot complete.")

	// Step 3: market
	cycleLogger.Info().Msg("Step 3: Fetching market data...")
	market, err := l.market.MarketSnapshot(ctx)
	if err != nil {
		return errors.Join(ErrMarketUnavailable, err)
	}
	condition := datafetcher.MarketCondition(*market)
	cycleLogger.Info().
		Float64("kaiaPrice", market.Prices.KAIA).
		Float64("borrowRate", market.LendingRates.Borrow).
		Float64("utilization", market.UtilizationRate).
		Str("condition", string(condition.Condition)).
		Strs("factors", condition.Factors).
		Msg("Step 3: Market data fetched.")

	// Step 4: risk
	assessment := l.risk.Score(snapshot, *market)
	if l.metrics != nil {
		l.metrics.RiskScore.Set(assessment.OverallScore)
	}
	cycleLogger.Info().
		Float64("score", assessment.OverallScore).
		Str("level", string(assessment.RiskLevel)).
		Str("recommendation", assessment.Recommendation).
		Msg("Step 4: Risk assessed.")

	// Step 5: decision, then the one-directional override
	decision := l.decider.Decide(ctx, snapshot, market)
	decision = l.risk.AdjustDecision(decision, assessment)
	if l.metrics != nil {
		l.metrics.Decisions.WithLabelValues(string(decision.Action), decision.Source).Inc()
	}
	cycleLogger.Info().
		Str("action", string(decision.Action)).
		Float64("confidence", decision.Confidence).
		Str("riskLevel", string(decision.RiskLevel)).
		Str("source", decision.Source).
		Str("reasoning", decision.Reasoning).
		Msg("Step 5: Decision made.")

	// Step 6: task
	if decision.Action != types.ActionHold {
		task, err := l.builder.FromDecision(decision, snapshot)
		if err != nil {
			return fmt.Errorf("building %s task: %w", decision.Action, err)
		}
		l.emit(ctx, cycleLogger, task)
	} else {
		cycleLogger.Info().Msg("Step 6: HOLD, no task emitted.")
	}

	l.runtime.RecordOperation(l.now(), l.now().Sub(cycleStart), string(decision.Action))
	return nil
}

// checkLiquidity reads vault metrics and pending withdrawals concurrently and emits a
// PREPARE_WITHDRAWAL task when liquidity falls short. Failures never abort the cycle.
func (l *LVM) checkLiquidity(ctx context.Context, cycleLogger zerolog.Logger) {
	var (
		vaultMetrics *types.VaultMetrics
		withdrawals  []types.WithdrawalEvent
	)

	var g errgroup.Group
	g.Go(func() error {
		m, err := l.vault.Metrics(ctx)
		if err != nil {
			cycleLogger.Warn().Err(err).Msg("Vault metrics unavailable")
			return nil
		}
		vaultMetrics = m
		return nil
	})
	g.Go(func() error {
		withdrawals = l.vault.PendingWithdrawals(ctx)
		return nil
	})
	_ = g.Wait()

	check := vault.ShouldPrepare(vaultMetrics, withdrawals)
	if l.metrics != nil {
		l.metrics.VaultDeficit.Set(check.Deficit)
	}
	cycleLogger.Info().
		Str("status", string(check.Status)).
		Int("pendingRequests", check.PendingRequests).
		Float64("deficit", check.Deficit).
		Str("reason", check.Reason).
		Msg("Step 1: Vault liquidity checked.")

	if !check.ShouldPrepare {
		return
	}
	task, err := l.builder.PrepareWithdrawal(check)
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Failed to build withdrawal preparation task")
		return
	}
	l.emit(ctx, cycleLogger, task)
}

// RunEmergencyCycle runs the cheap health check. It returns false without doing anything
// when another emergency cycle is still in progress.
func (l *LVM) RunEmergencyCycle(ctx context.Context) (ran bool) {
	if !l.emergencyCheckActive.CompareAndSwap(false, true) {
		l.logger.Debug().Msg("Emergency check still in progress, skipping tick")
		l.runtime.RecordSkippedEmergency()
		l.observeCycle(metrics.CYCLE_EMERGENCY, metrics.OUTCOME_SKIPPED, 0)
		return false
	}
	defer l.emergencyCheckActive.Store(false)

	ran = true
	start := l.now()
	check := l.runtime.IncrementEmergencyCheck()
	emergencyLogger := l.logger.With().Int64("emergency_check", check).Logger()

	outcome := metrics.OUTCOME_COMPLETED
	defer func() {
		if r := recover(); r != nil {
			emergencyLogger.Error().Interface("panic", r).Msg("Emergency check panicked")
			outcome = metrics.OUTCOME_FAILED
		}
		l.observeCycle(metrics.CYCLE_EMERGENCY, outcome, l.now().Sub(start))
	}()

	health, err := l.position.CheapHealthCheck(ctx)
	if err != nil {
		emergencyLogger.Error().Err(err).Msg("Emergency health check failed, health unknown")
		outcome = metrics.OUTCOME_FAILED
		return true
	}

	band := position.HealthStatus(health.HealthFactor, l.thresholds)
	l.runtime.RecordHealth(health.HealthFactor, string(band))
	if l.metrics != nil {
		l.metrics.HealthFactor.WithLabelValues("cheap").Set(health.HealthFactor)
	}

	event := emergencyLogger.Info()
	if band == types.BandCritical || band == types.BandWarning {
		event = emergencyLogger.Warn()
	}
	event.
		Float64("healthFactor", health.HealthFactor).
		Str("status", string(health.Status)).
		Str("band", string(band)).
		Msg("Emergency health check")

	if task := l.builder.HealthAlert(health); task != nil {
		l.emit(ctx, emergencyLogger, task)
	}
	return true
}

// emit submits a task and records the outcome. Submission failures are logged, never returned.
func (l *LVM) emit(ctx context.Context, log zerolog.Logger, task *types.Task) {
	err := l.emitter.Emit(ctx, task)
	l.runtime.RecordTask(err)
	if l.metrics != nil {
		l.metrics.ObserveTask(string(task.TaskType), err)
	}
	if err != nil {
		log.Error().Err(err).Str("taskId", task.TaskID).Str("taskType", string(task.TaskType)).Msg("Task submission failed")
		return
	}
	log.Info().Str("taskId", task.TaskID).Str("taskType", string(task.TaskType)).Msg("Task submitted")
}

func (l *LVM) observeCycle(kind, outcome string, took time.Duration) {
	if l.metrics != nil {
		l.metrics.ObserveCycle(kind, outcome, took)
	}
}
