package tasks

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kilolend/lvm/internal/config"
	"github.com/kilolend/lvm/internal/logger"
	"github.com/kilolend/lvm/internal/types"
	"github.com/rs/zerolog"
)

var (
	ErrInvalidConfig    = errors.New("invalid task builder configuration")
	ErrHoldHasNoTask    = errors.New("HOLD decisions do not produce tasks")
	ErrNothingToPrepare = errors.New("liquidity check does not require preparation")
	ErrInvalidTask      = errors.New("task cannot be built from decision")
)

const (
	TASK_ID_PREFIX = "TASK_"
	// Leverage ratio reported when equity is zero or negative.
	UNDERWATER_LEVERAGE_RATIO = 999.0
	// Confidence of a liquidity preparation task; the deficit is a measurement, not an estimate.
	PREPARE_WITHDRAWAL_CONFIDENCE = 1.0
)

// Config holds the configuration for creating a Builder.
type Config struct {
	UserAddress string
	Risk        types.RiskParameters

	Now   func() time.Time // optional; defaults to time.Now
	NewID func() string    // optional; defaults to TASK_<unix ms>_<8 hex>
}

// Builder maps decisions, liquidity deficits and emergency health reads onto intake tasks.
// It holds no mutable state, so the same inputs always yield the same task apart from the
// id and timestamps.
type Builder struct {
	userAddress string
	risk        types.RiskParameters
	now         func() time.Time
	newID       func() string
	logger      zerolog.Logger
}

// NewBuilder validates the configuration and builds a Builder.
func NewBuilder(cfg Config) (*Builder, error) {
	if cfg.UserAddress == "" {
		return nil, fmt.Errorf("%w: user address is required", ErrInvalidConfig)
	}
	if err := config.ValidateRiskParameters(cfg.Risk); err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}

	b := &Builder{
		userAddress: cfg.UserAddress,
		risk:        cfg.Risk,
		now:         cfg.Now,
		newID:       cfg.NewID,
		logger:      logger.GetForComponent("task_builder"),
	}
	if b.now == nil {
		b.now = time.Now
	}
	if b.newID == nil {
		b.newID = func() string {
			return fmt.Sprintf("%s%d_%s", TASK_ID_PREFIX, b.now().UnixMilli(), uuid.NewString()[:8])
		}
	}
	return b, nil
}

// FromDecision builds the task for a non-HOLD decision.
func (b *Builder) FromDecision(decision types.Decision, snapshot *types.PositionSnapshot) (*types.Task, error) {
	if decision.Action == types.ActionHold {
		return nil, ErrHoldHasNoTask
	}
	if !decision.Action.Valid() {
		return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidTask, decision.Action)
	}

	var lending *types.LendingDetail
	if snapshot != nil {
		lending = snapshot.Lending
	}
	hfBefore := 0.0
	if lending != nil {
		hfBefore = lending.HealthFactor
	}

	task := b.base(types.TaskType(decision.Action), lending)
	task.AIReasoning = decision.Reasoning
	task.ConfidenceScore = decision.Confidence
	task.RiskAssessment = decision.RiskLevel
	task.HealthFactorBefore = hfBefore
	if decision.ExpectedHealthFactor != nil {
		task.HealthFactorAfter = *decision.ExpectedHealthFactor
	}
	if decision.Source != "" {
		task.AIModel = decision.Source
	}

	switch decision.Action {
	case types.ActionLeverageUp:
		p, _ := decision.Parameters.(types.LeverageUpParams)
		task.Steps = leverageUpSteps(p, b.risk)
		task.Parameters = p

	case types.ActionLeverageDown:
		p, ok := decision.Parameters.(types.LeverageDownParams)
		if !ok {
			p = types.LeverageDownParams{
				UnstakeAmount: config.LEVERAGE_DOWN_UNSTAKE_AMOUNT,
				RepayAmount:   config.LEVERAGE_DOWN_REPAY_AMOUNT,
			}
		}
		task.Steps = leverageDownSteps(p)
		task.Parameters = p

	case types.ActionEmergencyStop:
		task.Status = types.StatusUrgentOperatorAction
		task.Steps = emergencySteps()
		// Always taken from the snapshot so the operator sees the measured state.
		task.Parameters = types.EmergencyStopParams{CurrentHF: hfBefore, Urgency: string(types.RiskCritical)}

	case types.ActionRebalance:
		hf := types.NO_POSITION_HEALTH_FACTOR
		if lending != nil {
			hf = lending.HealthFactor
		}
		task.Steps = rebalanceSteps(hf, b.risk)
		task.Parameters = types.RebalanceParams{}
	}

	return task, nil
}

// PrepareWithdrawal builds the PREPARE_WITHDRAWAL task for a liquidity deficit.
func (b *Builder) PrepareWithdrawal(check types.LiquidityCheck) (*types.Task, error) {
	if !check.ShouldPrepare {
		return nil, ErrNothingToPrepare
	}

	params := types.PrepareWithdrawalParams{
		Deficit:         check.Deficit,
		RequiredAssets:  check.RequiredAssets,
		CurrentLiquid:   check.CurrentLiquid,
		PendingRequests: check.PendingRequests,
	}

	task := b.base(types.TaskPrepareWithdrawal, nil)
	task.AIReasoning = check.Recommendation
	task.ConfidenceScore = PREPARE_WITHDRAWAL_CONFIDENCE
	task.RiskAssessment = types.RiskMedium
	task.AIModel = config.RULE_BASED_SOURCE
	task.Steps = prepareWithdrawalSteps(params)
	task.Parameters = params
	return task, nil
}

// HealthAlert maps a cheap health check onto an EMERGENCY_STOP task below the emergency
// threshold or a LEVERAGE_DOWN task below the safe threshold. It returns nil when neither applies.
func (b *Builder) HealthAlert(health *types.HealthResult) *types.Task {
	if health == nil {
		return nil
	}
	hf := health.HealthFactor
	snapshot := &types.PositionSnapshot{Lending: LendingFromHealth(health)}

	var decision types.Decision
	switch {
	case hf < b.risk.EmergencyThreshold:
		decision = types.Decision{
			Action:     types.ActionEmergencyStop,
			Confidence: 0.95,
			RiskLevel:  types.RiskCritical,
			Reasoning: fmt.Sprintf("Emergency check: health factor %.4f (%s) is below emergency threshold %v",
				hf, health.Status, b.risk.EmergencyThreshold),
			ExpectedHealthFactor: types.Float64Ptr(config.EMERGENCY_EXPECTED_HEALTH_FACTOR),
		}
	case hf < b.risk.SafeHealthFactor:
		decision = types.Decision{
			Action:     types.ActionLeverageDown,
			Confidence: 0.85,
			RiskLevel:  types.RiskHigh,
			Reasoning: fmt.Sprintf("Emergency check: health factor %.4f (%s) is below safe threshold %v",
				hf, health.Status, b.risk.SafeHealthFactor),
			ExpectedHealthFactor: types.Float64Ptr(b.risk.TargetHealthFactor),
		}
	default:
		return nil
	}
	decision.Source = config.RULE_BASED_SOURCE
	return b.alertTask(decision, snapshot)
}

// alertTask builds the emergency loop's task. The emergency loop has no error path, so a build
// failure is logged and yields no task.
func (b *Builder) alertTask(decision types.Decision, snapshot *types.PositionSnapshot) *types.Task {
	task, err := b.FromDecision(decision, snapshot)
	if err != nil {
		event := b.logger.Error().
			Err(err).
			Str("action", string(decision.Action))
		if snapshot != nil && snapshot.Lending != nil {
			event = event.Float64("healthFactor", snapshot.Lending.HealthFactor)
		}
		event.Msg("Failed to build emergency health alert task")
		return nil
	}
	return task
}

// LendingFromHealth reconstructs a coarse lending view from the cheap health check. Debt is
// only known when the account is underwater, through the same assumed collateral factor the
// health check uses.
func LendingFromHealth(health *types.HealthResult) *types.LendingDetail {
	lending := &types.LendingDetail{
		HealthFactor:        health.HealthFactor,
		AvailableBorrowsUSD: health.Liquidity,
		ShortfallUSD:        health.Shortfall,
		IsUnderwater:        health.IsUnderwater,
		ErrorCode:           health.ErrorCode,
	}
	if health.Shortfall > 0 {
		lending.TotalDebtUSD = health.Shortfall / (1 - config.ASSUMED_COLLATERAL_FACTOR)
		lending.TotalCollateralUSD = lending.TotalDebtUSD * health.HealthFactor
	}
	return lending
}

// LeverageRatio is collateral / (collateral - debt). It is 1 with neither collateral nor debt
// and UNDERWATER_LEVERAGE_RATIO when equity is not positive, including debt with no collateral.
func LeverageRatio(lending *types.LendingDetail) float64 {
	if lending == nil || (lending.TotalCollateralUSD == 0 && lending.TotalDebtUSD <= 0) {
		return 1.0
	}
	equity := lending.TotalCollateralUSD - lending.TotalDebtUSD
	if equity <= 0 {
		return UNDERWATER_LEVERAGE_RATIO
	}
	return lending.TotalCollateralUSD / equity
}

func (b *Builder) base(taskType types.TaskType, lending *types.LendingDetail) *types.Task {
	now := b.now().UnixMilli()
	task := &types.Task{
		TaskID:        b.newID(),
		Timestamp:     now,
		UpdatedAt:     now,
		UserAddress:   b.userAddress,
		TaskType:      taskType,
		Status:        types.StatusPendingOperator,
		Description:   Describe(taskType),
		StrategyType:  config.STRATEGY_TYPE,
		LeverageRatio: LeverageRatio(lending),
		Steps:         holdSteps(),
		Parameters:    types.HoldParams{},
		RetryCount:    0,
		BotVersion:    config.BOT_VERSION,
		AIModel:       config.RULE_BASED_SOURCE,
	}
	if lending != nil {
		task.TotalCollateralUSD = lending.TotalCollateralUSD
		task.TotalDebtUSD = lending.TotalDebtUSD
	}
	return task
}
