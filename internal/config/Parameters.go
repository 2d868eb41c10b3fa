/*

This file contains the default risk parameters and the fixed constants of the monitor.

The defaults target a KAIA -> stKAIA -> supply -> borrow USDT -> swap -> restake loop on a
Compound-v2 style market. Every threshold below is overridable from the environment, but the
ordering EMERGENCY < SAFE <= TARGET <= MAX is enforced at startup.

*/

package config

import (
	"fmt"
	"time"

	"github.com/kilolend/lvm/internal/types"
)

const (
	DEFAULT_OPERATION_INTERVAL_MINUTES = 100.0
	DEFAULT_EMERGENCY_INTERVAL_MINUTES = 15.0

	DEFAULT_AWS_REGION       = "ap-southeast-1"
	DEFAULT_BEDROCK_MODEL_ID = "apac.anthropic.claude-sonnet-4-20250514-v1:0"

	DEFAULT_BLOCK_TIME_SECONDS   = 1.0
	DEFAULT_RPC_RATE_PER_SECOND  = 20.0
	DEFAULT_CALL_TIMEOUT_SECONDS = 15.0
	DEFAULT_STATUS_PORT          = "8080"

	USDT_DECIMALS   = 6
	NATIVE_DECIMALS = 18

	RULE_BASED_SOURCE = "Rule-Based"
	STRATEGY_TYPE     = "KAIA_LEVERAGE_VAULT"
	BOT_VERSION       = "2.0.0"

	LENDING_PROTOCOL = "KiloLend"
	STAKING_PROTOCOL = "Lair Finance"
	DEX_PROTOCOL     = "DragonSwap"
)

const (
	// Used by the cheap health check to approximate total debt from shortfall.
	// Rationale: the account-liquidity primitive only reports shortfall, not debt. Assuming an
	// 85% collateral factor gives debt = shortfall / 0.15. Changing this constant shifts where
	// the emergency threshold trips, so it stays fixed.
	ASSUMED_COLLATERAL_FACTOR = 0.85

	// Lower bound on the approximated health factor when underwater.
	MIN_APPROX_HEALTH_FACTOR = 0.1

	// Base and scale of the healthy-path approximation: hf = base + liquidity / scale.
	HEALTHY_APPROX_BASE  = 1.5
	HEALTHY_APPROX_SCALE = 1000.0

	// Fraction of available borrowing headroom used by a LEVERAGE_UP suggestion.
	// Rationale: borrowing the theoretical maximum leaves no room for a price move between
	// decision and execution. 70% keeps the post-action health factor comfortably above SAFE.
	LEVERAGE_UP_BORROW_FRACTION = 0.7

	// Fixed LEVERAGE_DOWN suggestion.
	LEVERAGE_DOWN_UNSTAKE_AMOUNT = 50.0
	LEVERAGE_DOWN_REPAY_AMOUNT   = 40.0

	// Health factor an emergency unwind is expected to restore.
	EMERGENCY_EXPECTED_HEALTH_FACTOR = 2.5

	// Upper edge of the SAFE band; between this and MAX the position is OPTIMAL.
	SAFE_BAND_UPPER = 1.7

	// Withdrawal liquidity buffer applied to the total requested assets.
	// Rationale: share price drifts between request and processing; 2% covers it.
	WITHDRAWAL_BUFFER = 1.02

	// Price cache lifetime.
	PRICE_CACHE_TTL = 5 * time.Minute

	// Remote call timeouts.
	PRICE_FEED_TIMEOUT  = 5 * time.Second
	TASK_SUBMIT_TIMEOUT = 10 * time.Second
	SCAN_TIMEOUT        = 10 * time.Second
	MODEL_TIMEOUT       = 60 * time.Second

	// Withdrawal scan windows.
	// Rationale: many public RPC providers reject eth_getLogs over large ranges. Six hours of
	// blocks stays under common limits; the two hour retry covers stricter providers.
	PRIMARY_SCAN_WINDOW = 6 * time.Hour
	RETRY_SCAN_WINDOW   = 2 * time.Hour

	// Upper bound for the shutdown status log.
	SHUTDOWN_GRACE = 5 * time.Second
)

// DefaultRiskParameters is the baseline threshold set. Overridden per field from the environment.
var DefaultRiskParameters = types.RiskParameters{
	MinHealthFactor: 1.2,
	// Rationale: the hard floor. Nothing the bot suggests should knowingly land below it.

	TargetHealthFactor: 1.6,
	// Rationale: the leverage loop stops here. Far enough above SAFE that an ordinary KAIA
	// drawdown does not immediately trigger a deleverage.

	MaxHealthFactor: 2.0,
	// Rationale: above 2.0 the position carries too little leverage to justify the borrow cost.

	EmergencyThreshold: 1.3,
	// Rationale: stKAIA collateral factors sit near 0.8. A 1.3 health factor still leaves a
	// ~23% price move before liquidation, enough time for an operator to unwind.

	SafeHealthFactor: 1.5,
	// Rationale: between 1.3 and 1.5 the bot asks for a partial deleverage rather than a full stop.
}

// riskEnv lists the environment overrides for each risk parameter.
var riskEnv = []struct {
	key   string
	field func(*types.RiskParameters) *float64
}{
	{"MIN_HEALTH_FACTOR", func(p *types.RiskParameters) *float64 { return &p.MinHealthFactor }},
	{"TARGET_HEALTH_FACTOR", func(p *types.RiskParameters) *float64 { return &p.TargetHealthFactor }},
	{"MAX_HEALTH_FACTOR", func(p *types.RiskParameters) *float64 { return &p.MaxHealthFactor }},
	{"EMERGENCY_THRESHOLD", func(p *types.RiskParameters) *float64 { return &p.EmergencyThreshold }},
	{"SAFE_HEALTH_FACTOR", func(p *types.RiskParameters) *float64 { return &p.SafeHealthFactor }},
}

func loadRiskParameters() (types.RiskParameters, error) {
	params := DefaultRiskParameters
	for _, e := range riskEnv {
		dest := e.field(&params)
		value, err := getEnvAsFloat64OrDefault(e.key, *dest)
		if err != nil {
			return types.RiskParameters{}, err
		}
		*dest = value
	}
	return params, nil
}

// ValidateRiskParameters enforces 0 < emergency < safe <= target <= max and min <= target.
func ValidateRiskParameters(p types.RiskParameters) error {
	if p.EmergencyThreshold <= 0 {
		return fmt.Errorf("%w: EMERGENCY_THRESHOLD must be positive, got %.4f", ErrInvalidThreshold, p.EmergencyThreshold)
	}
	if p.EmergencyThreshold >= p.SafeHealthFactor {
		return fmt.Errorf("%w: EMERGENCY_THRESHOLD %.4f must be below SAFE_HEALTH_FACTOR %.4f", ErrInvalidThreshold, p.EmergencyThreshold, p.SafeHealthFactor)
	}
	if p.SafeHealthFactor > p.TargetHealthFactor {
		return fmt.Errorf("%w: SAFE_HEALTH_FACTOR %.4f must not exceed TARGET_HEALTH_FACTOR %.4f", ErrInvalidThreshold, p.SafeHealthFactor, p.TargetHealthFactor)
	}
	if p.TargetHealthFactor > p.MaxHealthFactor {
		return fmt.Errorf("%w: TARGET_HEALTH_FACTOR %.4f must not exceed MAX_HEALTH_FACTOR %.4f", ErrInvalidThreshold, p.TargetHealthFactor, p.MaxHealthFactor)
	}
	if p.MinHealthFactor > p.TargetHealthFactor {
		return fmt.Errorf("%w: MIN_HEALTH_FACTOR %.4f must not exceed TARGET_HEALTH_FACTOR %.4f", ErrInvalidThreshold, p.MinHealthFactor, p.TargetHealthFactor)
	}
	return nil
}

// BlocksPerYear converts the nominal block time into blocks per 365-day year.
func BlocksPerYear(blockTime time.Duration) float64 {
	if blockTime <= 0 {
		return 0
	}
	return float64(365*24*time.Hour) / float64(blockTime)
}

// BlocksIn returns how many blocks the chain produces in the given window.
func BlocksIn(window, blockTime time.Duration) uint64 {
	if blockTime <= 0 || window <= 0 {
		return 0
	}
	return uint64(window / blockTime)
}
