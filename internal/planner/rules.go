package planner

import (
	"fmt"

	"github.com/kilolend/lvm/internal/config"
	"github.com/kilolend/lvm/internal/types"
)

// Fixed stake/supply directives for a LEVERAGE_UP turn.
const (
	STAKE_ALL_KAIA    = "ALL_KAIA"
	SUPPLY_ALL_STKAIA = "ALL_STKAIA"
)

// RuleBased is the deterministic strategy. It is the default and the fallback for the model.
//
//	no lending position      -> HOLD            (0.9,  LOW)
//	hf < emergency           -> EMERGENCY_STOP  (0.95, CRITICAL)
//	emergency <= hf < safe   -> LEVERAGE_DOWN   (0.85, HIGH)
//	hf > max                 -> LEVERAGE_UP     (0.8,  MEDIUM)
//	otherwise                -> HOLD            (0.9,  LOW)
func RuleBased(snapshot *types.PositionSnapshot, risk types.RiskParameters) types.Decision {
	hf := snapshot.HealthFactor()
	var lending *types.LendingDetail
	if snapshot != nil {
		lending = snapshot.Lending
	}

	decision := types.Decision{Source: config.RULE_BASED_SOURCE}

	switch {
	case !lending.HasDebt():
		decision.Action = types.ActionHold
		decision.Confidence = 0.9
		decision.RiskLevel = types.RiskLow
		decision.Reasoning = "No lending position detected, monitoring only"
		decision.ExpectedHealthFactor = types.Float64Ptr(hf)

	case hf < risk.EmergencyThreshold:
		decision.Action = types.ActionEmergencyStop
		decision.Confidence = 0.95
		decision.RiskLevel = types.RiskCritical
		decision.Reasoning = fmt.Sprintf(
			"Health Factor %.4f is below emergency threshold %v. Immediate action required to prevent liquidation.",
			hf, risk.EmergencyThreshold)
		decision.ExpectedHealthFactor = types.Float64Ptr(config.EMERGENCY_EXPECTED_HEALTH_FACTOR)
		decision.Parameters = types.EmergencyStopParams{CurrentHF: hf, Urgency: string(types.RiskCritical)}

	case hf < risk.SafeHealthFactor:
		decision.Action = types.ActionLeverageDown
		decision.Confidence = 0.85
		decision.RiskLevel = types.RiskHigh
		decision.Reasoning = fmt.Sprintf(
			"Health Factor %.4f is below safe minimum %v. Reducing leverage to increase safety buffer.",
			hf, risk.SafeHealthFactor)
		decision.ExpectedHealthFactor = types.Float64Ptr(risk.TargetHealthFactor)
		decision.Parameters = types.LeverageDownParams{
			UnstakeAmount: config.LEVERAGE_DOWN_UNSTAKE_AMOUNT,
			RepayAmount:   config.LEVERAGE_DOWN_REPAY_AMOUNT,
		}

	case hf > risk.MaxHealthFactor:
		available := lending.AvailableBorrowsUSD
		borrow := available * config.LEVERAGE_UP_BORROW_FRACTION
		decision.Action = types.ActionLeverageUp
		decision.Confidence = 0.8
		decision.RiskLevel = types.RiskMedium
		decision.Reasoning = fmt.Sprintf(
			"Health Factor %.4f is above maximum efficient level %v. Can safely increase leverage for better returns. Available to borrow: %.2f, will borrow %.2f (%.0f%% of max).",
			hf, risk.MaxHealthFactor, available, borrow, config.LEVERAGE_UP_BORROW_FRACTION*100)
		decision.ExpectedHealthFactor = types.Float64Ptr(risk.TargetHealthFactor)
		decision.Parameters = types.LeverageUpParams{
			BorrowAmount: borrow,
			StakeAmount:  STAKE_ALL_KAIA,
			SupplyAmount: SUPPLY_ALL_STKAIA,
			SwapToKaia:   borrow,
		}

	default:
		decision.Action = types.ActionHold
		decision.Confidence = 0.9
		decision.RiskLevel = types.RiskLow
		decision.Reasoning = fmt.Sprintf(
			"Health Factor %.4f is in optimal range (%v-%v). No action needed, position performing well.",
			hf, risk.SafeHealthFactor, risk.MaxHealthFactor)
		decision.ExpectedHealthFactor = types.Float64Ptr(hf)
	}

	return decision
}
