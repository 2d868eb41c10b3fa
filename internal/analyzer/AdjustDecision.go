/*

This file contains the risk override applied to every decision after scoring.

*/

package analyzer

import (
	"fmt"

	"github.com/kilolend/lvm/internal/config"
	"github.com/kilolend/lvm/internal/types"
)

// AdjustDecision demotes LEVERAGE_UP when the assessment is HIGH or CRITICAL and passes every
// other combination through unchanged. It never moves a decision toward more risk.
//
//   - CRITICAL + LEVERAGE_UP becomes HOLD with no parameters.
//   - HIGH + LEVERAGE_UP becomes LEVERAGE_DOWN with the standard unwind parameters.
//
// The original reasoning is kept after the override rationale.
func (s *RiskScorer) AdjustDecision(decision types.Decision, assessment types.RiskAssessment) types.Decision {
	if decision.Action != types.ActionLeverageUp {
		return decision
	}

	adjusted := decision
	switch assessment.RiskLevel {
	case types.RiskCritical:
		adjusted.Action = types.ActionHold
		adjusted.Parameters = nil
	case types.RiskHigh:
		adjusted.Action = types.ActionLeverageDown
		adjusted.Parameters = types.LeverageDownParams{
			UnstakeAmount: config.LEVERAGE_DOWN_UNSTAKE_AMOUNT,
			RepayAmount:   config.LEVERAGE_DOWN_REPAY_AMOUNT,
		}
	default:
		return decision
	}

	adjusted.RiskLevel = assessment.RiskLevel
	adjusted.Reasoning = fmt.Sprintf("Risk override: %s. Original: %s", assessment.Recommendation, decision.Reasoning)

	s.logger.Warn().
		Str("from", string(decision.Action)).
		Str("to", string(adjusted.Action)).
		Str("riskLevel", string(assessment.RiskLevel)).
		Float64("overallScore", assessment.OverallScore).
		Msg("Risk override applied")

	return adjusted
}
