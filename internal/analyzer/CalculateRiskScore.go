/*

This file contains the RiskScorer: five step-function sub-scores over the position and the market,
combined with fixed weights into a 0-100 score and a discrete risk level.

*/

package analyzer

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/kilolend/lvm/internal/config"
	"github.com/kilolend/lvm/internal/logger"
	"github.com/kilolend/lvm/internal/types"
	"github.com/rs/zerolog"
)

var ErrInvalidRiskWeights = errors.New("invalid risk weights")
var ErrInvalidRiskParameters = errors.New("invalid risk parameters")

// WEIGHT_SUM_TOLERANCE absorbs float rounding when checking that weights sum to 1.
const WEIGHT_SUM_TOLERANCE = 1e-9

// Score cutoffs for the level buckets and the recommendation text.
const (
	LOW_RISK_SCORE       = 80.0
	MEDIUM_RISK_SCORE    = 60.0
	HIGH_RISK_SCORE      = 40.0
	VERY_SAFE_SCORE      = 85.0
	WEAK_SUBSCORE_CUTOFF = 0.5
)

// DefaultRiskWeights weight health factor highest since it alone decides liquidation.
var DefaultRiskWeights = types.RiskWeights{
	HealthFactor:     0.40,
	MarketVolatility: 0.20,
	UtilizationRate:  0.15,
	BorrowRate:       0.15,
	DepegRisk:        0.10,
}

// RiskScorer scores a snapshot and demotes decisions that would add risk.
type RiskScorer struct {
	weights types.RiskWeights
	risk    types.RiskParameters
	logger  zerolog.Logger
}

// NewRiskScorer validates the weights and thresholds once; scoring itself cannot fail.
func NewRiskScorer(weights types.RiskWeights, risk types.RiskParameters) (*RiskScorer, error) {
	if err := ValidateRiskWeights(weights); err != nil {
		return nil, errors.Join(ErrInvalidRiskWeights, err)
	}
	if err := config.ValidateRiskParameters(risk); err != nil {
		return nil, errors.Join(ErrInvalidRiskParameters, err)
	}
	return &RiskScorer{
		weights: weights,
		risk:    risk,
		logger:  logger.GetForComponent("risk_scorer"),
	}, nil
}

// ValidateRiskWeights requires finite, non-negative weights summing to 1.
func ValidateRiskWeights(w types.RiskWeights) error {
	fields := []struct {
		name  string
		value float64
	}{
		{"health_factor", w.HealthFactor},
		{"market_volatility", w.MarketVolatility},
		{"utilization_rate", w.UtilizationRate},
		{"borrow_rate", w.BorrowRate},
		{"depeg_risk", w.DepegRisk},
	}
	for _, f := range fields {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return fmt.Errorf("%s weight is not finite", f.name)
		}
		if f.value < 0 {
			return fmt.Errorf("%s weight cannot be negative: %f", f.name, f.value)
		}
	}
	if sum := w.Sum(); math.Abs(sum-1) > WEIGHT_SUM_TOLERANCE {
		return fmt.Errorf("weights must sum to 1, got %f", sum)
	}
	return nil
}

// Weights returns the scorer's weights.
func (s *RiskScorer) Weights() types.RiskWeights {
	return s.weights
}

// Score computes the risk assessment for this cycle. A snapshot without a lending view is
// scored as having no position.
func (s *RiskScorer) Score(snapshot *types.PositionSnapshot, market types.MarketSnapshot) types.RiskAssessment {
	scores := types.RiskSubScores{
		HealthFactor:     ScoreHealthFactor(snapshot.HealthFactor(), s.risk),
		MarketVolatility: ScoreVolatility(market.Volatility),
		UtilizationRate:  ScoreUtilization(market.UtilizationRate),
		BorrowRate:       ScoreBorrowRate(market.LendingRates.Borrow),
		DepegRisk:        ScoreDepegRisk(market.Prices),
	}

	overall := (scores.HealthFactor*s.weights.HealthFactor +
		scores.MarketVolatility*s.weights.MarketVolatility +
		scores.UtilizationRate*s.weights.UtilizationRate +
		scores.BorrowRate*s.weights.BorrowRate +
		scores.DepegRisk*s.weights.DepegRisk) * 100

	assessment := types.RiskAssessment{
		OverallScore:             overall,
		RiskLevel:                RiskLevelFor(overall),
		Scores:                   scores,
		Recommendation:           Recommendation(overall, scores),
		ShouldReduceRisk:         overall < MEDIUM_RISK_SCORE,
		ShouldIncreaseEfficiency: overall > LOW_RISK_SCORE,
	}

	s.logger.Info().
		Float64("healthFactorScore", scores.HealthFactor).
		Float64("volatilityScore", scores.MarketVolatility).
		Float64("utilizationScore", scores.UtilizationRate).
		Float64("borrowRateScore", scores.BorrowRate).
		Float64("depegScore", scores.DepegRisk).
		Float64("overallScore", overall).
		Str("riskLevel", string(assessment.RiskLevel)).
		Str("recommendation", assessment.Recommendation).
		Msg("Risk assessment complete")

	return assessment
}

// ScoreHealthFactor follows the health bands: 0 critical, 0.3 warning, 0.6 safe, 1.0 optimal,
// 0.8 above max.
func ScoreHealthFactor(hf float64, risk types.RiskParameters) float64 {
	switch {
	case hf < risk.EmergencyThreshold:
		return 0.0
	case hf < risk.SafeHealthFactor:
		return 0.3
	case hf < config.SAFE_BAND_UPPER:
		return 0.6
	case hf <= risk.MaxHealthFactor:
		return 1.0
	default:
		return 0.8
	}
}

// ScoreVolatility maps the volatility label; unknown labels score as MEDIUM.
func ScoreVolatility(v types.VolatilityLabel) float64 {
	switch v {
	case types.VolatilityVeryLow:
		return 1.0
	case types.VolatilityLow:
		return 0.8
	case types.VolatilityHigh:
		return 0.3
	default:
		return 0.6
	}
}

// ScoreUtilization scores pool utilization in percent.
func ScoreUtilization(rate float64) float64 {
	switch {
	case rate < 50:
		return 1.0
	case rate < 70:
		return 0.8
	case rate < 85:
		return 0.6
	case rate < 95:
		return 0.3
	default:
		return 0.1
	}
}

// ScoreBorrowRate scores the annualized borrow rate in percent.
func ScoreBorrowRate(rate float64) float64 {
	switch {
	case rate < 5:
		return 1.0
	case rate < 8:
		return 0.8
	case rate < 12:
		return 0.6
	case rate < 15:
		return 0.3
	default:
		return 0.1
	}
}

// ScoreDepegRisk scores the absolute stKAIA premium over KAIA.
func ScoreDepegRisk(prices types.Prices) float64 {
	deviation := math.Abs(prices.StakedPremiumPercent())
	switch {
	case deviation < 1:
		return 1.0
	case deviation < 3:
		return 0.8
	case deviation < 5:
		return 0.6
	case deviation < 10:
		return 0.3
	default:
		return 0.1
	}
}

// RiskLevelFor buckets an overall score.
func RiskLevelFor(score float64) types.RiskLevel {
	switch {
	case score >= LOW_RISK_SCORE:
		return types.RiskLow
	case score >= MEDIUM_RISK_SCORE:
		return types.RiskMedium
	case score >= HIGH_RISK_SCORE:
		return types.RiskHigh
	default:
		return types.RiskCritical
	}
}

// Recommendation turns the score into operator guidance, naming the weak factors when the
// score calls for reducing risk.
func Recommendation(score float64, scores types.RiskSubScores) string {
	if score < HIGH_RISK_SCORE {
		return "URGENT: Reduce leverage immediately"
	}
	if score < MEDIUM_RISK_SCORE {
		issues := []string{}
		if scores.HealthFactor < WEAK_SUBSCORE_CUTOFF {
			issues = append(issues, "low HF")
		}
		if scores.MarketVolatility < WEAK_SUBSCORE_CUTOFF {
			issues = append(issues, "high volatility")
		}
		if scores.UtilizationRate < WEAK_SUBSCORE_CUTOFF {
			issues = append(issues, "high utilization")
		}
		return "Consider reducing risk due to: " + strings.Join(issues, ", ")
	}
	if score > VERY_SAFE_SCORE {
		return "Position very safe, can optimize for better returns"
	}
	return "Risk levels acceptable, maintain current strategy"
}
