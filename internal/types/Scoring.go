/*

This file contains the risk parameters and the risk assessment produced every operation cycle.

*/

package types

// RiskParameters are the health factor thresholds the decision and override logic relies on.
// They must satisfy 0 < Emergency < Safe <= Target <= Max and Min <= Target.
type RiskParameters struct {
	MinHealthFactor    float64 `json:"min_health_factor"`    // Floor the operator never wants to cross deliberately.
	TargetHealthFactor float64 `json:"target_health_factor"` // Health factor the leverage loop aims for.
	MaxHealthFactor    float64 `json:"max_health_factor"`    // Above this the position is capital-inefficient.
	EmergencyThreshold float64 `json:"emergency_threshold"`  // Below this an emergency unwind is requested.
	SafeHealthFactor   float64 `json:"safe_health_factor"`   // Below this leverage is reduced.
}

// RiskLevel buckets the overall score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// Valid reports whether the level is one of the four known buckets.
func (l RiskLevel) Valid() bool {
	switch l {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return true
	}
	return false
}

// RiskWeights weight the five sub-scores. They must sum to 1.
type RiskWeights struct {
	HealthFactor     float64 `json:"health_factor"`
	MarketVolatility float64 `json:"market_volatility"`
	UtilizationRate  float64 `json:"utilization_rate"`
	BorrowRate       float64 `json:"borrow_rate"`
	DepegRisk        float64 `json:"depeg_risk"`
}

// Sum adds up all weights.
func (w RiskWeights) Sum() float64 {
	return w.HealthFactor + w.MarketVolatility + w.UtilizationRate + w.BorrowRate + w.DepegRisk
}

// RiskSubScores are each in [0,1], higher is safer.
type RiskSubScores struct {
	HealthFactor     float64 `json:"health_factor"`
	MarketVolatility float64 `json:"market_volatility"`
	UtilizationRate  float64 `json:"utilization_rate"`
	BorrowRate       float64 `json:"borrow_rate"`
	DepegRisk        float64 `json:"depeg_risk"`
}

type RiskAssessment struct {
	OverallScore             float64       `json:"overall_score"` // 0..100
	RiskLevel                RiskLevel     `json:"risk_level"`
	Scores                   RiskSubScores `json:"scores"`
	Recommendation           string        `json:"recommendation"`
	ShouldReduceRisk         bool          `json:"should_reduce_risk"`
	ShouldIncreaseEfficiency bool          `json:"should_increase_efficiency"`
}
