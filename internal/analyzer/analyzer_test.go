package analyzer

import (
	"testing"

	"github.com/kilolend/lvm/internal/config"
	"github.com/kilolend/lvm/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScorer(t *testing.T) *RiskScorer {
	t.Helper()
	s, err := NewRiskScorer(DefaultRiskWeights, config.DefaultRiskParameters)
	require.NoError(t, err)
	return s
}

func snapshotWithHF(hf float64) *types.PositionSnapshot {
	return &types.PositionSnapshot{Lending: &types.LendingDetail{HealthFactor: hf, TotalDebtUSD: 100}}
}

func TestDefaultWeightsSumToOne(t *testing.T) {
	assert.InDelta(t, 1.0, DefaultRiskWeights.Sum(), WEIGHT_SUM_TOLERANCE)
	assert.NoError(t, ValidateRiskWeights(DefaultRiskWeights))
}

func TestNewRiskScorerRejectsBadWeights(t *testing.T) {
	bad := DefaultRiskWeights
	bad.DepegRisk = 0.2
	_, err := NewRiskScorer(bad, config.DefaultRiskParameters)
	assert.ErrorIs(t, err, ErrInvalidRiskWeights)

	negative := DefaultRiskWeights
	negative.HealthFactor = 0.6
	negative.UtilizationRate = -0.05
	_, err = NewRiskScorer(negative, config.DefaultRiskParameters)
	assert.ErrorIs(t, err, ErrInvalidRiskWeights)

	_, err = NewRiskScorer(DefaultRiskWeights, types.RiskParameters{EmergencyThreshold: 2, SafeHealthFactor: 1})
	assert.ErrorIs(t, err, ErrInvalidRiskParameters)
}

func TestScoreHealthFactor(t *testing.T) {
	risk := config.DefaultRiskParameters
	for _, hf := range []float64{0, 0.5, 1.0, 1.25, 1.2999} {
		assert.Equal(t, 0.0, ScoreHealthFactor(hf, risk), "hf=%v below emergency", hf)
	}
	assert.Equal(t, 0.3, ScoreHealthFactor(1.4, risk))
	assert.Equal(t, 0.6, ScoreHealthFactor(1.6, risk))
	assert.Equal(t, 1.0, ScoreHealthFactor(1.7, risk))
	assert.Equal(t, 1.0, ScoreHealthFactor(2.0, risk))
	assert.Equal(t, 0.8, ScoreHealthFactor(types.NO_POSITION_HEALTH_FACTOR, risk))
}

func TestStepScores(t *testing.T) {
	assert.Equal(t, 1.0, ScoreVolatility(types.VolatilityVeryLow))
	assert.Equal(t, 0.8, ScoreVolatility(types.VolatilityLow))
	assert.Equal(t, 0.6, ScoreVolatility(types.VolatilityMedium))
	assert.Equal(t, 0.3, ScoreVolatility(types.VolatilityHigh))
	assert.Equal(t, 0.6, ScoreVolatility("UNKNOWN"))

	assert.Equal(t, 1.0, ScoreUtilization(49.9))
	assert.Equal(t, 0.8, ScoreUtilization(50))
	assert.Equal(t, 0.6, ScoreUtilization(84))
	assert.Equal(t, 0.3, ScoreUtilization(85))
	assert.Equal(t, 0.1, ScoreUtilization(100))

	assert.Equal(t, 1.0, ScoreBorrowRate(4.9))
	assert.Equal(t, 0.8, ScoreBorrowRate(5))
	assert.Equal(t, 0.6, ScoreBorrowRate(11))
	assert.Equal(t, 0.3, ScoreBorrowRate(14))
	assert.Equal(t, 0.1, ScoreBorrowRate(15))

	assert.Equal(t, 1.0, ScoreDepegRisk(types.Prices{KAIA: 0.15, StKAIA: 0.1503}))
	assert.Equal(t, 0.8, ScoreDepegRisk(types.Prices{KAIA: 0.15, StKAIA: 0.153}))
	assert.Equal(t, 0.6, ScoreDepegRisk(types.Prices{KAIA: 0.15, StKAIA: 0.144}))
	assert.Equal(t, 0.3, ScoreDepegRisk(types.Prices{KAIA: 0.15, StKAIA: 0.162}))
	assert.Equal(t, 0.1, ScoreDepegRisk(types.Prices{KAIA: 0.15, StKAIA: 0.17}))
}

func TestScore(t *testing.T) {
	s := newTestScorer(t)

	tests := []struct {
		name           string
		snapshot       *types.PositionSnapshot
		market         types.MarketSnapshot
		score          float64
		level          types.RiskLevel
		recommendation string
		reduce         bool
		efficiency     bool
	}{
		{
			name:     "optimal position in calm market",
			snapshot: snapshotWithHF(1.8),
			market: types.MarketSnapshot{
				Prices:          types.Prices{KAIA: 0.15, StKAIA: 0.1503, USDT: 1},
				LendingRates:    types.LendingRates{Borrow: 5},
				UtilizationRate: 60,
				Volatility:      types.VolatilityLow,
			},
			score:          90,
			level:          types.RiskLow,
			recommendation: "Position very safe, can optimize for better returns",
			efficiency:     true,
		},
		{
			name:     "everything stressed",
			snapshot: snapshotWithHF(1.1),
			market: types.MarketSnapshot{
				Prices:          types.Prices{KAIA: 0.15, StKAIA: 0.17, USDT: 1},
				LendingRates:    types.LendingRates{Borrow: 16},
				UtilizationRate: 96,
				Volatility:      types.VolatilityHigh,
			},
			score:          10,
			level:          types.RiskCritical,
			recommendation: "URGENT: Reduce leverage immediately",
			reduce:         true,
		},
		{
			name:     "warning band with busy pool",
			snapshot: snapshotWithHF(1.4),
			market: types.MarketSnapshot{
				Prices:          types.Prices{KAIA: 0.15, StKAIA: 0.1503, USDT: 1},
				LendingRates:    types.LendingRates{Borrow: 6},
				UtilizationRate: 90,
				Volatility:      types.VolatilityMedium,
			},
			score:          50.5,
			level:          types.RiskHigh,
			recommendation: "Consider reducing risk due to: low HF, high utilization",
			reduce:         true,
		},
		{
			name:     "no lending view scores as no position",
			snapshot: &types.PositionSnapshot{},
			market: types.MarketSnapshot{
				Prices:          types.Prices{KAIA: 0.15, StKAIA: 0.1503, USDT: 1},
				LendingRates:    types.LendingRates{Borrow: 5},
				UtilizationRate: 60,
				Volatility:      types.VolatilityLow,
			},
			// 0.8*0.4 + 0.8*0.2 + 0.8*0.15 + 0.8*0.15 + 1.0*0.1
			score:          82,
			level:          types.RiskLow,
			recommendation: "Risk levels acceptable, maintain current strategy",
			efficiency:     true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := s.Score(tt.snapshot, tt.market)
			assert.InDelta(t, tt.score, a.OverallScore, 1e-9)
			assert.Equal(t, tt.level, a.RiskLevel)
			assert.Equal(t, tt.recommendation, a.Recommendation)
			assert.Equal(t, tt.reduce, a.ShouldReduceRisk)
			assert.Equal(t, tt.efficiency, a.ShouldIncreaseEfficiency)
		})
	}
}

func TestRiskLevelFor(t *testing.T) {
	assert.Equal(t, types.RiskLow, RiskLevelFor(80))
	assert.Equal(t, types.RiskMedium, RiskLevelFor(79.99))
	assert.Equal(t, types.RiskMedium, RiskLevelFor(60))
	assert.Equal(t, types.RiskHigh, RiskLevelFor(40))
	assert.Equal(t, types.RiskCritical, RiskLevelFor(39.99))
}

func TestAdjustDecision(t *testing.T) {
	s := newTestScorer(t)
	up := types.Decision{
		Action:     types.ActionLeverageUp,
		Confidence: 0.8,
		Reasoning:  "room to borrow",
		RiskLevel:  types.RiskMedium,
		Parameters: types.LeverageUpParams{BorrowAmount: 70, StakeAmount: "ALL_KAIA", SupplyAmount: "ALL_STKAIA", SwapToKaia: 70},
	}

	critical := types.RiskAssessment{RiskLevel: types.RiskCritical, Recommendation: "URGENT: Reduce leverage immediately"}
	got := s.AdjustDecision(up, critical)
	assert.Equal(t, types.ActionHold, got.Action)
	assert.Equal(t, types.RiskCritical, got.RiskLevel)
	assert.Nil(t, got.Parameters)
	assert.Equal(t, "Risk override: URGENT: Reduce leverage immediately. Original: room to borrow", got.Reasoning)
	assert.NoError(t, got.Validate())

	high := types.RiskAssessment{RiskLevel: types.RiskHigh, Recommendation: "Consider reducing risk due to: low HF"}
	got = s.AdjustDecision(up, high)
	assert.Equal(t, types.ActionLeverageDown, got.Action)
	assert.Equal(t, types.RiskHigh, got.RiskLevel)
	assert.Equal(t, types.LeverageDownParams{UnstakeAmount: 50, RepayAmount: 40}, got.Parameters)
	assert.Contains(t, got.Reasoning, "Original: room to borrow")
	assert.NoError(t, got.Validate())

	// The input is not mutated.
	assert.Equal(t, types.ActionLeverageUp, up.Action)
	assert.Equal(t, "room to borrow", up.Reasoning)
}

func TestAdjustDecisionIdentityOtherwise(t *testing.T) {
	s := newTestScorer(t)
	actions := []types.Action{
		types.ActionHold,
		types.ActionLeverageUp,
		types.ActionLeverageDown,
		types.ActionEmergencyStop,
		types.ActionRebalance,
	}
	levels := []types.RiskLevel{types.RiskLow, types.RiskMedium, types.RiskHigh, types.RiskCritical}

	for _, action := range actions {
		for _, level := range levels {
			d := types.Decision{Action: action, Confidence: 0.9, Reasoning: "r", RiskLevel: types.RiskLow}
			got := s.AdjustDecision(d, types.RiskAssessment{RiskLevel: level, Recommendation: "x"})
			if action == types.ActionLeverageUp && (level == types.RiskHigh || level == types.RiskCritical) {
				assert.NotEqual(t, action, got.Action)
				continue
			}
			assert.Equal(t, d, got, "%s/%s", action, level)
		}
	}
}

func TestCalculateVolatility(t *testing.T) {
	assert.Equal(t, types.VolatilityHigh, CalculateVolatility(0.09))
	assert.Equal(t, types.VolatilityMedium, CalculateVolatility(0.10))
	assert.Equal(t, types.VolatilityMedium, CalculateVolatility(0.1499))
	assert.Equal(t, types.VolatilityLow, CalculateVolatility(0.15))
	assert.Equal(t, types.VolatilityVeryLow, CalculateVolatility(0.20))
}
