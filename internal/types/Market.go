/*

This file contains the market-side types: prices, lending rates and the per-cycle market snapshot.

*/

package types

import (
	"time"
)

// Price feed symbols.
const (
	SYMBOL_KAIA        = "KAIA"
	SYMBOL_STAKED_KAIA = "STAKED_KAIA"
	SYMBOL_USDT        = "USDT"
)

// Prices is a USD price per asset.
type Prices struct {
	KAIA   float64 `json:"kaia"`
	StKAIA float64 `json:"stkaia"`
	USDT   float64 `json:"usdt"`
}

// StakedPremiumPercent is the staked-derivative premium over the underlying, in percent.
func (p Prices) StakedPremiumPercent() float64 {
	if p.KAIA == 0 {
		return 0
	}
	return (p.StKAIA - p.KAIA) / p.KAIA * 100
}

// LendingRates are annualized percentages.
type LendingRates struct {
	Borrow float64 `json:"borrow"`
	Supply float64 `json:"supply"`
}

// VolatilityLabel is a coarse price-band classification.
type VolatilityLabel string

const (
	VolatilityHigh    VolatilityLabel = "HIGH"
	VolatilityMedium  VolatilityLabel = "MEDIUM"
	VolatilityLow     VolatilityLabel = "LOW"
	VolatilityVeryLow VolatilityLabel = "VERY_LOW"
)

// MarketSnapshot is the market read for one cycle.
type MarketSnapshot struct {
	Timestamp       time.Time       `json:"timestamp"`
	Prices          Prices          `json:"prices"`
	LendingRates    LendingRates    `json:"lending_rates"`
	UtilizationRate float64         `json:"utilization_rate"` // percent, clamped to [0,100]
	Volatility      VolatilityLabel `json:"volatility"`
}

// MarketConditionKind summarizes what is notable about the market.
type MarketConditionKind string

const (
	ConditionNormal          MarketConditionKind = "NORMAL"
	ConditionVolatile        MarketConditionKind = "VOLATILE"
	ConditionHighRates       MarketConditionKind = "HIGH_RATES"
	ConditionHighUtilization MarketConditionKind = "HIGH_UTILIZATION"
	ConditionDepegRisk       MarketConditionKind = "DEPEG_RISK"
)

// MarketCondition is the summary attached to cycle logs and the model prompt.
type MarketCondition struct {
	Condition      MarketConditionKind `json:"condition"`
	Factors        []string            `json:"factors"`
	Recommendation string              `json:"recommendation"`
}
