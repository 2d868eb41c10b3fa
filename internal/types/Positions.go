/*

This file contains the types for the leveraged position: wallet balances, vault state and the
lending account as read from the comptroller and its markets.

*/

package types

import (
	"time"
)

// NO_POSITION_HEALTH_FACTOR is reported whenever there is no debt to divide by.
const NO_POSITION_HEALTH_FACTOR = 999.99

// HealthCheckStatus classifies the cheap account-liquidity read.
type HealthCheckStatus string

const (
	HealthCriticalUnderwater HealthCheckStatus = "CRITICAL_UNDERWATER"
	HealthNoPosition         HealthCheckStatus = "NO_POSITION"
	HealthNoCollateral       HealthCheckStatus = "NO_COLLATERAL"
	HealthHealthy            HealthCheckStatus = "HEALTHY"
)

// HealthResult is the outcome of the cheap health check.
type HealthResult struct {
	HealthFactor float64           `json:"health_factor"`
	Liquidity    float64           `json:"liquidity"` // USD borrowing power remaining
	Shortfall    float64           `json:"shortfall"` // USD underwater
	IsUnderwater bool              `json:"is_underwater"`
	Status       HealthCheckStatus `json:"status"`
	ErrorCode    uint64            `json:"error_code"` // comptroller error code, 0 on success
}

// HealthBand is the operator-facing label for a health factor.
type HealthBand string

const (
	BandCritical     HealthBand = "CRITICAL"
	BandWarning      HealthBand = "WARNING"
	BandSafe         HealthBand = "SAFE"
	BandOptimal      HealthBand = "OPTIMAL"
	BandConservative HealthBand = "CONSERVATIVE"
)

// WalletBalances holds the bot wallet's holdings in whole-token units.
type WalletBalances struct {
	KAIA   float64 `json:"kaia"`
	StKAIA float64 `json:"stkaia"`
	USDT   float64 `json:"usdt"`
}

// VaultState is the subset of vault reads carried in a position snapshot.
type VaultState struct {
	TotalManagedAssets float64 `json:"total_managed_assets"`
	LiquidBalance      float64 `json:"liquid_balance"`
	SharePrice         float64 `json:"share_price"`
}

// MarketPosition is the account's position in a single lending market.
type MarketPosition struct {
	CTokenAddress      string  `json:"ctoken_address"`
	AssetSymbol        string  `json:"asset_symbol"`
	SupplyBalance      float64 `json:"supply_balance"`
	BorrowBalance      float64 `json:"borrow_balance"`
	SupplyValueUSD     float64 `json:"supply_value_usd"`
	BorrowValueUSD     float64 `json:"borrow_value_usd"`
	CollateralValueUSD float64 `json:"collateral_value_usd"` // supply value scaled by the collateral factor
	CollateralFactor   float64 `json:"collateral_factor"`
	IsListed           bool    `json:"is_listed"`
}

// LendingDetail is the per-market breakdown of the lending account.
type LendingDetail struct {
	HealthFactor        float64          `json:"health_factor"`
	TotalCollateralUSD  float64          `json:"total_collateral_usd"`
	TotalDebtUSD        float64          `json:"total_debt_usd"`
	AvailableBorrowsUSD float64          `json:"available_borrows_usd"`
	ShortfallUSD        float64          `json:"shortfall_usd"`
	IsUnderwater        bool             `json:"is_underwater"`
	Positions           []MarketPosition `json:"positions"`
	ErrorCode           uint64           `json:"error_code"`
}

// HasDebt reports whether there is an open borrow to manage.
func (l *LendingDetail) HasDebt() bool {
	return l != nil && l.TotalDebtUSD > 0
}

// PositionSnapshot captures one moment of the position. Vault and Lending are nil when
// their reads failed; balances degrade to zero individually.
type PositionSnapshot struct {
	Timestamp time.Time      `json:"timestamp"`
	Balances  WalletBalances `json:"balances"`
	Vault     *VaultState    `json:"vault,omitempty"`
	Lending   *LendingDetail `json:"lending,omitempty"`
}

// HealthFactor returns the lending health factor, or 999 when there is no lending view.
func (s *PositionSnapshot) HealthFactor() float64 {
	if s == nil || s.Lending == nil {
		return 999
	}
	return s.Lending.HealthFactor
}
