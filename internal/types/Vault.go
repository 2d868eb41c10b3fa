/*

This file contains the vault liquidity types: vault totals, withdrawal request events and the
liquidity check derived from them.

*/

package types

// VaultMetrics are the vault totals in whole KAIA units.
type VaultMetrics struct {
	TotalManagedAssets float64 `json:"total_managed_assets"`
	LiquidBalance      float64 `json:"liquid_balance"`
	SharePrice         float64 `json:"share_price"`
	TotalSupply        float64 `json:"total_supply"`
	DeployedAssets     float64 `json:"deployed_assets"` // TotalManagedAssets - LiquidBalance
}

// WithdrawalEvent is a decoded WithdrawalRequested log.
type WithdrawalEvent struct {
	RequestID         string  `json:"request_id"`
	User              string  `json:"user"`
	DepositIndex      string  `json:"deposit_index"`
	Shares            float64 `json:"shares"`
	Assets            float64 `json:"assets"`
	IsEarlyWithdrawal bool    `json:"is_early_withdrawal"`
	BlockNumber       uint64  `json:"block_number"`
	TxHash            string  `json:"tx_hash"`
}

// LiquidityStatus is the outcome of comparing vault liquidity against pending withdrawals.
type LiquidityStatus string

const (
	LiquidityCannotCheck   LiquidityStatus = "CANNOT_CHECK"
	LiquidityNoWithdrawals LiquidityStatus = "NO_WITHDRAWALS"
	LiquiditySufficient    LiquidityStatus = "SUFFICIENT"
	LiquidityInsufficient  LiquidityStatus = "INSUFFICIENT"
)

// LiquidityCheck is the structured recommendation from the vault tracker.
type LiquidityCheck struct {
	ShouldPrepare   bool            `json:"should_prepare"`
	Status          LiquidityStatus `json:"status"`
	Reason          string          `json:"reason"`
	Deficit         float64         `json:"deficit,omitempty"`
	RequiredAssets  float64         `json:"required_assets,omitempty"`
	CurrentLiquid   float64         `json:"current_liquid,omitempty"`
	PendingRequests int             `json:"pending_requests"`
	Recommendation  string          `json:"recommendation,omitempty"`
}
