/*

This file holds the ordered operator checklists, one per task type.

*/

package tasks

import (
	"fmt"

	"github.com/kilolend/lvm/internal/config"
	"github.com/kilolend/lvm/internal/types"
)

// Task descriptions shown to the operator.
const (
	DESCRIPTION_LEVERAGE_UP        = "Increase leverage position for better yields"
	DESCRIPTION_LEVERAGE_DOWN      = "Decrease leverage to reduce risk"
	DESCRIPTION_EMERGENCY_STOP     = "CRITICAL: Close all positions immediately"
	DESCRIPTION_REBALANCE          = "Minor position adjustments"
	DESCRIPTION_HOLD               = "Position optimal, no action needed"
	DESCRIPTION_PREPARE_WITHDRAWAL = "Prepare vault liquidity for pending withdrawals"
)

// Describe returns the operator-facing description of a task type.
func Describe(t types.TaskType) string {
	switch t {
	case types.TaskLeverageUp:
		return DESCRIPTION_LEVERAGE_UP
	case types.TaskLeverageDown:
		return DESCRIPTION_LEVERAGE_DOWN
	case types.TaskEmergencyStop:
		return DESCRIPTION_EMERGENCY_STOP
	case types.TaskRebalance:
		return DESCRIPTION_REBALANCE
	case types.TaskPrepareWithdrawal:
		return DESCRIPTION_PREPARE_WITHDRAWAL
	default:
		return DESCRIPTION_HOLD
	}
}

func leverageUpSteps(p types.LeverageUpParams, risk types.RiskParameters) []string {
	borrow := "available"
	if p.BorrowAmount > 0 {
		borrow = fmt.Sprintf("%.2f", p.BorrowAmount)
	}
	return []string{
		"1. Withdraw KAIA from vault (if needed)",
		fmt.Sprintf("2. Stake KAIA to get stKAIA via %s", config.STAKING_PROTOCOL),
		fmt.Sprintf("3. Supply stKAIA to %s as collateral", config.LENDING_PROTOCOL),
		fmt.Sprintf("4. Borrow %s USDT from %s", borrow, config.LENDING_PROTOCOL),
		fmt.Sprintf("5. Swap USDT to KAIA via %s", config.DEX_PROTOCOL),
		"6. Stake swapped KAIA to stKAIA",
		fmt.Sprintf("7. Verify health factor remains above %v", risk.SafeHealthFactor),
	}
}

func leverageDownSteps(p types.LeverageDownParams) []string {
	unstake, repay := p.UnstakeAmount, p.RepayAmount
	if unstake <= 0 {
		unstake = config.LEVERAGE_DOWN_UNSTAKE_AMOUNT
	}
	if repay <= 0 {
		repay = config.LEVERAGE_DOWN_REPAY_AMOUNT
	}
	return []string{
		fmt.Sprintf("1. Unstake %v stKAIA from %s", unstake, config.STAKING_PROTOCOL),
		"2. Withdraw unstaked KAIA",
		fmt.Sprintf("3. Swap KAIA to USDT if needed via %s", config.DEX_PROTOCOL),
		fmt.Sprintf("4. Repay %v USDT to %s", repay, config.LENDING_PROTOCOL),
		"5. Withdraw excess collateral if safe",
		"6. Deposit remaining KAIA back to vault",
		"7. Verify health factor improved to safe range",
	}
}

func emergencySteps() []string {
	return []string{
		"IMMEDIATE ACTION REQUIRED",
		fmt.Sprintf("1. Unstake ALL stKAIA from %s", config.STAKING_PROTOCOL),
		"2. Swap KAIA to USDT to cover debt",
		fmt.Sprintf("3. Repay ALL USDT debt to %s", config.LENDING_PROTOCOL),
		"4. Withdraw ALL stKAIA collateral",
		"5. Unstake remaining stKAIA to KAIA",
		"6. Deposit all KAIA back to vault",
		"7. Verify debt = 0 OR health factor > 2.0",
		"LIQUIDATION RISK - ACT IMMEDIATELY",
	}
}

// rebalanceSteps picks the nudge direction from where hf sits relative to the target.
func rebalanceSteps(hf float64, risk types.RiskParameters) []string {
	if hf > risk.TargetHealthFactor {
		return []string{
			"1. Slight leverage increase to optimize returns",
			"2. Borrow small amount of USDT",
			"3. Swap to KAIA and stake",
			"4. Monitor health factor",
		}
	}
	return []string{
		"1. Slight leverage reduction for safety",
		"2. Repay small amount of USDT debt",
		"3. Adjust position marginally",
		"4. Monitor health factor",
	}
}

func holdSteps() []string {
	return []string{"Monitor health factor", "Continue current strategy"}
}

func prepareWithdrawalSteps(p types.PrepareWithdrawalParams) []string {
	return []string{
		fmt.Sprintf("1. Review %d pending withdrawal request(s) on the vault", p.PendingRequests),
		fmt.Sprintf("2. Unstake stKAIA via %s to free %.4f KAIA", config.STAKING_PROTOCOL, p.Deficit),
		"3. Return the freed KAIA to the vault's liquid balance",
		fmt.Sprintf("4. Verify vault liquid balance is at least %.4f KAIA", p.RequiredAssets),
	}
}
