/*

This file builds the model prompt: the leverage loop, the position and market serialized as JSON,
the risk thresholds and the closed action list, with a JSON response template.

*/

package planner

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kilolend/lvm/internal/config"
	"github.com/kilolend/lvm/internal/datafetcher"
	"github.com/kilolend/lvm/internal/types"
)

type promptBalances struct {
	KAIA   string `json:"kaia"`
	StKAIA string `json:"stKaia"`
	USDT   string `json:"usdt"`
}

type promptVault struct {
	TotalAssets   string `json:"totalAssets"`
	LiquidBalance string `json:"liquidBalance"`
}

type promptLending struct {
	Collateral       string `json:"collateral"`
	Debt             string `json:"debt"`
	HealthFactor     string `json:"healthFactor"`
	AvailableBorrows string `json:"availableBorrows"`
}

type promptMarket struct {
	KAIAPrice   string `json:"kaiaPrice"`
	BorrowRate  string `json:"borrowRate"`
	SupplyRate  string `json:"supplyRate"`
	Utilization string `json:"utilization"`
	Volatility  string `json:"volatility"`
	Condition   string `json:"condition"`
}

type promptContext struct {
	Timestamp      string               `json:"timestamp"`
	Balances       promptBalances       `json:"balances"`
	Vault          *promptVault         `json:"vault"`
	Lending        *promptLending       `json:"lending"`
	Market         *promptMarket        `json:"market"`
	RiskThresholds types.RiskParameters `json:"riskThresholds"`
}

// BuildPrompt renders the model prompt for one cycle.
func BuildPrompt(snapshot *types.PositionSnapshot, market *types.MarketSnapshot, risk types.RiskParameters, now time.Time) (string, error) {
	if snapshot == nil {
		snapshot = &types.PositionSnapshot{}
	}

	ctx := promptContext{
		Timestamp: now.UTC().Format(time.RFC3339),
		Balances: promptBalances{
			KAIA:   fmt.Sprintf("%.4f", snapshot.Balances.KAIA),
			StKAIA: fmt.Sprintf("%.4f", snapshot.Balances.StKAIA),
			USDT:   fmt.Sprintf("%.2f", snapshot.Balances.USDT),
		},
		RiskThresholds: risk,
	}
	if v := snapshot.Vault; v != nil {
		ctx.Vault = &promptVault{
			TotalAssets:   fmt.Sprintf("%.4f", v.TotalManagedAssets),
			LiquidBalance: fmt.Sprintf("%.4f", v.LiquidBalance),
		}
	}
	if l := snapshot.Lending; l != nil {
		ctx.Lending = &promptLending{
			Collateral:       fmt.Sprintf("%.2f", l.TotalCollateralUSD),
			Debt:             fmt.Sprintf("%.2f", l.TotalDebtUSD),
			HealthFactor:     fmt.Sprintf("%.4f", snapshot.HealthFactor()),
			AvailableBorrows: fmt.Sprintf("%.2f", l.AvailableBorrowsUSD),
		}
	}
	if market != nil {
		ctx.Market = &promptMarket{
			KAIAPrice:   fmt.Sprintf("%.4f", market.Prices.KAIA),
			BorrowRate:  fmt.Sprintf("%.2f%%", market.LendingRates.Borrow),
			SupplyRate:  fmt.Sprintf("%.2f%%", market.LendingRates.Supply),
			Utilization: fmt.Sprintf("%.2f%%", market.UtilizationRate),
			Volatility:  string(market.Volatility),
			Condition:   "N/A",
		}
		if market.Prices.StKAIA > 0 {
			ctx.Market.Condition = fmt.Sprintf("stKAIA premium: %.2f%%", market.Prices.StakedPremiumPercent())
		}
	}

	position, err := json.MarshalIndent(ctx, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode prompt context: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are an AI vault manager for %s's KAIA Leverage Vault.\n\n", config.LENDING_PROTOCOL)
	fmt.Fprintf(&b, "Strategy: KAIA → Stake to stKAIA → Supply to %s → Borrow USDT → Swap to KAIA → Repeat until HF ≈ %v\n\n",
		config.LENDING_PROTOCOL, risk.TargetHealthFactor)
	fmt.Fprintf(&b, "Current Position:\n%s\n\n", position)

	b.WriteString("Market Context:\n")
	if ctx.Market != nil {
		condition := datafetcher.MarketCondition(*market)
		fmt.Fprintf(&b, "- KAIA Price: %s\n", ctx.Market.KAIAPrice)
		fmt.Fprintf(&b, "- Borrow Rate: %s\n", ctx.Market.BorrowRate)
		fmt.Fprintf(&b, "- Supply Rate: %s\n", ctx.Market.SupplyRate)
		fmt.Fprintf(&b, "- Pool Utilization: %s\n", ctx.Market.Utilization)
		fmt.Fprintf(&b, "- Market Volatility: %s\n", ctx.Market.Volatility)
		fmt.Fprintf(&b, "- %s\n", ctx.Market.Condition)
		fmt.Fprintf(&b, "- Market Condition: %s", condition.Condition)
		if len(condition.Factors) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(condition.Factors, "; "))
		}
		fmt.Fprintf(&b, "\n- Suggested Posture: %s\n\n", condition.Recommendation)
	} else {
		b.WriteString("Market data unavailable\n\n")
	}

	b.WriteString("Risk Parameters:\n")
	fmt.Fprintf(&b, "- Emergency Threshold: %v (must act immediately)\n", risk.EmergencyThreshold)
	fmt.Fprintf(&b, "- Safe Minimum: %v (maintain above this)\n", risk.SafeHealthFactor)
	fmt.Fprintf(&b, "- Target: %v (optimal efficiency)\n", risk.TargetHealthFactor)
	fmt.Fprintf(&b, "- Maximum: %v (inefficient, can leverage up)\n\n", risk.MaxHealthFactor)

	b.WriteString("Analyze the current position and recommend ONE action:\n")
	fmt.Fprintf(&b, "- EMERGENCY_STOP: HF < %v (critical risk)\n", risk.EmergencyThreshold)
	fmt.Fprintf(&b, "- LEVERAGE_DOWN: HF %v-%v (reduce risk)\n", risk.EmergencyThreshold, risk.SafeHealthFactor)
	fmt.Fprintf(&b, "- HOLD: HF %v-%v (optimal range)\n", risk.SafeHealthFactor, risk.MaxHealthFactor)
	fmt.Fprintf(&b, "- LEVERAGE_UP: HF > %v (can increase efficiency)\n", risk.MaxHealthFactor)
	b.WriteString("- REBALANCE: Minor adjustments needed\n\n")

	b.WriteString(`Respond in JSON format:
{
  "action": "HOLD",
  "confidence": 0.85,
  "reasoning": "Clear explanation of why this action is recommended",
  "riskLevel": "MEDIUM",
  "expectedHealthFactor": 1.75,
  "parameters": {
    "borrowAmount": 70,
    "unstakeAmount": 50,
    "repayAmount": 40
  }
}`)

	return b.String(), nil
}
