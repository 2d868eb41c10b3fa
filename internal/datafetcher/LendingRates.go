/*
This file reads lending market data from the chain: per-block rates annualized by the chain's
block time, and pool utilization.
*/

package datafetcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kilolend/lvm/internal/chain"
	"github.com/kilolend/lvm/internal/types"
	"github.com/kilolend/lvm/internal/utils"
)

var (
	ErrLendingRatesUnavailable = errors.New("lending rates unavailable")
	ErrUtilizationUnavailable  = errors.New("utilization rate unavailable")
)

// MarketReader is the chain surface needed for market data.
type MarketReader interface {
	MarketRates(ctx context.Context, cToken common.Address) (chain.MarketRates, error)
	MarketTotals(ctx context.Context, cToken common.Address) (chain.MarketTotals, error)
}

// AnnualizeRate converts a per-block rate mantissa into an annual percentage (simple, not compounded).
func AnnualizeRate(ratePerBlock float64, blocksPerYear float64) float64 {
	return ratePerBlock * blocksPerYear * 100
}

// CalculateUtilization returns borrows / (cash + borrows - reserves) in percent, clamped to
// [0,100]. A zero denominator yields 0.
func CalculateUtilization(totalBorrows, cash, reserves float64) float64 {
	denominator := cash + totalBorrows - reserves
	if denominator == 0 {
		return 0
	}
	utilization := totalBorrows / denominator * 100
	if utilization < 0 {
		return 0
	}
	if utilization > 100 {
		return 100
	}
	return utilization
}

func (m *MarketDataProvider) fetchLendingRates(ctx context.Context) (types.LendingRates, error) {
	raw, err := m.chain.MarketRates(ctx, m.rateMarket)
	if err != nil {
		return types.LendingRates{}, errors.Join(ErrLendingRatesUnavailable, err)
	}

	borrowPerBlock, err := utils.MantissaToFloat64(raw.BorrowRatePerBlock)
	if err != nil {
		return types.LendingRates{}, errors.Join(ErrLendingRatesUnavailable, fmt.Errorf("borrow rate: %w", err))
	}
	supplyPerBlock, err := utils.MantissaToFloat64(raw.SupplyRatePerBlock)
	if err != nil {
		return types.LendingRates{}, errors.Join(ErrLendingRatesUnavailable, fmt.Errorf("supply rate: %w", err))
	}

	return types.LendingRates{
		Borrow: AnnualizeRate(borrowPerBlock, m.blocksPerYear),
		Supply: AnnualizeRate(supplyPerBlock, m.blocksPerYear),
	}, nil
}

func (m *MarketDataProvider) fetchUtilization(ctx context.Context) (float64, error) {
	raw, err := m.chain.MarketTotals(ctx, m.rateMarket)
	if err != nil {
		return 0, errors.Join(ErrUtilizationUnavailable, err)
	}

	borrows, err := utils.BigIntToFloat64(raw.TotalBorrows, m.rateMarketDecimals)
	if err != nil {
		return 0, errors.Join(ErrUtilizationUnavailable, fmt.Errorf("totalBorrows: %w", err))
	}
	cash, err := utils.BigIntToFloat64(raw.Cash, m.rateMarketDecimals)
	if err != nil {
		return 0, errors.Join(ErrUtilizationUnavailable, fmt.Errorf("cash: %w", err))
	}
	reserves, err := utils.BigIntToFloat64(raw.TotalReserves, m.rateMarketDecimals)
	if err != nil {
		return 0, errors.Join(ErrUtilizationUnavailable, fmt.Errorf("totalReserves: %w", err))
	}

	return CalculateUtilization(borrows, cash, reserves), nil
}
