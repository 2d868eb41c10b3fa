package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

// AccountLiquidity is the comptroller's (error, liquidity, shortfall) triple. Values are 18-decimal USD.
type AccountLiquidity struct {
	ErrorCode *big.Int
	Liquidity *big.Int
	Shortfall *big.Int
}

// MarketInfo is the comptroller's view of one market.
type MarketInfo struct {
	IsListed                 bool
	CollateralFactorMantissa *big.Int
}

// AccountSnapshot is a cToken's (error, cTokenBalance, borrowBalance, exchangeRateMantissa).
type AccountSnapshot struct {
	ErrorCode            *big.Int
	CTokenBalance        *big.Int
	BorrowBalance        *big.Int
	ExchangeRateMantissa *big.Int
}

// MarketRates are per-block rate mantissas.
type MarketRates struct {
	BorrowRatePerBlock *big.Int
	SupplyRatePerBlock *big.Int
}

// MarketTotals are a cToken market's pool totals in underlying units.
type MarketTotals struct {
	TotalBorrows  *big.Int
	Cash          *big.Int
	TotalReserves *big.Int
}

// VaultTotals are the vault's raw 18-decimal totals.
type VaultTotals struct {
	TotalManagedAssets *big.Int
	LiquidBalance      *big.Int
	SharePrice         *big.Int
	TotalSupply        *big.Int
}

// AccountLiquidity reads getAccountLiquidity for the account.
func (c *Client) AccountLiquidity(ctx context.Context, account common.Address) (AccountLiquidity, error) {
	out, err := c.call(ctx, c.abis.Comptroller, c.comptroller, "getAccountLiquidity", account)
	if err != nil {
		return AccountLiquidity{}, err
	}

	var res AccountLiquidity
	if res.ErrorCode, err = bigAt(out, 0, "getAccountLiquidity"); err != nil {
		return AccountLiquidity{}, err
	}
	if res.Liquidity, err = bigAt(out, 1, "getAccountLiquidity"); err != nil {
		return AccountLiquidity{}, err
	}
	if res.Shortfall, err = bigAt(out, 2, "getAccountLiquidity"); err != nil {
		return AccountLiquidity{}, err
	}
	return res, nil
}

// AssetsIn returns the cToken markets the account has entered.
func (c *Client) AssetsIn(ctx context.Context, account common.Address) ([]common.Address, error) {
	out, err := c.call(ctx, c.abis.Comptroller, c.comptroller, "getAssetsIn", account)
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("%w: getAssetsIn returned %d values", ErrUnexpectedOutput, len(out))
	}
	markets, ok := out[0].([]common.Address)
	if !ok {
		return nil, fmt.Errorf("%w: getAssetsIn value is %T", ErrUnexpectedOutput, out[0])
	}
	return markets, nil
}

// MarketInfo reads markets(cToken) from the comptroller.
func (c *Client) MarketInfo(ctx context.Context, cToken common.Address) (MarketInfo, error) {
	out, err := c.call(ctx, c.abis.Comptroller, c.comptroller, "markets", cToken)
	if err != nil {
		return MarketInfo{}, err
	}

	var info MarketInfo
	if info.IsListed, err = boolAt(out, 0, "markets"); err != nil {
		return MarketInfo{}, err
	}
	if info.CollateralFactorMantissa, err = bigAt(out, 1, "markets"); err != nil {
		return MarketInfo{}, err
	}
	return info, nil
}

// AccountSnapshot reads getAccountSnapshot on a cToken.
func (c *Client) AccountSnapshot(ctx context.Context, cToken, account common.Address) (AccountSnapshot, error) {
	out, err := c.call(ctx, c.abis.CToken, cToken, "getAccountSnapshot", account)
	if err != nil {
		return AccountSnapshot{}, err
	}

	var snap AccountSnapshot
	fields := []**big.Int{&snap.ErrorCode, &snap.CTokenBalance, &snap.BorrowBalance, &snap.ExchangeRateMantissa}
	for i, f := range fields {
		if *f, err = bigAt(out, i, "getAccountSnapshot"); err != nil {
			return AccountSnapshot{}, err
		}
	}
	return snap, nil
}

// MarketRates reads both per-block rates of a cToken concurrently.
func (c *Client) MarketRates(ctx context.Context, cToken common.Address) (MarketRates, error) {
	var rates MarketRates
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := c.uintView(gctx, cToken, "borrowRatePerBlock")
		rates.BorrowRatePerBlock = v
		return err
	})
	g.Go(func() error {
		v, err := c.uintView(gctx, cToken, "supplyRatePerBlock")
		rates.SupplyRatePerBlock = v
		return err
	})
	if err := g.Wait(); err != nil {
		return MarketRates{}, err
	}
	return rates, nil
}

// MarketTotals reads borrows, cash and reserves of a cToken concurrently.
func (c *Client) MarketTotals(ctx context.Context, cToken common.Address) (MarketTotals, error) {
	var totals MarketTotals
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := c.uintView(gctx, cToken, "totalBorrows")
		totals.TotalBorrows = v
		return err
	})
	g.Go(func() error {
		v, err := c.uintView(gctx, cToken, "getCash")
		totals.Cash = v
		return err
	})
	g.Go(func() error {
		v, err := c.uintView(gctx, cToken, "totalReserves")
		totals.TotalReserves = v
		return err
	})
	if err := g.Wait(); err != nil {
		return MarketTotals{}, err
	}
	return totals, nil
}

// VaultTotals reads the four vault totals concurrently. Any failure fails the whole read.
func (c *Client) VaultTotals(ctx context.Context) (VaultTotals, error) {
	var totals VaultTotals
	reads := []struct {
		method string
		dest   **big.Int
	}{
		{"totalManagedAssets", &totals.TotalManagedAssets},
		{"liquidBalance", &totals.LiquidBalance},
		{"sharePrice", &totals.SharePrice},
		{"totalSupply", &totals.TotalSupply},
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, r := range reads {
		r := r
		g.Go(func() error {
			out, err := c.call(gctx, c.abis.Vault, c.vault, r.method)
			if err != nil {
				return err
			}
			v, err := bigAt(out, 0, r.method)
			if err != nil {
				return err
			}
			*r.dest = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return VaultTotals{}, err
	}
	return totals, nil
}

func (c *Client) uintView(ctx context.Context, cToken common.Address, method string) (*big.Int, error) {
	out, err := c.call(ctx, c.abis.CToken, cToken, method)
	if err != nil {
		return nil, err
	}
	return bigAt(out, 0, method)
}
