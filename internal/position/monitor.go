/*
This file contains the PositionMonitor, which reads the bot's lending position, wallet balances
and vault state.

There are two ways to get a health factor:

  - CheapHealthCheck uses the comptroller's account-liquidity primitive only. It is one or two
    calls and is what the emergency loop runs. The health factor it reports is an approximation.
  - DetailedSnapshot walks every entered market, values supply and borrow balances in USD with
    each asset's native decimals, and computes collateral / debt exactly.
*/

package position

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kilolend/lvm/internal/chain"
	"github.com/kilolend/lvm/internal/config"
	"github.com/kilolend/lvm/internal/logger"
	"github.com/kilolend/lvm/internal/types"
	"github.com/kilolend/lvm/internal/utils"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidConfig           = errors.New("invalid position monitor configuration")
	ErrLendingStateUnavailable = errors.New("lending state unavailable")
	ErrComptrollerError        = errors.New("comptroller returned a non-zero error code")
	ErrPricesUnavailable       = errors.New("prices unavailable for lending valuation")
	ErrMarketSnapshotFailed    = errors.New("market snapshot failed")
	ErrMarketSnapshotErrorCode = errors.New("cToken returned a non-zero error code")
	ErrReadPanicked            = errors.New("position read panicked")
)

// ChainReader is the chain surface the monitor needs.
type ChainReader interface {
	AccountLiquidity(ctx context.Context, account common.Address) (chain.AccountLiquidity, error)
	AssetsIn(ctx context.Context, account common.Address) ([]common.Address, error)
	AccountSnapshot(ctx context.Context, cToken, account common.Address) (chain.AccountSnapshot, error)
	MarketInfo(ctx context.Context, cToken common.Address) (chain.MarketInfo, error)
	NativeBalance(ctx context.Context, account common.Address) (*big.Int, error)
	TokenBalance(ctx context.Context, token, account common.Address) (*big.Int, error)
	VaultTotals(ctx context.Context) (chain.VaultTotals, error)
}

// PriceSource supplies USD prices for valuation.
type PriceSource interface {
	Prices(ctx context.Context) (types.Prices, error)
}

// Config holds the configuration for creating a new Monitor.
type Config struct {
	Chain    ChainReader
	Prices   PriceSource
	Account  common.Address
	USDT     common.Address
	StKAIA   common.Address
	Registry config.MarketRegistry
	Risk     types.RiskParameters
	Now      func() time.Time // optional
}

// Monitor is the PositionMonitor.
type Monitor struct {
	chain    ChainReader
	prices   PriceSource
	account  common.Address
	usdt     common.Address
	stkaia   common.Address
	registry config.MarketRegistry
	risk     types.RiskParameters
	now      func() time.Time
	logger   zerolog.Logger
}

// NewMonitor validates the configuration and builds a Monitor.
func NewMonitor(cfg Config) (*Monitor, error) {
	if err := validateMonitorConfig(cfg); err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Monitor{
		chain:    cfg.Chain,
		prices:   cfg.Prices,
		account:  cfg.Account,
		usdt:     cfg.USDT,
		stkaia:   cfg.StKAIA,
		registry: cfg.Registry,
		risk:     cfg.Risk,
		now:      now,
		logger:   logger.GetForComponent("position_monitor"),
	}, nil
}

func validateMonitorConfig(cfg Config) error {
	if cfg.Chain == nil {
		return fmt.Errorf("chain reader cannot be nil")
	}
	if cfg.Prices == nil {
		return fmt.Errorf("price source cannot be nil")
	}
	if cfg.Account == (common.Address{}) {
		return fmt.Errorf("account address cannot be zero")
	}
	if cfg.USDT == (common.Address{}) || cfg.StKAIA == (common.Address{}) {
		return fmt.Errorf("token addresses cannot be zero")
	}
	if len(cfg.Registry) == 0 {
		return fmt.Errorf("market registry cannot be empty")
	}
	return config.ValidateRiskParameters(cfg.Risk)
}

// accountLiquidity reads the comptroller aggregate and converts it to USD.
func (m *Monitor) accountLiquidity(ctx context.Context) (liquidity, shortfall float64, code uint64, err error) {
	raw, err := m.chain.AccountLiquidity(ctx, m.account)
	if err != nil {
		return 0, 0, 0, errors.Join(ErrLendingStateUnavailable, err)
	}
	if raw.ErrorCode.Sign() != 0 {
		return 0, 0, raw.ErrorCode.Uint64(), fmt.Errorf("%w: %s", ErrComptrollerError, raw.ErrorCode.String())
	}
	if liquidity, err = utils.BigIntToFloat64(raw.Liquidity, config.NATIVE_DECIMALS); err != nil {
		return 0, 0, 0, errors.Join(ErrLendingStateUnavailable, err)
	}
	if shortfall, err = utils.BigIntToFloat64(raw.Shortfall, config.NATIVE_DECIMALS); err != nil {
		return 0, 0, 0, errors.Join(ErrLendingStateUnavailable, err)
	}
	return liquidity, shortfall, 0, nil
}

// CheapHealthCheck classifies the account from the account-liquidity read. It returns a nil
// result and an error on any read failure; callers must treat that as unknown, never healthy.
func (m *Monitor) CheapHealthCheck(ctx context.Context) (*types.HealthResult, error) {
	liquidity, shortfall, _, err := m.accountLiquidity(ctx)
	if err != nil {
		m.logger.Error().Err(err).Msg("Cheap health check failed")
		return nil, err
	}

	result := &types.HealthResult{
		Liquidity:    liquidity,
		Shortfall:    shortfall,
		IsUnderwater: shortfall > 0,
	}

	switch {
	case shortfall > 0:
		// Only shortfall is known. Assume the configured collateral factor to back out total debt.
		totalDebt := shortfall / (1 - config.ASSUMED_COLLATERAL_FACTOR)
		result.HealthFactor = math.Max(config.MIN_APPROX_HEALTH_FACTOR, (totalDebt-shortfall)/totalDebt)
		result.Status = types.HealthCriticalUnderwater

	case liquidity == 0:
		result.HealthFactor = types.NO_POSITION_HEALTH_FACTOR
		result.Status = types.HealthNoPosition

	default:
		assets, err := m.chain.AssetsIn(ctx, m.account)
		if err != nil {
			m.logger.Error().Err(err).Msg("Cheap health check failed reading entered markets")
			return nil, errors.Join(ErrLendingStateUnavailable, err)
		}
		if len(assets) == 0 {
			result.HealthFactor = types.NO_POSITION_HEALTH_FACTOR
			result.Status = types.HealthNoCollateral
		} else {
			// Rough headroom-based estimate; DetailedSnapshot computes the real ratio.
			result.HealthFactor = config.HEALTHY_APPROX_BASE + liquidity/config.HEALTHY_APPROX_SCALE
			result.Status = types.HealthHealthy
		}
	}

	m.logger.Debug().
		Float64("healthFactor", result.HealthFactor).
		Float64("liquidity", liquidity).
		Float64("shortfall", shortfall).
		Str("status", string(result.Status)).
		Msg("Cheap health check complete")

	return result, nil
}

// DetailedSnapshot values every entered market and computes collateral / debt. The aggregate
// liquidity read, the market list and prices are required; a failure reading one market only
// drops that market.
func (m *Monitor) DetailedSnapshot(ctx context.Context) (*types.LendingDetail, error) {
	liquidity, shortfall, code, err := m.accountLiquidity(ctx)
	if err != nil {
		m.logger.Error().Err(err).Msg("Detailed lending snapshot failed on account liquidity")
		return nil, err
	}

	assets, err := m.chain.AssetsIn(ctx, m.account)
	if err != nil {
		m.logger.Error().Err(err).Msg("Detailed lending snapshot failed reading entered markets")
		return nil, errors.Join(ErrLendingStateUnavailable, err)
	}

	prices, err := m.prices.Prices(ctx)
	if err != nil {
		m.logger.Error().Err(err).Msg("Detailed lending snapshot failed: no prices")
		return nil, errors.Join(ErrPricesUnavailable, err)
	}

	detail := &types.LendingDetail{
		AvailableBorrowsUSD: liquidity,
		ShortfallUSD:        shortfall,
		IsUnderwater:        shortfall > 0,
		Positions:           make([]types.MarketPosition, 0, len(assets)),
		ErrorCode:           code,
	}

	for _, cToken := range assets {
		pos, err := m.readMarket(ctx, cToken, prices)
		if err != nil {
			m.logger.Warn().
				Err(err).
				Str("cToken", cToken.Hex()).
				Msg("Skipping market in lending snapshot")
			continue
		}
		detail.TotalCollateralUSD += pos.CollateralValueUSD
		detail.TotalDebtUSD += pos.BorrowValueUSD
		detail.Positions = append(detail.Positions, pos)
	}

	detail.HealthFactor = HealthFactor(detail.TotalCollateralUSD, detail.TotalDebtUSD)
	return detail, nil
}

func (m *Monitor) readMarket(ctx context.Context, cToken common.Address, prices types.Prices) (pos types.MarketPosition, err error) {
	defer func() {
		if r := recover(); r != nil {
			pos, err = types.MarketPosition{}, fmt.Errorf("%w: %v", ErrReadPanicked, r)
		}
	}()

	spec, known := m.registry.Lookup(cToken)
	if !known {
		m.logger.Warn().Str("cToken", cToken.Hex()).Msg("Unknown cToken market; valuing at zero")
	}

	snap, err := m.chain.AccountSnapshot(ctx, cToken, m.account)
	if err != nil {
		return types.MarketPosition{}, errors.Join(ErrMarketSnapshotFailed, err)
	}
	if snap.ErrorCode.Sign() != 0 {
		return types.MarketPosition{}, fmt.Errorf("%w: %s", ErrMarketSnapshotErrorCode, snap.ErrorCode.String())
	}

	info, err := m.chain.MarketInfo(ctx, cToken)
	if err != nil {
		return types.MarketPosition{}, errors.Join(ErrMarketSnapshotFailed, err)
	}

	underlying, err := utils.ScaleByMantissa(snap.CTokenBalance, snap.ExchangeRateMantissa)
	if err != nil {
		return types.MarketPosition{}, fmt.Errorf("supply balance: %w", err)
	}
	supply, err := utils.BigIntToFloat64(underlying, spec.Decimals)
	if err != nil {
		return types.MarketPosition{}, fmt.Errorf("supply balance: %w", err)
	}
	borrow, err := utils.BigIntToFloat64(snap.BorrowBalance, spec.Decimals)
	if err != nil {
		return types.MarketPosition{}, fmt.Errorf("borrow balance: %w", err)
	}
	collateralFactor, err := utils.MantissaToFloat64(info.CollateralFactorMantissa)
	if err != nil {
		return types.MarketPosition{}, fmt.Errorf("collateral factor: %w", err)
	}

	var price float64
	if known {
		price = spec.Price(prices)
	}

	supplyUSD := supply * price
	return types.MarketPosition{
		CTokenAddress:      cToken.Hex(),
		AssetSymbol:        spec.Symbol,
		SupplyBalance:      supply,
		BorrowBalance:      borrow,
		SupplyValueUSD:     supplyUSD,
		BorrowValueUSD:     borrow * price,
		CollateralValueUSD: supplyUSD * collateralFactor,
		CollateralFactor:   collateralFactor,
		IsListed:           info.IsListed,
	}, nil
}

// FullSnapshot reads balances, vault state and the lending detail concurrently. It never fails:
// a failed balance is zero, a failed vault or lending read leaves that field nil.
func (m *Monitor) FullSnapshot(ctx context.Context) *types.PositionSnapshot {
	snapshot := &types.PositionSnapshot{Timestamp: m.now()}

	var g errgroup.Group
	g.Go(m.guarded("kaia balance", func() {
		snapshot.Balances.KAIA = m.balance("KAIA", func() (*big.Int, error) {
			return m.chain.NativeBalance(ctx, m.account)
		}, config.NATIVE_DECIMALS)
	}))
	g.Go(m.guarded("stkaia balance", func() {
		snapshot.Balances.StKAIA = m.balance("stKAIA", func() (*big.Int, error) {
			return m.chain.TokenBalance(ctx, m.stkaia, m.account)
		}, config.NATIVE_DECIMALS)
	}))
	g.Go(m.guarded("usdt balance", func() {
		snapshot.Balances.USDT = m.balance("USDT", func() (*big.Int, error) {
			return m.chain.TokenBalance(ctx, m.usdt, m.account)
		}, config.USDT_DECIMALS)
	}))
	g.Go(m.guarded("vault state", func() {
		snapshot.Vault = m.vaultState(ctx)
	}))
	g.Go(m.guarded("lending detail", func() {
		lending, err := m.DetailedSnapshot(ctx)
		if err == nil {
			snapshot.Lending = lending
		}
	}))
	_ = g.Wait()

	event := m.logger.Info().
		Float64("kaia", snapshot.Balances.KAIA).
		Float64("stkaia", snapshot.Balances.StKAIA).
		Float64("usdt", snapshot.Balances.USDT).
		Bool("vaultAvailable", snapshot.Vault != nil).
		Bool("lendingAvailable", snapshot.Lending != nil)
	if snapshot.Vault != nil {
		event = event.
			Float64("vaultTotalAssets", snapshot.Vault.TotalManagedAssets).
			Float64("vaultLiquid", snapshot.Vault.LiquidBalance).
			Float64("sharePrice", snapshot.Vault.SharePrice)
	}
	if snapshot.Lending != nil {
		event = event.
			Float64("healthFactor", snapshot.Lending.HealthFactor).
			Float64("collateralUSD", snapshot.Lending.TotalCollateralUSD).
			Float64("debtUSD", snapshot.Lending.TotalDebtUSD).
			Float64("availableBorrowsUSD", snapshot.Lending.AvailableBorrowsUSD).
			Str("healthBand", string(HealthStatus(snapshot.Lending.HealthFactor, m.risk)))
	}
	event.Msg("Position snapshot assembled")

	return snapshot
}

// guarded runs read inside an errgroup goroutine, where a panic cannot reach the caller's
// recover. A panicking read leaves its snapshot field at the zero value.
func (m *Monitor) guarded(field string, read func()) func() error {
	return func() error {
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error().
					Err(fmt.Errorf("%w: %v", ErrReadPanicked, r)).
					Str("field", field).
					Msg("Snapshot read panicked; leaving field empty")
			}
		}()
		read()
		return nil
	}
}

func (m *Monitor) balance(asset string, read func() (*big.Int, error), decimals int) float64 {
	raw, err := read()
	if err != nil {
		m.logger.Warn().Err(err).Str("asset", asset).Msg("Balance read failed; reporting zero")
		return 0
	}
	v, err := utils.BigIntToFloat64(raw, decimals)
	if err != nil {
		m.logger.Warn().Err(err).Str("asset", asset).Msg("Balance conversion failed; reporting zero")
		return 0
	}
	return v
}

func (m *Monitor) vaultState(ctx context.Context) *types.VaultState {
	totals, err := m.chain.VaultTotals(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Vault state read failed")
		return nil
	}
	total, err1 := utils.BigIntToFloat64(totals.TotalManagedAssets, config.NATIVE_DECIMALS)
	liquid, err2 := utils.BigIntToFloat64(totals.LiquidBalance, config.NATIVE_DECIMALS)
	share, err3 := utils.BigIntToFloat64(totals.SharePrice, config.NATIVE_DECIMALS)
	if err := errors.Join(err1, err2, err3); err != nil {
		m.logger.Warn().Err(err).Msg("Vault state conversion failed")
		return nil
	}
	return &types.VaultState{
		TotalManagedAssets: total,
		LiquidBalance:      liquid,
		SharePrice:         share,
	}
}

// HealthFactor is collateral / debt, or the no-position sentinel when there is no debt.
func HealthFactor(collateralUSD, debtUSD float64) float64 {
	if debtUSD <= 0 {
		return types.NO_POSITION_HEALTH_FACTOR
	}
	return collateralUSD / debtUSD
}

// HealthStatus maps a health factor onto the operator-facing band.
func HealthStatus(hf float64, risk types.RiskParameters) types.HealthBand {
	switch {
	case hf < risk.EmergencyThreshold:
		return types.BandCritical
	case hf < risk.SafeHealthFactor:
		return types.BandWarning
	case hf < config.SAFE_BAND_UPPER:
		return types.BandSafe
	case hf <= risk.MaxHealthFactor:
		return types.BandOptimal
	default:
		return types.BandConservative
	}
}
