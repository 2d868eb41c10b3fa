/*
This file contains the MarketDataProvider: cached prices plus the per-cycle market snapshot.
*/

package datafetcher

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kilolend/lvm/internal/analyzer"
	"github.com/kilolend/lvm/internal/config"
	"github.com/kilolend/lvm/internal/logger"
	"github.com/kilolend/lvm/internal/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var ErrInvalidConfig = errors.New("invalid market data configuration")

// Thresholds for the market condition summary.
const (
	HIGH_BORROW_RATE_PERCENT = 10.0
	HIGH_UTILIZATION_PERCENT = 85.0
	DEPEG_PREMIUM_PERCENT    = 5.0
)

// Config holds the configuration for creating a MarketDataProvider.
type Config struct {
	Chain              MarketReader
	PriceFeedURL       string
	HTTPClient         *http.Client // optional; defaults to a client with PRICE_FEED_TIMEOUT
	RateMarket         common.Address
	RateMarketDecimals int
	BlockTime          time.Duration
	CacheTTL           time.Duration    // optional; defaults to PRICE_CACHE_TTL
	Now                func() time.Time // optional; defaults to time.Now
}

// MarketDataProvider serves prices from a short-lived cache and reads rates and utilization fresh.
type MarketDataProvider struct {
	chain              MarketReader
	httpClient         *http.Client
	priceFeedURL       string
	rateMarket         common.Address
	rateMarketDecimals int
	blocksPerYear      float64
	cacheTTL           time.Duration
	now                func() time.Time
	logger             zerolog.Logger

	mu          sync.Mutex
	cached      *types.Prices
	lastFetched time.Time
}

// NewMarketDataProvider validates the configuration and builds a provider with an empty cache.
func NewMarketDataProvider(cfg Config) (*MarketDataProvider, error) {
	if err := validateMarketDataConfig(cfg); err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.PRICE_FEED_TIMEOUT}
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = config.PRICE_CACHE_TTL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &MarketDataProvider{
		chain:              cfg.Chain,
		httpClient:         httpClient,
		priceFeedURL:       cfg.PriceFeedURL,
		rateMarket:         cfg.RateMarket,
		rateMarketDecimals: cfg.RateMarketDecimals,
		blocksPerYear:      config.BlocksPerYear(cfg.BlockTime),
		cacheTTL:           ttl,
		now:                now,
		logger:             logger.GetForComponent("market_data"),
	}, nil
}

func validateMarketDataConfig(cfg Config) error {
	if cfg.Chain == nil {
		return fmt.Errorf("chain reader cannot be nil")
	}
	if cfg.PriceFeedURL == "" {
		return fmt.Errorf("price feed URL cannot be empty")
	}
	if cfg.RateMarket == (common.Address{}) {
		return fmt.Errorf("rate market address cannot be zero")
	}
	if cfg.RateMarketDecimals < 0 || cfg.RateMarketDecimals > 18 {
		return fmt.Errorf("rate market decimals must be between 0 and 18, got %d", cfg.RateMarketDecimals)
	}
	if cfg.BlockTime <= 0 {
		return fmt.Errorf("block time must be positive")
	}
	return nil
}

// Prices returns cached prices when fresh, otherwise fetches and validates new ones. A failed
// fetch is always returned as an error; an expired cache is never served as a fallback.
func (m *MarketDataProvider) Prices(ctx context.Context) (types.Prices, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.cached != nil && now.Sub(m.lastFetched) < m.cacheTTL {
		return *m.cached, nil
	}

	prices, err := fetchPrices(ctx, m.httpClient, m.priceFeedURL)
	if err != nil {
		m.logger.Error().
			Err(err).
			Str("url", m.priceFeedURL).
			Msg("Failed to fetch prices; cannot operate without valid prices")
		return types.Prices{}, err
	}

	m.cached = &prices
	m.lastFetched = now

	m.logger.Debug().
		Float64("kaia", prices.KAIA).
		Float64("stkaia", prices.StKAIA).
		Float64("usdt", prices.USDT).
		Msg("Prices refreshed")

	return prices, nil
}

// LendingRates returns annualized borrow and supply rates of the rate market.
func (m *MarketDataProvider) LendingRates(ctx context.Context) (types.LendingRates, error) {
	return m.fetchLendingRates(ctx)
}

// UtilizationRate returns the rate market's utilization percentage.
func (m *MarketDataProvider) UtilizationRate(ctx context.Context) (float64, error) {
	return m.fetchUtilization(ctx)
}

// MarketSnapshot reads prices, rates and utilization concurrently. Any failure fails the snapshot.
func (m *MarketDataProvider) MarketSnapshot(ctx context.Context) (*types.MarketSnapshot, error) {
	var (
		prices      types.Prices
		rates       types.LendingRates
		utilization float64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		prices, err = m.Prices(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		rates, err = m.LendingRates(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		utilization, err = m.UtilizationRate(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snapshot := &types.MarketSnapshot{
		Timestamp:       m.now(),
		Prices:          prices,
		LendingRates:    rates,
		UtilizationRate: utilization,
		Volatility:      analyzer.CalculateVolatility(prices.KAIA),
	}

	m.logger.Info().
		Float64("kaiaPrice", prices.KAIA).
		Float64("stkaiaPrice", prices.StKAIA).
		Float64("usdtPrice", prices.USDT).
		Float64("borrowRate", rates.Borrow).
		Float64("supplyRate", rates.Supply).
		Float64("utilization", utilization).
		Str("volatility", string(snapshot.Volatility)).
		Msg("Market snapshot assembled")

	return snapshot, nil
}

// MarketCondition summarizes the snapshot. Later checks override the condition set by earlier
// ones; every triggered check contributes a factor.
func MarketCondition(snapshot types.MarketSnapshot) types.MarketCondition {
	condition := types.ConditionNormal
	factors := []string{}

	if snapshot.Volatility == types.VolatilityHigh {
		condition = types.ConditionVolatile
		factors = append(factors, "High volatility detected")
	}
	if snapshot.LendingRates.Borrow > HIGH_BORROW_RATE_PERCENT {
		condition = types.ConditionHighRates
		factors = append(factors, "High borrow rates")
	}
	if snapshot.UtilizationRate > HIGH_UTILIZATION_PERCENT {
		condition = types.ConditionHighUtilization
		factors = append(factors, "High pool utilization")
	}
	if math.Abs(snapshot.Prices.StakedPremiumPercent()) > DEPEG_PREMIUM_PERCENT {
		condition = types.ConditionDepegRisk
		factors = append(factors, "stKAIA/KAIA peg unstable")
	}

	return types.MarketCondition{
		Condition:      condition,
		Factors:        factors,
		Recommendation: conditionRecommendation(condition),
	}
}

func conditionRecommendation(c types.MarketConditionKind) string {
	switch c {
	case types.ConditionNormal:
		return "Continue normal operations"
	case types.ConditionVolatile:
		return "Reduce leverage, increase safety buffer"
	case types.ConditionHighRates:
		return "Consider reducing borrow position"
	case types.ConditionHighUtilization:
		return "Be cautious, liquidity may be limited"
	case types.ConditionDepegRisk:
		return "Monitor stKAIA peg closely, reduce exposure"
	default:
		return "Monitor closely"
	}
}
