/*
Contract addresses and the lending market registry.

The comptroller reports entered markets as cToken addresses only. The registry maps each cToken
to the underlying asset's symbol, its native decimals and the price feed symbol used to value it.
Getting the decimals wrong misprices a 6-decimal stable by twelve orders of magnitude, so every
market the bot can enter must have an entry here.

A market missing from the registry is still read but valued at zero (and logged).
*/

package config

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kilolend/lvm/internal/types"
)

// Contracts holds every on-chain address the monitor reads from.
type Contracts struct {
	Comptroller common.Address
	Vault       common.Address
	USDT        common.Address
	StKAIA      common.Address
	CStKAIA     common.Address
	CUSDT       common.Address
	// RateMarket is the cToken whose rates and utilization feed the market snapshot.
	RateMarket common.Address
}

// MarketSpec describes how to value one lending market.
type MarketSpec struct {
	CToken      common.Address
	Symbol      string
	Decimals    int
	PriceSymbol string
	// FallbackPrice is used when the price feed has no quote for PriceSymbol.
	FallbackPrice float64
}

// Price resolves the USD price for the market's underlying asset.
func (m MarketSpec) Price(prices types.Prices) float64 {
	var price float64
	switch m.PriceSymbol {
	case types.SYMBOL_KAIA:
		price = prices.KAIA
	case types.SYMBOL_STAKED_KAIA:
		price = prices.StKAIA
		if price == 0 {
			price = prices.KAIA
		}
	case types.SYMBOL_USDT:
		price = prices.USDT
	}
	if price == 0 {
		return m.FallbackPrice
	}
	return price
}

// UNKNOWN_MARKET is returned for cTokens missing from the registry.
var UNKNOWN_MARKET = MarketSpec{Symbol: "UNKNOWN", Decimals: 18}

// MarketRegistry maps cToken addresses to their specs.
type MarketRegistry map[common.Address]MarketSpec

// NewMarketRegistry builds the registry for the configured markets.
func NewMarketRegistry(c Contracts) MarketRegistry {
	return MarketRegistry{
		c.CStKAIA: {
			CToken:      c.CStKAIA,
			Symbol:      "stKAIA",
			Decimals:    18,
			PriceSymbol: types.SYMBOL_STAKED_KAIA,
		},
		c.CUSDT: {
			CToken:        c.CUSDT,
			Symbol:        "USDT",
			Decimals:      USDT_DECIMALS,
			PriceSymbol:   types.SYMBOL_USDT,
			FallbackPrice: 1.0,
		},
	}
}

// Lookup returns the spec for a cToken and whether it was known.
func (r MarketRegistry) Lookup(cToken common.Address) (MarketSpec, bool) {
	spec, ok := r[cToken]
	if !ok {
		unknown := UNKNOWN_MARKET
		unknown.CToken = cToken
		return unknown, false
	}
	return spec, true
}

func loadContracts() (Contracts, error) {
	var c Contracts

	fields := []struct {
		key  string
		dest *common.Address
	}{
		{"COMPTROLLER_ADDRESS", &c.Comptroller},
		{"VAULT_ADDRESS", &c.Vault},
		{"USDT_ADDRESS", &c.USDT},
		{"STKAIA_ADDRESS", &c.StKAIA},
		{"CSTKAIA_ADDRESS", &c.CStKAIA},
		{"CUSDT_ADDRESS", &c.CUSDT},
	}

	for _, f := range fields {
		value, err := getEnv(f.key)
		if err != nil {
			return Contracts{}, err
		}
		if *f.dest, err = parseAddress(f.key, value); err != nil {
			return Contracts{}, err
		}
	}

	c.RateMarket = c.CStKAIA
	if value := strings.TrimSpace(getEnvOrDefault("RATE_MARKET_ADDRESS", "")); value != "" {
		addr, err := parseAddress("RATE_MARKET_ADDRESS", value)
		if err != nil {
			return Contracts{}, err
		}
		c.RateMarket = addr
	}

	return c, nil
}
