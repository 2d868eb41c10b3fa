package config

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kilolend/lvm/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("BOT_ADDRESS", "0x1111111111111111111111111111111111111111")
	t.Setenv("COMPTROLLER_ADDRESS", "0x0B5f0Ba5F13eA4Cb9C8Ee48FB75aa22B451470C2")
	t.Setenv("VAULT_ADDRESS", "0xFe575cdE21BEb23d9D9F35e11E443d41CE8e68E3")
	t.Setenv("USDT_ADDRESS", "0x2222222222222222222222222222222222222222")
	t.Setenv("STKAIA_ADDRESS", "0x3333333333333333333333333333333333333333")
	t.Setenv("CSTKAIA_ADDRESS", "0x0BC926EF3856542134B06DCf53c86005b08B9625")
	t.Setenv("CUSDT_ADDRESS", "0x4444444444444444444444444444444444444444")
	t.Setenv("RPC_URL", "http://localhost:8551")
	t.Setenv("API_BASE_URL", "https://api.example.com/prod/")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 100*time.Minute, cfg.OperationInterval)
	assert.Equal(t, 15*time.Minute, cfg.EmergencyInterval)
	assert.Equal(t, DefaultRiskParameters, cfg.Risk)
	assert.Equal(t, "https://api.example.com/prod", cfg.Endpoints.APIBaseURL)
	assert.Equal(t, cfg.Endpoints.APIBaseURL, cfg.Endpoints.PriceFeedURL)
	assert.Equal(t, cfg.Contracts.CStKAIA, cfg.Contracts.RateMarket)
	assert.Equal(t, time.Second, cfg.BlockTime)
	assert.False(t, cfg.AIReasoningEnabled)
	assert.Equal(t, RULE_BASED_SOURCE, cfg.DecisionSource())
}

func TestLoadMissingRequired(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("RPC_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingEnv)
}

func TestLoadInvalidAddress(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("VAULT_ADDRESS", "not-an-address")

	_, err := Load()
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestLoadRejectsBadThresholdOrdering(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("EMERGENCY_THRESHOLD", "1.6")
	t.Setenv("SAFE_HEALTH_FACTOR", "1.5")

	_, err := Load()
	assert.ErrorIs(t, err, ErrInvalidThreshold)
}

func TestLoadRejectsEmergencyIntervalNotShorter(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("OPERATION_INTERVAL_MINUTES", "10")
	t.Setenv("EMERGENCY_CHECK_INTERVAL_MINUTES", "10")

	_, err := Load()
	assert.ErrorIs(t, err, ErrInvalidInterval)
}

func TestLoadAIRequiresModel(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("AI_REASONING_ENABLED", "true")
	t.Setenv("BEDROCK_MODEL_ID", "")

	_, err := Load()
	assert.ErrorIs(t, err, ErrInvalidEnv)
}

func TestValidateRiskParameters(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *types.RiskParameters)
		wantErr bool
	}{
		{"defaults", func(p *types.RiskParameters) {}, false},
		{"safe equals target", func(p *types.RiskParameters) { p.SafeHealthFactor = 1.6 }, false},
		{"zero emergency", func(p *types.RiskParameters) { p.EmergencyThreshold = 0 }, true},
		{"emergency equals safe", func(p *types.RiskParameters) { p.EmergencyThreshold = 1.5 }, true},
		{"safe above target", func(p *types.RiskParameters) { p.SafeHealthFactor = 1.65 }, true},
		{"target above max", func(p *types.RiskParameters) { p.TargetHealthFactor = 2.1 }, true},
		{"min above target", func(p *types.RiskParameters) { p.MinHealthFactor = 1.7 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultRiskParameters
			tt.mutate(&p)
			err := ValidateRiskParameters(p)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidThreshold)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBlocksPerYearAndWindows(t *testing.T) {
	assert.Equal(t, 31536000.0, BlocksPerYear(time.Second))
	assert.Equal(t, uint64(21600), BlocksIn(PRIMARY_SCAN_WINDOW, time.Second))
	assert.Equal(t, uint64(7200), BlocksIn(RETRY_SCAN_WINDOW, time.Second))
	assert.Equal(t, uint64(10800), BlocksIn(PRIMARY_SCAN_WINDOW, 2*time.Second))
	assert.Zero(t, BlocksIn(PRIMARY_SCAN_WINDOW, 0))
}

func TestMarketRegistry(t *testing.T) {
	contracts := Contracts{
		CStKAIA: common.HexToAddress("0x01"),
		CUSDT:   common.HexToAddress("0x02"),
	}
	registry := NewMarketRegistry(contracts)

	stkaia, ok := registry.Lookup(contracts.CStKAIA)
	require.True(t, ok)
	assert.Equal(t, 18, stkaia.Decimals)

	usdt, ok := registry.Lookup(contracts.CUSDT)
	require.True(t, ok)
	assert.Equal(t, 6, usdt.Decimals)

	unknown, ok := registry.Lookup(common.HexToAddress("0x03"))
	assert.False(t, ok)
	assert.Equal(t, 18, unknown.Decimals)
	assert.Equal(t, 0.0, unknown.Price(types.Prices{KAIA: 0.15, StKAIA: 0.16, USDT: 1}))

	// stKAIA falls back to KAIA when the feed has no staked quote; USDT falls back to the peg.
	assert.Equal(t, 0.15, stkaia.Price(types.Prices{KAIA: 0.15}))
	assert.Equal(t, 1.0, usdt.Price(types.Prices{KAIA: 0.15}))
	assert.Equal(t, 0.999, usdt.Price(types.Prices{USDT: 0.999}))
}
