package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kilolend/lvm/internal/types"
	"github.com/rs/zerolog/log"
)

var (
	ErrMissingEnv       = errors.New("environment variable is required but not set")
	ErrInvalidEnv       = errors.New("environment variable is invalid")
	ErrInvalidAddress   = errors.New("invalid contract address")
	ErrInvalidThreshold = errors.New("invalid risk threshold ordering")
	ErrInvalidInterval  = errors.New("invalid cycle interval")
)

// Config holds all application configuration. It is built once by Load and never mutated.
type Config struct {
	// BotAddress is the account whose position is monitored.
	BotAddress common.Address

	Contracts Contracts
	Endpoints Endpoints

	// OperationInterval is the period of the full operation cycle.
	OperationInterval time.Duration
	// EmergencyInterval is the period of the cheap health check. Strictly shorter than OperationInterval.
	EmergencyInterval time.Duration

	Risk types.RiskParameters

	// AIReasoningEnabled switches the decision engine to the model-assisted strategy.
	AIReasoningEnabled bool
	AWSRegion          string
	BedrockModelID     string
	// Static AWS credentials. When empty the SDK's default credential chain is used.
	AWSAccessKeyID     string
	AWSSecretAccessKey string

	// BlockTime is the chain's nominal block time, used to size scan windows and annualize rates.
	BlockTime time.Duration
	// RPCRatePerSecond caps chain calls per second.
	RPCRatePerSecond float64
	// CallTimeout bounds a single chain call.
	CallTimeout time.Duration

	// StatusPort serves /health, /api/status and /metrics. Empty disables the server.
	StatusPort string

	LogLevel     string
	LogFile      string
	LogFileMaxMB int

	// DryRun logs tasks instead of posting them. Set from the command line, not the environment.
	DryRun bool
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	log.Info().Msg("Loading application configuration from environment variables...")

	cfg := &Config{}
	var err error

	botAddress, err := getEnv("BOT_ADDRESS")
	if err != nil {
		return nil, err
	}
	if cfg.BotAddress, err = parseAddress("BOT_ADDRESS", botAddress); err != nil {
		return nil, err
	}

	if cfg.Contracts, err = loadContracts(); err != nil {
		return nil, err
	}
	if cfg.Endpoints, err = loadEndpointConfig(); err != nil {
		return nil, err
	}

	operationMinutes, err := getEnvAsFloat64OrDefault("OPERATION_INTERVAL_MINUTES", DEFAULT_OPERATION_INTERVAL_MINUTES)
	if err != nil {
		return nil, err
	}
	emergencyMinutes, err := getEnvAsFloat64OrDefault("EMERGENCY_CHECK_INTERVAL_MINUTES", DEFAULT_EMERGENCY_INTERVAL_MINUTES)
	if err != nil {
		return nil, err
	}
	cfg.OperationInterval = minutes(operationMinutes)
	cfg.EmergencyInterval = minutes(emergencyMinutes)

	if cfg.Risk, err = loadRiskParameters(); err != nil {
		return nil, err
	}

	if cfg.AIReasoningEnabled, err = getEnvAsBoolOrDefault("AI_REASONING_ENABLED", false); err != nil {
		return nil, err
	}
	cfg.AWSRegion = getEnvOrDefault("AWS_REGION", DEFAULT_AWS_REGION)
	cfg.BedrockModelID = getEnvOrDefault("BEDROCK_MODEL_ID", DEFAULT_BEDROCK_MODEL_ID)
	cfg.AWSAccessKeyID = getEnvOrDefault("AWS_ACCESS_KEY_ID", "")
	cfg.AWSSecretAccessKey = getEnvOrDefault("AWS_SECRET_ACCESS_KEY", "")

	blockSeconds, err := getEnvAsFloat64OrDefault("CHAIN_BLOCK_TIME_SECONDS", DEFAULT_BLOCK_TIME_SECONDS)
	if err != nil {
		return nil, err
	}
	cfg.BlockTime = time.Duration(blockSeconds * float64(time.Second))

	if cfg.RPCRatePerSecond, err = getEnvAsFloat64OrDefault("CHAIN_RPC_RATE_PER_SECOND", DEFAULT_RPC_RATE_PER_SECOND); err != nil {
		return nil, err
	}
	callSeconds, err := getEnvAsFloat64OrDefault("CHAIN_CALL_TIMEOUT_SECONDS", DEFAULT_CALL_TIMEOUT_SECONDS)
	if err != nil {
		return nil, err
	}
	cfg.CallTimeout = time.Duration(callSeconds * float64(time.Second))

	cfg.StatusPort = getEnvOrDefault("STATUS_PORT", DEFAULT_STATUS_PORT)
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.LogFile = getEnvOrDefault("LOG_FILE", "")
	if cfg.LogFileMaxMB, err = getEnvAsIntOrDefault("LOG_FILE_MAX_MB", 0); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Debug().
		Str("botAddress", cfg.BotAddress.Hex()).
		Str("comptroller", cfg.Contracts.Comptroller.Hex()).
		Str("vault", cfg.Contracts.Vault.Hex()).
		Dur("operationInterval", cfg.OperationInterval).
		Dur("emergencyInterval", cfg.EmergencyInterval).
		Bool("aiReasoningEnabled", cfg.AIReasoningEnabled).
		Msg("Configuration loaded successfully.")

	return cfg, nil
}

// Validate checks the invariants the decision and override logic depend on.
func (c *Config) Validate() error {
	if err := ValidateRiskParameters(c.Risk); err != nil {
		return err
	}
	if c.OperationInterval <= 0 || c.EmergencyInterval <= 0 {
		return fmt.Errorf("%w: intervals must be positive (operation %s, emergency %s)", ErrInvalidInterval, c.OperationInterval, c.EmergencyInterval)
	}
	if c.EmergencyInterval >= c.OperationInterval {
		return fmt.Errorf("%w: emergency interval %s must be shorter than operation interval %s", ErrInvalidInterval, c.EmergencyInterval, c.OperationInterval)
	}
	if c.BlockTime <= 0 {
		return fmt.Errorf("%w: CHAIN_BLOCK_TIME_SECONDS must be positive", ErrInvalidEnv)
	}
	if c.RPCRatePerSecond <= 0 {
		return fmt.Errorf("%w: CHAIN_RPC_RATE_PER_SECOND must be positive", ErrInvalidEnv)
	}
	if c.CallTimeout <= 0 {
		return fmt.Errorf("%w: CHAIN_CALL_TIMEOUT_SECONDS must be positive", ErrInvalidEnv)
	}
	if c.AIReasoningEnabled && c.BedrockModelID == "" {
		return fmt.Errorf("%w: BEDROCK_MODEL_ID is required when AI_REASONING_ENABLED is true", ErrInvalidEnv)
	}
	return nil
}

// DecisionSource names the strategy for task metadata.
func (c *Config) DecisionSource() string {
	if c.AIReasoningEnabled {
		return "Bedrock:" + c.BedrockModelID
	}
	return RULE_BASED_SOURCE
}

func minutes(m float64) time.Duration {
	return time.Duration(m * float64(time.Minute))
}

func parseAddress(key, value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("%w: %s=%q", ErrInvalidAddress, key, value)
	}
	return common.HexToAddress(value), nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value), nil
	}
	return "", fmt.Errorf("%w: %s", ErrMissingEnv, key)
}

// getEnvOrDefault retrieves a string environment variable, falling back when unset.
func getEnvOrDefault(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return strings.TrimSpace(value)
	}
	return fallback
}

// getEnvAsFloat64OrDefault retrieves an environment variable as a float64.
func getEnvAsFloat64OrDefault(key string, fallback float64) (float64, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(valueStr) == "" {
		return fallback, nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(valueStr), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a valid float64, got: %s", ErrInvalidEnv, key, valueStr)
	}
	return value, nil
}

// getEnvAsIntOrDefault retrieves an environment variable as an int.
func getEnvAsIntOrDefault(key string, fallback int) (int, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(valueStr) == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(valueStr))
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a valid int, got: %s", ErrInvalidEnv, key, valueStr)
	}
	return value, nil
}

// getEnvAsBoolOrDefault retrieves an environment variable as a bool.
func getEnvAsBoolOrDefault(key string, fallback bool) (bool, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(valueStr) == "" {
		return fallback, nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a valid bool, got: %s", ErrInvalidEnv, key, valueStr)
	}
	return value, nil
}
