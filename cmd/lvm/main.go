package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kilolend/lvm/internal/ai"
	"github.com/kilolend/lvm/internal/analyzer"
	"github.com/kilolend/lvm/internal/chain"
	"github.com/kilolend/lvm/internal/config"
	"github.com/kilolend/lvm/internal/datafetcher"
	"github.com/kilolend/lvm/internal/logger"
	"github.com/kilolend/lvm/internal/lvm"
	"github.com/kilolend/lvm/internal/metrics"
	"github.com/kilolend/lvm/internal/planner"
	"github.com/kilolend/lvm/internal/position"
	"github.com/kilolend/lvm/internal/state"
	"github.com/kilolend/lvm/internal/tasks"
	"github.com/kilolend/lvm/internal/vault"
	"github.com/kilolend/lvm/internal/web"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// EXIT_EMERGENCY is the exit code of `lvm check` when the health factor is below the emergency threshold.
const EXIT_EMERGENCY = 2

var ErrHealthBelowEmergency = errors.New("health factor below emergency threshold")

var dryRun bool

// main is the entry point for the LVM system.
func main() {
	rootCmd := &cobra.Command{
		Use:           "lvm",
		Short:         "Leverage vault monitor",
		Long:          `Monitors a leveraged staking position and its vault, and hands rebalancing tasks to an operator`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the operation and emergency loops",
		RunE:  runMonitor,
	}
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "log tasks instead of submitting them")

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Run one cheap health check and exit",
		RunE:  runCheck,
	}

	rootCmd.AddCommand(runCmd, checkCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps a command error onto the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrHealthBelowEmergency):
		return EXIT_EMERGENCY
	default:
		return 1
	}
}

// setup loads the environment, configures logging and verifies chain connectivity.
func setup(ctx context.Context) (*config.Config, *chain.Client, error) {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg.DryRun = dryRun

	logger.Initialize(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile, FileMaxMB: cfg.LogFileMaxMB})

	client, err := chain.Dial(ctx, cfg.Endpoints.RPCURL, chain.Config{
		RatePerSecond: cfg.RPCRatePerSecond,
		CallTimeout:   cfg.CallTimeout,
		Comptroller:   cfg.Contracts.Comptroller,
		Vault:         cfg.Contracts.Vault,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("chain connection error: %w", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("chain connectivity check failed: %w", err)
	}
	log.Info().Str("rpc", cfg.Endpoints.RPCURL).Str("chainId", chainID.String()).Msg("Chain connected")

	return cfg, client, nil
}

func newMarketData(cfg *config.Config, client *chain.Client) (*datafetcher.MarketDataProvider, error) {
	rateMarket, _ := config.NewMarketRegistry(cfg.Contracts).Lookup(cfg.Contracts.RateMarket)
	return datafetcher.NewMarketDataProvider(datafetcher.Config{
		Chain:              client,
		PriceFeedURL:       cfg.Endpoints.PriceFeedURL,
		RateMarket:         cfg.Contracts.RateMarket,
		RateMarketDecimals: rateMarket.Decimals,
		BlockTime:          cfg.BlockTime,
	})
}

func newMonitor(cfg *config.Config, client *chain.Client, prices position.PriceSource) (*position.Monitor, error) {
	return position.NewMonitor(position.Config{
		Chain:    client,
		Prices:   prices,
		Account:  cfg.BotAddress,
		USDT:     cfg.Contracts.USDT,
		StKAIA:   cfg.Contracts.StKAIA,
		Registry: config.NewMarketRegistry(cfg.Contracts),
		Risk:     cfg.Risk,
	})
}

func newDecisionEngine(ctx context.Context, cfg *config.Config) (*planner.DecisionEngine, error) {
	engineCfg := planner.Config{Risk: cfg.Risk}
	if cfg.AIReasoningEnabled {
		oracle, err := ai.NewBedrockOracle(ctx, ai.BedrockConfig{
			Region:          cfg.AWSRegion,
			ModelID:         cfg.BedrockModelID,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Bedrock oracle: %w", err)
		}
		engineCfg.Oracle = oracle
		engineCfg.ModelSource = cfg.DecisionSource()
	}
	return planner.NewDecisionEngine(engineCfg)
}

func newEmitter(cfg *config.Config) (*tasks.Emitter, error) {
	if cfg.DryRun {
		log.Warn().Msg("Dry-run mode: tasks are logged and not submitted")
		return tasks.NewEmitter(tasks.NewDryRunSubmitter())
	}
	submitter, err := tasks.NewHTTPSubmitter(tasks.HTTPConfig{
		BaseURL: cfg.Endpoints.APIBaseURL,
		APIKey:  cfg.Endpoints.APIKey,
	})
	if err != nil {
		return nil, err
	}
	return tasks.NewEmitter(submitter)
}

// runMonitor wires every component and runs both loops until SIGINT or SIGTERM.
func runMonitor(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, client, err := setup(ctx)
	if err != nil {
		return err
	}
	defer client.Close()
	log.Info().Str("version", config.BOT_VERSION).Str("decisionSource", cfg.DecisionSource()).Msg("LVM Core Logic Starting...")

	marketData, err := newMarketData(cfg, client)
	if err != nil {
		return err
	}
	monitor, err := newMonitor(cfg, client, marketData)
	if err != nil {
		return err
	}
	tracker, err := vault.NewTracker(vault.Config{Chain: client, BlockTime: cfg.BlockTime})
	if err != nil {
		return err
	}
	scorer, err := analyzer.NewRiskScorer(analyzer.DefaultRiskWeights, cfg.Risk)
	if err != nil {
		return err
	}
	engine, err := newDecisionEngine(ctx, cfg)
	if err != nil {
		return err
	}
	builder, err := tasks.NewBuilder(tasks.Config{UserAddress: cfg.BotAddress.Hex(), Risk: cfg.Risk})
	if err != nil {
		return err
	}
	emitter, err := newEmitter(cfg)
	if err != nil {
		return err
	}

	runtime := state.NewRuntime(nil)
	collectors := metrics.New()

	// --- Create LVM Instance with Dependency Injection ---
	instance, err := lvm.NewLVM(lvm.Config{
		Position:          monitor,
		Market:            marketData,
		Vault:             tracker,
		Risk:              scorer,
		Decider:           engine,
		Builder:           builder,
		Emitter:           emitter,
		Thresholds:        cfg.Risk,
		OperationInterval: cfg.OperationInterval,
		EmergencyInterval: cfg.EmergencyInterval,
		Runtime:           runtime,
		Metrics:           collectors,
	})
	if err != nil {
		return err
	}

	// --- Start Status Server ---
	var statusServer *web.StatusServer
	if cfg.StatusPort != "" {
		statusServer, err = web.NewStatusServer(web.Config{
			Port:            cfg.StatusPort,
			Status:          runtime,
			Metrics:         collectors.Handler(),
			MaxOperationAge: 2 * cfg.OperationInterval,
		})
		if err != nil {
			return err
		}
		go func() {
			if err := statusServer.Start(); err != nil {
				log.Error().Err(err).Msg("Status server failed")
			}
		}()
	} else {
		log.Info().Msg("STATUS_PORT is empty, status server disabled")
	}

	instance.Run(ctx)

	// --- Shutdown ---
	log.Info().Msg("Shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.SHUTDOWN_GRACE)
	defer cancel()
	if statusServer != nil {
		if err := statusServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			log.Warn().Err(err).Msg("Status server shutdown failed")
		}
	}
	instance.LogSummary()
	return nil
}

// runCheck performs one cheap health check and reports its status band.
func runCheck(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, client, err := setup(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	marketData, err := newMarketData(cfg, client)
	if err != nil {
		return err
	}
	monitor, err := newMonitor(cfg, client, marketData)
	if err != nil {
		return err
	}

	health, err := monitor.CheapHealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	band := position.HealthStatus(health.HealthFactor, cfg.Risk)
	log.Info().
		Float64("healthFactor", health.HealthFactor).
		Float64("liquidity", health.Liquidity).
		Float64("shortfall", health.Shortfall).
		Str("status", string(health.Status)).
		Str("band", string(band)).
		Msg("Health check")

	if health.HealthFactor < cfg.Risk.EmergencyThreshold {
		return fmt.Errorf("%w: %.4f < %v", ErrHealthBelowEmergency, health.HealthFactor, cfg.Risk.EmergencyThreshold)
	}
	return nil
}
