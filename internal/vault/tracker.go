/*
This file contains the VaultLiquidityTracker. It reads vault totals, scans recent
WithdrawalRequested events and decides whether liquid KAIA must be prepared for them.
*/

package vault

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/kilolend/lvm/internal/chain"
	"github.com/kilolend/lvm/internal/config"
	"github.com/kilolend/lvm/internal/logger"
	"github.com/kilolend/lvm/internal/types"
	"github.com/kilolend/lvm/internal/utils"
	"github.com/rs/zerolog"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidConfig      = errors.New("invalid vault tracker configuration")
	ErrVaultUnavailable   = errors.New("vault metrics unavailable")
	ErrInvalidVaultData   = errors.New("vault data is invalid")
	ErrScanTimeout        = errors.New("withdrawal scan timed out")
	ErrBlockHeightUnknown = errors.New("latest block height unavailable")
)

// rangeErrorMarkers identify provider errors that a narrower block window may avoid.
var rangeErrorMarkers = []string{
	"block number",
	"header",
	"block range",
	"range",
	"limit exceeded",
	"too many",
}

// Config holds the configuration for creating a new Tracker.
type Config struct {
	Chain       ChainReader
	BlockTime   time.Duration
	PrimaryScan time.Duration // optional; defaults to PRIMARY_SCAN_WINDOW
	RetryScan   time.Duration // optional; defaults to RETRY_SCAN_WINDOW
	ScanTimeout time.Duration // optional; defaults to SCAN_TIMEOUT
}

// Tracker is the VaultLiquidityTracker.
type Tracker struct {
	chain       ChainReader
	blockTime   time.Duration
	primaryScan time.Duration
	retryScan   time.Duration
	scanTimeout time.Duration
	logger      zerolog.Logger
}

// NewTracker validates the configuration and builds a Tracker.
func NewTracker(cfg Config) (*Tracker, error) {
	if cfg.Chain == nil {
		return nil, fmt.Errorf("%w: chain reader cannot be nil", ErrInvalidConfig)
	}
	if cfg.BlockTime <= 0 {
		return nil, fmt.Errorf("%w: block time must be positive", ErrInvalidConfig)
	}

	t := &Tracker{
		chain:       cfg.Chain,
		blockTime:   cfg.BlockTime,
		primaryScan: cfg.PrimaryScan,
		retryScan:   cfg.RetryScan,
		scanTimeout: cfg.ScanTimeout,
		logger:      logger.GetForComponent("vault_tracker"),
	}
	if t.primaryScan <= 0 {
		t.primaryScan = config.PRIMARY_SCAN_WINDOW
	}
	if t.retryScan <= 0 {
		t.retryScan = config.RETRY_SCAN_WINDOW
	}
	if t.scanTimeout <= 0 {
		t.scanTimeout = config.SCAN_TIMEOUT
	}
	if t.retryScan >= t.primaryScan {
		return nil, fmt.Errorf("%w: retry window %s must be shorter than primary window %s", ErrInvalidConfig, t.retryScan, t.primaryScan)
	}
	return t, nil
}

// Metrics reads the vault totals in whole KAIA and derives the deployed amount.
func (t *Tracker) Metrics(ctx context.Context) (*types.VaultMetrics, error) {
	totals, err := t.chain.VaultTotals(ctx)
	if err != nil {
		t.logger.Error().Err(err).Msg("Failed to read vault metrics")
		return nil, errors.Join(ErrVaultUnavailable, err)
	}

	total, err1 := utils.BigIntToFloat64(totals.TotalManagedAssets, config.NATIVE_DECIMALS)
	liquid, err2 := utils.BigIntToFloat64(totals.LiquidBalance, config.NATIVE_DECIMALS)
	sharePrice, err3 := utils.BigIntToFloat64(totals.SharePrice, config.NATIVE_DECIMALS)
	supply, err4 := utils.BigIntToFloat64(totals.TotalSupply, config.NATIVE_DECIMALS)
	if err := errors.Join(err1, err2, err3, err4); err != nil {
		return nil, errors.Join(ErrInvalidVaultData, err)
	}

	metrics := &types.VaultMetrics{
		TotalManagedAssets: total,
		LiquidBalance:      liquid,
		SharePrice:         sharePrice,
		TotalSupply:        supply,
		DeployedAssets:     total - liquid,
	}

	t.logger.Debug().
		Float64("totalManagedAssets", total).
		Float64("liquidBalance", liquid).
		Float64("deployedAssets", metrics.DeployedAssets).
		Float64("sharePrice", sharePrice).
		Msg("Vault metrics read")

	return metrics, nil
}

// PendingWithdrawals scans the primary block window for withdrawal requests. A range error
// gets one retry over the narrower window. Every failure, timeouts included, ends in an empty
// result; an empty result means "nothing found this cycle".
func (t *Tracker) PendingWithdrawals(ctx context.Context) []types.WithdrawalEvent {
	latest, err := t.chain.BlockNumber(ctx)
	if err != nil {
		t.logger.Warn().Err(errors.Join(ErrBlockHeightUnknown, err)).Msg("Cannot scan withdrawals")
		return []types.WithdrawalEvent{}
	}

	logs, err := t.scan(ctx, latest, t.primaryScan)
	if err != nil && isRangeError(err) {
		t.logger.Warn().
			Err(err).
			Dur("window", t.retryScan).
			Msg("Withdrawal scan hit a range limit; retrying with a smaller window")
		logs, err = t.scan(ctx, latest, t.retryScan)
	}
	if err != nil {
		t.logger.Warn().Err(err).Msg("Withdrawal scan failed; assuming no pending withdrawals")
		return []types.WithdrawalEvent{}
	}

	events := make([]types.WithdrawalEvent, 0, len(logs))
	for _, lg := range logs {
		events = append(events, types.WithdrawalEvent{
			RequestID:         bigString(lg.RequestID),
			User:              lg.User.Hex(),
			DepositIndex:      bigString(lg.DepositIndex),
			Shares:            amount(lg.Shares),
			Assets:            amount(lg.Assets),
			IsEarlyWithdrawal: lg.IsEarlyWithdrawal,
			BlockNumber:       lg.BlockNumber,
			TxHash:            lg.TxHash.Hex(),
		})
	}

	t.logger.Debug().
		Int("count", len(events)).
		Uint64("latestBlock", latest).
		Msg("Withdrawal scan complete")

	return events
}

// scan reads [latest-window, latest] under the scan timeout.
func (t *Tracker) scan(ctx context.Context, latest uint64, window time.Duration) ([]chain.WithdrawalLog, error) {
	blocks := config.BlocksIn(window, t.blockTime)
	from := uint64(0)
	if latest > blocks {
		from = latest - blocks
	}

	scanCtx, cancel := context.WithTimeout(ctx, t.scanTimeout)
	defer cancel()

	logs, err := t.chain.WithdrawalRequests(scanCtx, from, latest)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(scanCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s: %w", ErrScanTimeout, t.scanTimeout, err)
		}
		return nil, err
	}
	return logs, nil
}

// isRangeError reports whether a scan error looks like a provider block-range limit.
// Timeouts are never range errors.
func isRangeError(err error) bool {
	if err == nil || errors.Is(err, ErrScanTimeout) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range rangeErrorMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// ShouldPrepare compares the vault's liquid balance with the pending withdrawal requests.
func ShouldPrepare(metrics *types.VaultMetrics, withdrawals []types.WithdrawalEvent) types.LiquidityCheck {
	if metrics == nil {
		return types.LiquidityCheck{
			Status: types.LiquidityCannotCheck,
			Reason: "Cannot check - vault metrics unavailable",
		}
	}
	if len(withdrawals) == 0 {
		return types.LiquidityCheck{
			Status:        types.LiquidityNoWithdrawals,
			Reason:        "No pending withdrawals",
			CurrentLiquid: metrics.LiquidBalance,
		}
	}

	var requested float64
	for _, w := range withdrawals {
		requested += RequestedAssets(w, metrics.SharePrice)
	}
	required := requested * config.WITHDRAWAL_BUFFER

	check := types.LiquidityCheck{
		RequiredAssets:  required,
		CurrentLiquid:   metrics.LiquidBalance,
		PendingRequests: len(withdrawals),
	}

	if metrics.LiquidBalance < required {
		check.ShouldPrepare = true
		check.Status = types.LiquidityInsufficient
		check.Deficit = required - metrics.LiquidBalance
		check.Reason = fmt.Sprintf("Insufficient liquidity for %d withdrawal(s)", len(withdrawals))
		check.Recommendation = fmt.Sprintf("Unstake %.4f KAIA to prepare for withdrawals", check.Deficit)
		return check
	}

	check.Status = types.LiquiditySufficient
	check.Reason = "Sufficient liquidity available"
	return check
}

// RequestedAssets is the KAIA a request will draw: its asset amount, or shares at the current
// share price when the event carried no asset amount.
func RequestedAssets(w types.WithdrawalEvent, sharePrice float64) float64 {
	if w.Assets > 0 {
		return w.Assets
	}
	return w.Shares * sharePrice
}

func amount(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, err := utils.BigIntToFloat64(v, config.NATIVE_DECIMALS)
	if err != nil {
		return 0
	}
	return f
}

func bigString(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}
