package vault

import (
	"context"

	"github.com/kilolend/lvm/internal/chain"
)

// ChainReader defines the read-only vault surface the tracker needs.
// It abstracts away the RPC client so the tracker can be driven by fakes in tests.
type ChainReader interface {
	// VaultTotals returns the raw vault totals (managed assets, liquid balance, share price, supply).
	VaultTotals(ctx context.Context) (chain.VaultTotals, error)

	// BlockNumber returns the latest block height.
	BlockNumber(ctx context.Context) (uint64, error)

	// WithdrawalRequests returns decoded WithdrawalRequested events in [from, to].
	WithdrawalRequests(ctx context.Context, from, to uint64) ([]chain.WithdrawalLog, error)
}
