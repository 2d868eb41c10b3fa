package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// WithdrawalLog is a raw WithdrawalRequested event.
type WithdrawalLog struct {
	RequestID         *big.Int
	User              common.Address
	DepositIndex      *big.Int
	Shares            *big.Int
	Assets            *big.Int
	IsEarlyWithdrawal bool
	BlockNumber       uint64
	TxHash            common.Hash
}

// WithdrawalRequests returns WithdrawalRequested events emitted by the vault in [from, to].
// Logs that cannot be decoded are skipped and logged. Provider errors are returned unchanged
// inside the wrap so callers can classify range errors from the message.
func (c *Client) WithdrawalRequests(ctx context.Context, from, to uint64) ([]WithdrawalLog, error) {
	if from > to {
		return nil, fmt.Errorf("%w: from %d > to %d", ErrInvalidBlockRange, from, to)
	}

	event, ok := c.abis.Vault.Events[EVENT_WITHDRAWAL_REQUESTED]
	if !ok {
		return nil, fmt.Errorf("%w: vault ABI has no %s event", ErrUnexpectedOutput, EVENT_WITHDRAWAL_REQUESTED)
	}

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{c.vault},
		Topics:    [][]common.Hash{{event.ID}},
	}

	callCtx, cancel, err := c.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	logs, err := c.backend.FilterLogs(callCtx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: blocks %d-%d: %w", ErrLogQueryFailed, from, to, err)
	}

	out := make([]WithdrawalLog, 0, len(logs))
	for _, lg := range logs {
		if lg.Removed {
			continue
		}
		if len(lg.Topics) < 3 {
			c.logger.Warn().
				Str("txHash", lg.TxHash.Hex()).
				Int("topics", len(lg.Topics)).
				Msg("Skipping WithdrawalRequested log with missing indexed topics")
			continue
		}

		fields := map[string]interface{}{}
		if err := c.abis.Vault.UnpackIntoMap(fields, EVENT_WITHDRAWAL_REQUESTED, lg.Data); err != nil {
			c.logger.Warn().
				Err(err).
				Str("txHash", lg.TxHash.Hex()).
				Uint64("block", lg.BlockNumber).
				Msg("Skipping undecodable WithdrawalRequested log")
			continue
		}

		w := WithdrawalLog{
			RequestID:   new(big.Int).SetBytes(lg.Topics[1].Bytes()),
			User:        common.BytesToAddress(lg.Topics[2].Bytes()),
			BlockNumber: lg.BlockNumber,
			TxHash:      lg.TxHash,
		}
		w.DepositIndex, _ = fields["depositIndex"].(*big.Int)
		w.Shares, _ = fields["shares"].(*big.Int)
		w.Assets, _ = fields["assets"].(*big.Int)
		w.IsEarlyWithdrawal, _ = fields["isEarlyWithdrawal"].(bool)

		out = append(out, w)
	}

	return out, nil
}
