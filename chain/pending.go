package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// DefaultReceiptPollInterval is how often a pending transaction polls for its receipt
const DefaultReceiptPollInterval = 2 * time.Second

// PendingTx is a submitted transaction awaiting confirmation
type PendingTx struct {
	Hash   common.Hash
	Method string

	from    common.Address
	to      common.Address
	data    []byte
	backend Backend

	PollInterval time.Duration
}

// Wait blocks until the transaction is mined or ctx is done. A mined but
// failed transaction is returned as a *RevertError.
func (p *PendingTx) Wait(ctx context.Context) (*types.Receipt, error) {
	interval := p.PollInterval
	if interval <= 0 {
		interval = DefaultReceiptPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		receipt, err := p.backend.TransactionReceipt(ctx, p.Hash)
		switch {
		case err == nil:
			if receipt.Status != types.ReceiptStatusSuccessful {
				return receipt, p.revertError(ctx, receipt)
			}
			log.Debugf("Transaction %s mined in block %v", p.Hash.Hex(), receipt.BlockNumber)
			return receipt, nil
		case !errors.Is(err, ethereum.NotFound):
			return nil, fmt.Errorf("failed to get receipt for %s: %w", p.Hash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for transaction %s: %w", p.Hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// revertError replays the call at the block it was mined in to recover the
// revert reason.
func (p *PendingTx) revertError(ctx context.Context, receipt *types.Receipt) error {
	revertErr := &RevertError{TxHash: p.Hash}

	to := p.to
	_, err := p.backend.CallContract(ctx, ethereum.CallMsg{
		From: p.from,
		To:   &to,
		Data: p.data,
	}, receipt.BlockNumber)
	if reason, ok := RevertReason(err); ok {
		revertErr.Reason = reason
	}

	log.Warnf("Transaction %s (%s) reverted: %q", p.Hash.Hex(), p.Method, revertErr.Reason)
	return revertErr
}
