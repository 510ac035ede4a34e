package scheduler

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ethfaucet/faucet-dispatcher/internal/chain"
)

// observerResubscribeDelay is how long to wait before reconnecting a block
// subscription that ended, successfully or not. Also governs the
// startup connect-retry, which the spec gives the same five-second delay.
const observerResubscribeDelay = 5 * time.Second

// receiptPollInterval is the backoff between receipt polls for a tracked
// transaction that has not yet produced a receipt.
const receiptPollInterval = 1 * time.Second

// runObserver maintains a live block subscription for as long as ctx is
// not cancelled, reconnecting after any drop. It never exits on a single
// subscription error because the chain node a faucet depends on is exactly
// the kind of thing that occasionally restarts.
func runObserver(ctx context.Context, state *State, client chain.Client) {
	for {
		if ctx.Err() != nil {
			return
		}

		stream, err := client.SubscribeBlocks(ctx)
		if err != nil {
			log.Error("observer failed to subscribe, retrying", "err", err)
			if !sleepOrDone(ctx, observerResubscribeDelay) {
				return
			}
			continue
		}

		state.SetObserverReady()
		log.Info("observer subscription established")
		consumeBlocks(ctx, state, client, stream)
		stream.Close()

		if !sleepOrDone(ctx, observerResubscribeDelay) {
			return
		}
	}
}

// consumeBlocks drains one subscription until it ends, reporting transaction
// hashes the scheduler is tracking.
func consumeBlocks(ctx context.Context, state *State, client chain.Client, stream chain.BlockStream) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-stream.Err():
			if !ok {
				return
			}
			if err != nil {
				log.Warn("observer subscription ended", "err", err)
			}
			return
		case block, ok := <-stream.Blocks():
			if !ok {
				return
			}
			for _, txHash := range block.Transactions {
				handleObservedTx(ctx, state, client, txHash)
			}
		}
	}
}

// handleObservedTx checks whether a mined transaction is one the dispatcher
// is waiting on, and if so settles it. The overwhelming majority of
// transactions on any chain belong to someone else, so the in-flight lookup
// is the fast path out for everything that doesn't match.
func handleObservedTx(ctx context.Context, state *State, client chain.Client, txHash common.Hash) {
	entry, tracked := state.LookupInflight(txHash)
	if !tracked {
		return
	}

	receipt, ok := pollReceipt(ctx, client, txHash)
	if !ok {
		// ctx was cancelled while polling; the scheduler is shutting down.
		return
	}

	newSenderBalance, err := client.BalanceAt(ctx, entry.Sender.Address)
	if err != nil {
		log.Warn("failed to refresh sender balance after receipt, leaving in-flight", "hash", txHash, "err", err)
		return
	}

	var update *receiverUpdate
	receiptFailed := receipt.Status == types.ReceiptStatusFailed

	if entry.Request.Kind == KindFunding && !receiptFailed {
		receiverBalance, err := client.BalanceAt(ctx, entry.Request.Recipient())
		if err != nil {
			log.Warn("failed to fetch receiver balance after funding receipt, leaving in-flight", "hash", txHash, "err", err)
			return
		}
		update = &receiverUpdate{address: entry.Request.Recipient(), balance: receiverBalance}
	}

	state.CommitReceipt(txHash, entry.Sender, newSenderBalance, update, receiptFailed, entry.Request)

	if receiptFailed {
		log.Warn("transfer reverted on-chain, requeued", "request", entry.Request, "hash", txHash)
	} else {
		log.Info("transfer settled", "request", entry.Request, "hash", txHash)
	}
}

// pollReceipt polls get_receipt for txHash until it returns a present
// receipt, retrying every receiptPollInterval as spec'd — a transaction the
// subscription just delivered a block for may still lag on the RPC
// endpoint the receipt is fetched from, and any query error is treated as
// equally transient. Returns false only if ctx is cancelled first.
func pollReceipt(ctx context.Context, client chain.Client, txHash common.Hash) (*types.Receipt, bool) {
	for {
		receipt, err := client.TransactionReceipt(ctx, txHash)
		if err != nil {
			log.Warn("failed to fetch receipt for tracked transaction, retrying", "hash", txHash, "err", err)
		} else if receipt != nil {
			return receipt, true
		}

		if !sleepOrDone(ctx, receiptPollInterval) {
			return nil, false
		}
	}
}

// sleepOrDone waits for d or ctx cancellation, returning false if ctx ended
// first.
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
