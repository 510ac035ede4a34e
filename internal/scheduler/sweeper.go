package scheduler

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethfaucet/faucet-dispatcher/internal/chain"
)

// sweepPollInterval is how often the sweeper looks for stale in-flight
// entries. It is independent of timeout, which is the staleness threshold
// itself.
const sweepPollInterval = 60 * time.Second

// runSweeper recovers transfers whose submitted transaction has neither
// settled nor failed within timeout. There is no nonce reset: the stuck
// transaction may still land later at its original nonce, so the wallet
// returning to the pool relies solely on the sweeper's balance read to
// avoid double counting funds it never actually lost (see SPEC_FULL.md
// Open Question 2).
func runSweeper(ctx context.Context, state *State, client chain.Client, timeout time.Duration) {
	ticker := time.NewTicker(sweepPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepOnce(ctx, state, client, timeout)
		}
	}
}

func sweepOnce(ctx context.Context, state *State, client chain.Client, timeout time.Duration) {
	cutoff := time.Now().Add(-timeout)
	stale := state.SnapshotInflightOlderThan(cutoff)

	for _, entry := range stale {
		// A second check against the chain before declaring it stuck: the
		// sweeper and the observer race on exactly this window, and a
		// receipt that shows up between the snapshot and here must win.
		receipt, err := client.TransactionReceipt(ctx, entry.TxHash)
		if err != nil {
			log.Warn("sweeper failed to recheck receipt, leaving in-flight", "hash", entry.TxHash, "err", err)
			continue
		}
		if receipt != nil {
			// Settled since the snapshot; let the observer's own delivery
			// of this block commit it instead of racing CommitReceipt here.
			continue
		}

		balance, err := client.BalanceAt(ctx, entry.Sender.Address)
		if err != nil {
			log.Warn("sweeper failed to refresh stuck sender balance, leaving in-flight", "hash", entry.TxHash, "err", err)
			continue
		}

		state.CommitTimeout(entry.TxHash, entry.Sender, balance, entry.Request)
		log.Warn("transfer timed out, requeued", "request", entry.Request, "hash", entry.TxHash, "age", time.Since(entry.SubmittedAt))
	}
}
