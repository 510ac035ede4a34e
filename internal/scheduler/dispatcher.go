package scheduler

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethfaucet/faucet-dispatcher/internal/chain"
)

// dispatchPollInterval is how often the dispatcher checks the queue and
// pool when there is nothing to do. It never blocks on a channel because
// the queue can be fed from the intake adapter, bootstrap, the observer's
// requeue-on-failure path and the sweeper's timeout path all at once.
const dispatchPollInterval = 1 * time.Second

// runDispatcher pops a (wallet, request) pair whenever the pool can afford
// the request at the front of the queue, submits the transfer, and records
// it as in-flight. It never sends a second transaction from a wallet whose
// first one hasn't settled, because a wallet leaves the pool the instant it
// is checked out and only returns once the send either fails immediately or
// is later settled by the observer or sweeper.
func runDispatcher(ctx context.Context, state *State, client chain.Client) {
	ticker := time.NewTicker(dispatchPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			dispatchOnce(ctx, state, client)
		}
	}
}

// dispatchOnce drains the queue of every request the pool can currently
// afford per tick, rather than one submission per tick, so a burst of
// small requests does not each wait a full poll interval behind the
// others. Submissions within a drain are still strictly sequential, so at
// most one SendValueTransfer call is ever in flight.
func dispatchOnce(ctx context.Context, state *State, client chain.Client) {
	for {
		balance, sender, req, ok := state.TryCheckout()
		if !ok {
			return
		}

		amount := transferAmount(req, balance)
		txHash, err := client.SendValueTransfer(ctx, sender, req.Recipient(), amount)
		if err != nil {
			log.Error("failed to submit transfer, requeuing", "request", req, "err", err)
			state.RequeueAfterSubmitFailure(balance, sender, req)
			return
		}

		state.RecordInflight(txHash, sender, req, time.Now())
		log.Info("submitted transfer", "request", req, "sender", sender.Address, "amount", amount, "hash", txHash)
	}
}

// transferAmount computes the on-chain value to move for req, given the
// balance of the wallet that was popped to serve it. A Faucet grant sends
// its exact configured amount; a Funding transfer donates half of the
// sender's own balance to the recipient, which pulls both wallets toward
// the pool mean over successive bootstrap rounds rather than all at once.
func transferAmount(req TransferRequest, senderBalance *big.Int) *big.Int {
	if req.Kind == KindFunding {
		return new(big.Int).Div(senderBalance, big.NewInt(2))
	}
	return req.Amount
}
