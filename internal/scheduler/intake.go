package scheduler

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
)

// runIntake drains addresses off requests (the bounded channel fed by the
// HTTP and Discord front-ends) and appends a Faucet request for each to the
// back of the queue. It performs no validation beyond what already happened
// upstream of the channel: it trusts the producer.
func runIntake(ctx context.Context, state *State, requests <-chan common.Address, grantAmount *big.Int) {
	for {
		select {
		case <-ctx.Done():
			return
		case address, ok := <-requests:
			if !ok {
				return
			}
			req := NewFaucetRequest(address, grantAmount)
			state.EnqueueBack(req)
			log.Info("intake accepted request", "address", address, "amount", grantAmount)
		}
	}
}
