package chain

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// nonceTracker hands out nonces for many addresses in a thread-safe manner.
// Adapted from the teacher's single-address NonceManager to track one
// counter per sender wallet, since the dispatcher may submit from several
// wallets whose round-trips overlap.
type nonceTracker struct {
	client *ethclient.Client
	mu     sync.Mutex
	nonces map[common.Address]uint64
}

func newNonceTracker(client *ethclient.Client) *nonceTracker {
	return &nonceTracker{
		client: client,
		nonces: make(map[common.Address]uint64),
	}
}

// next returns the next nonce to use for address, always validating against
// the network's pending nonce so it never falls behind a transaction sent
// outside this tracker.
func (nt *nonceTracker) next(ctx context.Context, address common.Address) (uint64, error) {
	nt.mu.Lock()
	defer nt.mu.Unlock()

	pending, err := nt.client.PendingNonceAt(ctx, address)
	if err != nil {
		return 0, err
	}

	current, known := nt.nonces[address]
	if !known || pending > current {
		current = pending
	}

	nt.nonces[address] = current + 1
	return current, nil
}
