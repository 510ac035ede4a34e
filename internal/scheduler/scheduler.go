// Package scheduler implements the multi-wallet transfer dispatcher: the
// state machine that owns a pool of sender wallets, a queue of pending
// transfers, and a table of in-flight transactions, and coordinates
// bootstrap, dispatch, block observation, timeout sweeping and request
// intake against that shared state.
package scheduler

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ethfaucet/faucet-dispatcher/internal/chain"
)

// Config holds the scheduler's runtime parameters, all sourced from the
// process configuration.
type Config struct {
	Mnemonic           string
	NumWallets         int
	EnableFunding      bool
	FaucetGrantAmount  *big.Int
	TransactionTimeout time.Duration
}

// Scheduler owns the shared state and every long-lived loop that acts on
// it. Callers construct one per faucet instance; it is never a package
// global, so tests can run several independent schedulers concurrently.
type Scheduler struct {
	state  *State
	client chain.Client
	cfg    Config

	requests chan common.Address
}

// New creates a Scheduler bound to client. Bootstrap has not run yet; call
// Run to bootstrap and start the four concurrent loops.
func New(client chain.Client, cfg Config) *Scheduler {
	return &Scheduler{
		state:    NewState(),
		client:   client,
		cfg:      cfg,
		requests: make(chan common.Address, 256),
	}
}

// Submit enqueues an address for a faucet grant. It is the intake
// adapter's only entry point into the scheduler, used by both the HTTP and
// Discord front-ends. It returns false if the intake channel is full and
// the front-end should report failure to its caller.
func (s *Scheduler) Submit(address common.Address) bool {
	select {
	case s.requests <- address:
		return true
	default:
		return false
	}
}

// Counts exposes pool/in-flight/funding/queue sizes for the health
// endpoint and tests.
func (s *Scheduler) Counts() (poolLen, inflightLen, fundingLen, queueLen int) {
	return s.state.Counts()
}

// ObserverReady reports whether the block subscription has ever been
// established, mirroring the dispatch gate.
func (s *Scheduler) ObserverReady() bool {
	return s.state.ObserverReady()
}

// Run bootstraps the wallet pool and then runs the dispatcher, observer,
// sweeper and intake loops until ctx is cancelled. It blocks for the
// duration of the process lifetime.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Info("bootstrap starting", "num_wallets", s.cfg.NumWallets, "enable_funding", s.cfg.EnableFunding)
	if err := Bootstrap(ctx, s.state, s.client, s.cfg.Mnemonic, s.cfg.NumWallets, s.cfg.EnableFunding); err != nil {
		return err
	}
	log.Info("bootstrap complete")

	var wg sync.WaitGroup
	wg.Add(4)

	go func() {
		defer wg.Done()
		runObserver(ctx, s.state, s.client)
	}()
	go func() {
		defer wg.Done()
		waitObserverReady(ctx, s.state)
		runDispatcher(ctx, s.state, s.client)
	}()
	go func() {
		defer wg.Done()
		runSweeper(ctx, s.state, s.client, s.cfg.TransactionTimeout)
	}()
	go func() {
		defer wg.Done()
		runIntake(ctx, s.state, s.requests, s.cfg.FaucetGrantAmount)
	}()

	wg.Wait()
	return ctx.Err()
}

// waitObserverReady polls at one-second granularity until the observer has
// established at least one block subscription, or ctx is cancelled. The
// dispatcher must never submit a transaction before the observer can see
// its receipt.
func waitObserverReady(ctx context.Context, state *State) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		if state.ObserverReady() {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
