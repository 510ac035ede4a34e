package scheduler

import (
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ethfaucet/faucet-dispatcher/internal/walletkey"
)

// InflightTransfer is a transaction that has been submitted but not yet
// settled.
type InflightTransfer struct {
	Sender      *walletkey.Wallet
	Request     TransferRequest
	SubmittedAt time.Time
}

// receiverUpdate carries the receiver's new balance out of a settled
// Funding receipt so it can be applied to fundingInProgress under the
// write lock.
type receiverUpdate struct {
	address common.Address
	balance *big.Int
}

// State is the single shared record the four concurrent loops coordinate
// against: the wallet pool, the pending queue, the in-flight table, and the
// bootstrap funding set. Every multi-field mutation happens under mu in one
// critical section; no RPC call is ever made while mu is held — callers
// read-decide, release, do I/O, then reacquire to commit (see dispatcher.go
// and observer.go).
type State struct {
	mu sync.RWMutex

	pool              *walletkey.Pool
	queue             *requestQueue
	inflight          map[common.Hash]*InflightTransfer
	fundingInProgress map[common.Address]*walletkey.Wallet

	// observerReady is read far more often than it is written (the
	// dispatcher polls it every second) so it is a separate atomic rather
	// than another field guarded by mu.
	observerReady atomic.Bool
}

// NewState creates an empty State.
func NewState() *State {
	return &State{
		pool:              walletkey.NewPool(),
		queue:             newRequestQueue(),
		inflight:          make(map[common.Hash]*InflightTransfer),
		fundingInProgress: make(map[common.Address]*walletkey.Wallet),
	}
}

// ObserverReady reports whether the observer has established a live block
// subscription at least once.
func (s *State) ObserverReady() bool {
	return s.observerReady.Load()
}

// SetObserverReady is called each time the observer's block subscription
// succeeds; only the first call changes anything. It never reverts to false.
func (s *State) SetObserverReady() {
	s.observerReady.Store(true)
}

// EnqueueBack appends a request to the back of the queue. Used by the
// intake adapter for Faucet requests and by failure/timeout recovery paths.
func (s *State) EnqueueBack(req TransferRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue.PushBack(req)
}

// SeedPool pushes a wallet directly into the pool, bypassing the queue.
// Used by bootstrap for wallets that do not need funding.
func (s *State) SeedPool(balance *big.Int, w *walletkey.Wallet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pool.Push(balance, w)
}

// SeedFunding records a wallet as awaiting its first funding transfer and
// queues the Funding request for it. Used only by bootstrap.
func (s *State) SeedFunding(req TransferRequest, w *walletkey.Wallet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fundingInProgress[w.Address] = w
	s.queue.PushBack(req)
}

// TryCheckout performs the dispatcher's atomic read-modify-write: if the
// queue is non-empty and the richest pool wallet can afford the front
// request, both are popped together and returned. Otherwise ok is false and
// neither the queue nor the pool is modified.
func (s *State) TryCheckout() (balance *big.Int, sender *walletkey.Wallet, req TransferRequest, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	front, present := s.queue.Front()
	if !present {
		return nil, nil, TransferRequest{}, false
	}
	if !s.pool.HasCapacityFor(front.RequiredFunds()) {
		return nil, nil, TransferRequest{}, false
	}

	balance, sender, _ = s.pool.PopMax()
	req, _ = s.queue.PopFront()
	return balance, sender, req, true
}

// RecordInflight records a successfully submitted transaction. Acknowledged
// race: on an extremely fast chain the receipt may arrive and be processed
// before this call lands; the spec accepts that risk rather than inserting
// speculatively before submission (see SPEC_FULL.md Open Question 1).
func (s *State) RecordInflight(txHash common.Hash, sender *walletkey.Wallet, req TransferRequest, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight[txHash] = &InflightTransfer{Sender: sender, Request: req, SubmittedAt: now}
}

// RequeueAfterSubmitFailure returns the wallet to the pool at its
// pre-submission balance and appends the request to the back of the queue,
// never the front, so a persistently failing request cannot block the line.
func (s *State) RequeueAfterSubmitFailure(balance *big.Int, sender *walletkey.Wallet, req TransferRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pool.Push(balance, sender)
	s.queue.PushBack(req)
}

// LookupInflight returns a copy of the in-flight entry for txHash, or false
// if it is not (or no longer) tracked -- the overwhelming majority of chain
// transactions the observer sees belong to someone else.
func (s *State) LookupInflight(txHash common.Hash) (InflightTransfer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.inflight[txHash]
	if !ok {
		return InflightTransfer{}, false
	}
	return *entry, true
}

// CommitReceipt applies a settled receipt: the sender always returns to the
// pool with its fresh balance; if this was a successful Funding transfer the
// receiver also leaves fundingInProgress and enters the pool; if the receipt
// indicates on-chain failure the request is requeued. The in-flight entry is
// always removed.
func (s *State) CommitReceipt(txHash common.Hash, sender *walletkey.Wallet, newSenderBalance *big.Int, update *receiverUpdate, receiptFailed bool, req TransferRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pool.Push(newSenderBalance, sender)

	if update != nil {
		if w, ok := s.fundingInProgress[update.address]; ok {
			delete(s.fundingInProgress, update.address)
			s.pool.Push(update.balance, w)
		} else {
			log.Warn("received funding transfer for unknown wallet", "address", update.address)
		}
	}

	if receiptFailed {
		s.queue.PushBack(req)
	}

	delete(s.inflight, txHash)
}

// inflightSnapshotEntry is one row of a point-in-time copy of the in-flight
// table, used by the sweeper so it never holds a lock while querying the
// chain for a stuck sender's balance.
type inflightSnapshotEntry struct {
	TxHash      common.Hash
	Sender      *walletkey.Wallet
	Request     TransferRequest
	SubmittedAt time.Time
}

// SnapshotInflightOlderThan returns every in-flight entry whose
// SubmittedAt is older than cutoff.
func (s *State) SnapshotInflightOlderThan(cutoff time.Time) []inflightSnapshotEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stale []inflightSnapshotEntry
	for txHash, entry := range s.inflight {
		if entry.SubmittedAt.Before(cutoff) {
			stale = append(stale, inflightSnapshotEntry{
				TxHash:      txHash,
				Sender:      entry.Sender,
				Request:     entry.Request,
				SubmittedAt: entry.SubmittedAt,
			})
		}
	}
	return stale
}

// CommitTimeout recovers a stuck in-flight entry: the request is requeued,
// the in-flight entry removed, and the wallet returned to the pool with its
// freshly queried balance. A no-op if the entry is no longer in-flight: the
// observer can settle it after the sweeper's receipt recheck and before this
// call takes the lock, and that commit must win rather than being duplicated.
func (s *State) CommitTimeout(txHash common.Hash, sender *walletkey.Wallet, balance *big.Int, req TransferRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inflight[txHash]; !ok {
		return
	}
	s.queue.PushBack(req)
	delete(s.inflight, txHash)
	s.pool.Push(balance, sender)
}

// Counts returns the current size of the pool, in-flight table,
// funding-in-progress set and queue, for invariant checks and the health
// endpoint.
func (s *State) Counts() (poolLen, inflightLen, fundingLen, queueLen int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pool.Len(), len(s.inflight), len(s.fundingInProgress), s.queue.Len()
}
