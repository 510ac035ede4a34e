package walletkey

import (
	"bytes"
	"container/heap"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// entry is one (balance, wallet) pair tracked by the pool's heap.
type entry struct {
	balance *big.Int
	wallet  *Wallet
	index   int // maintained by heap.Interface, used by Push to refresh an entry in place
}

// balanceHeap is a max-heap of entries ordered by balance, address as a
// deterministic tiebreaker.
type balanceHeap []*entry

func (h balanceHeap) Len() int { return len(h) }

func (h balanceHeap) Less(i, j int) bool {
	cmp := h[i].balance.Cmp(h[j].balance)
	if cmp != 0 {
		return cmp > 0 // max-heap: larger balance sorts first
	}
	return bytes.Compare(h[i].wallet.Address.Bytes(), h[j].wallet.Address.Bytes()) < 0
}

func (h balanceHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *balanceHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *balanceHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Pool is a priority container of idle, funded sender wallets keyed by
// balance, with address-unique membership: a wallet is either in the pool
// or not, never duplicated.
type Pool struct {
	heap   balanceHeap
	byAddr map[common.Address]*entry
}

// NewPool creates an empty wallet pool.
func NewPool() *Pool {
	return &Pool{
		heap:   balanceHeap{},
		byAddr: make(map[common.Address]*entry),
	}
}

// Push adds a wallet to the pool with the given balance. If the wallet's
// address is already present, the existing entry's balance is refreshed in
// place rather than creating a duplicate.
func (p *Pool) Push(balance *big.Int, w *Wallet) {
	key := w.Address
	if existing, ok := p.byAddr[key]; ok {
		existing.balance = new(big.Int).Set(balance)
		heap.Fix(&p.heap, existing.index)
		return
	}
	e := &entry{balance: new(big.Int).Set(balance), wallet: w}
	heap.Push(&p.heap, e)
	p.byAddr[key] = e
}

// PopMax removes and returns the (balance, wallet) pair with the largest
// balance, or false if the pool is empty.
func (p *Pool) PopMax() (*big.Int, *Wallet, bool) {
	if p.heap.Len() == 0 {
		return nil, nil, false
	}
	e := heap.Pop(&p.heap).(*entry)
	delete(p.byAddr, e.wallet.Address)
	return e.balance, e.wallet, true
}

// PeekMaxBalance returns the largest balance currently in the pool without
// modifying it.
func (p *Pool) PeekMaxBalance() (*big.Int, bool) {
	if p.heap.Len() == 0 {
		return nil, false
	}
	return p.heap[0].balance, true
}

// HasCapacityFor reports whether the richest wallet in the pool has at
// least the required funds for the given amount.
func (p *Pool) HasCapacityFor(required *big.Int) bool {
	max, ok := p.PeekMaxBalance()
	if !ok {
		return false
	}
	return max.Cmp(required) >= 0
}

// Len returns the number of wallets currently held by the pool.
func (p *Pool) Len() int {
	return p.heap.Len()
}
