package scheduler

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ethfaucet/faucet-dispatcher/internal/chain"
	"github.com/ethfaucet/faucet-dispatcher/internal/walletkey"
)

// fakeClient is an in-memory chain.Client used by the scheduler's tests so
// they exercise real lock/goroutine interleaving without a live node.
type fakeClient struct {
	mu sync.Mutex

	balances map[common.Address]*big.Int
	receipts map[common.Hash]*types.Receipt
	sent     map[common.Hash]fakeSend

	sendErr error
	nextTx  byte

	stream *fakeBlockStream
}

type fakeSend struct {
	From   common.Address
	To     common.Address
	Amount *big.Int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		balances: make(map[common.Address]*big.Int),
		receipts: make(map[common.Hash]*types.Receipt),
		sent:     make(map[common.Hash]fakeSend),
	}
}

func (f *fakeClient) ChainID(ctx context.Context) (uint64, error) {
	return 1337, nil
}

func (f *fakeClient) setBalance(addr common.Address, balance *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[addr] = balance
}

func (f *fakeClient) BalanceAt(ctx context.Context, address common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.balances[address]
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(b), nil
}

func (f *fakeClient) SendValueTransfer(ctx context.Context, from *walletkey.Wallet, to common.Address, amount *big.Int) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.sendErr != nil {
		return common.Hash{}, f.sendErr
	}

	f.nextTx++
	var hash common.Hash
	hash[len(hash)-1] = f.nextTx
	f.sent[hash] = fakeSend{From: from.Address, To: to, Amount: amount}
	return hash, nil
}

// settle marks txHash as mined with the given status and applies the
// balance movement the real chain would have performed.
func (f *fakeClient) settle(txHash common.Hash, status uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	send, ok := f.sent[txHash]
	if !ok {
		return
	}
	f.receipts[txHash] = &types.Receipt{Status: status}

	if status == types.ReceiptStatusSuccessful {
		fromBal := f.balances[send.From]
		if fromBal == nil {
			fromBal = big.NewInt(0)
		}
		f.balances[send.From] = new(big.Int).Sub(fromBal, send.Amount)

		toBal := f.balances[send.To]
		if toBal == nil {
			toBal = big.NewInt(0)
		}
		f.balances[send.To] = new(big.Int).Add(toBal, send.Amount)
	}
}

func (f *fakeClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.receipts[txHash], nil
}

func (f *fakeClient) SubscribeBlocks(ctx context.Context) (chain.BlockStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stream = newFakeBlockStream()
	return f.stream, nil
}

// deliver pushes a block containing txHash through the active subscription,
// if one has been established.
func (f *fakeClient) deliver(txHash common.Hash) {
	f.mu.Lock()
	stream := f.stream
	f.mu.Unlock()
	if stream == nil {
		return
	}
	stream.blocks <- &chain.Block{Transactions: []common.Hash{txHash}}
}

type fakeBlockStream struct {
	blocks chan *chain.Block
	errc   chan error
}

func newFakeBlockStream() *fakeBlockStream {
	return &fakeBlockStream{
		blocks: make(chan *chain.Block, 16),
		errc:   make(chan error, 1),
	}
}

func (s *fakeBlockStream) Blocks() <-chan *chain.Block { return s.blocks }
func (s *fakeBlockStream) Err() <-chan error           { return s.errc }
func (s *fakeBlockStream) Close()                      {}
