// Package chain is the concrete Ethereum RPC facade. The scheduler never
// talks to go-ethereum directly; it only depends on the Client interface
// below, which mirrors the facade contract from the specification: chain
// id, balance, a plain value transfer, receipt lookup, and a live block
// subscription. Keeping this boundary means the scheduler's tests can run
// against an in-memory fake instead of a real node.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ethfaucet/faucet-dispatcher/internal/walletkey"
)

// Block is the subset of a mined block the observer cares about: the
// transaction hashes it contains.
type Block struct {
	Transactions []common.Hash
}

// BlockStream delivers newly mined blocks until the underlying subscription
// is closed or fails, at which point Err() yields exactly one error (possibly
// nil on a clean Close).
type BlockStream interface {
	Blocks() <-chan *Block
	Err() <-chan error
	Close()
}

// Client is the RPC facade the scheduler is built against.
type Client interface {
	ChainID(ctx context.Context) (uint64, error)
	BalanceAt(ctx context.Context, address common.Address) (*big.Int, error)
	SendValueTransfer(ctx context.Context, from *walletkey.Wallet, to common.Address, amount *big.Int) (common.Hash, error)
	// TransactionReceipt returns (nil, nil) if the transaction has not been
	// mined yet, mirroring the facade's Option<Receipt>.
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	SubscribeBlocks(ctx context.Context) (BlockStream, error)
}

// EthClient implements Client against a real node: an HTTP endpoint for
// request/response calls and a WebSocket endpoint for the block
// subscription, matching provider_url_http / provider_url_ws.
type EthClient struct {
	http   *ethclient.Client
	wsURL  string
	chainID *big.Int
	nonces *nonceTracker
}

// NewEthClient dials the HTTP provider and resolves the chain id. The
// WebSocket endpoint is dialed lazily, once per subscription attempt, so
// that reconnects do not require rebuilding this client.
func NewEthClient(ctx context.Context, httpURL, wsURL string) (*EthClient, error) {
	httpClient, err := ethclient.DialContext(ctx, httpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial RPC http endpoint: %w", err)
	}
	chainID, err := httpClient.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chain id: %w", err)
	}
	return &EthClient{
		http:    httpClient,
		wsURL:   wsURL,
		chainID: chainID,
		nonces:  newNonceTracker(httpClient),
	}, nil
}

func (c *EthClient) ChainID(ctx context.Context) (uint64, error) {
	return c.chainID.Uint64(), nil
}

func (c *EthClient) BalanceAt(ctx context.Context, address common.Address) (*big.Int, error) {
	return c.http.BalanceAt(ctx, address, nil)
}

// SendValueTransfer builds, signs and submits a plain legacy value transfer
// from the given wallet. Fee estimation beyond a single SuggestGasPrice call
// and EIP-1559 pricing are explicitly out of scope.
func (c *EthClient) SendValueTransfer(ctx context.Context, from *walletkey.Wallet, to common.Address, amount *big.Int) (common.Hash, error) {
	nonce, err := c.nonces.next(ctx, from.Address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}
	gasPrice, err := c.http.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get gas price: %w", err)
	}

	const transferGasLimit = 21000
	tx := types.NewTransaction(nonce, to, amount, transferGasLimit, gasPrice, nil)
	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(c.chainID), from.PrivateKey)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}
	if err := c.http.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, fmt.Errorf("failed to send transaction: %w", err)
	}
	log.Debug("submitted value transfer", "from", from.Address, "to", to, "amount", amount, "hash", signedTx.Hash())
	return signedTx.Hash(), nil
}

func (c *EthClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	receipt, err := c.http.TransactionReceipt(ctx, txHash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, nil
		}
		return nil, err
	}
	return receipt, nil
}

func (c *EthClient) SubscribeBlocks(ctx context.Context) (BlockStream, error) {
	wsClient, err := ethclient.DialContext(ctx, c.wsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial RPC ws endpoint: %w", err)
	}

	headers := make(chan *types.Header)
	sub, err := wsClient.SubscribeNewHead(ctx, headers)
	if err != nil {
		wsClient.Close()
		return nil, fmt.Errorf("failed to subscribe to new heads: %w", err)
	}

	stream := &ethBlockStream{
		ws:      wsClient,
		sub:     sub,
		headers: headers,
		blocks:  make(chan *Block),
		errc:    make(chan error, 1),
	}
	go stream.pump(ctx)
	return stream, nil
}

type ethBlockStream struct {
	ws      *ethclient.Client
	sub     ethereum.Subscription
	headers chan *types.Header
	blocks  chan *Block
	errc    chan error
}

func (s *ethBlockStream) Blocks() <-chan *Block { return s.blocks }
func (s *ethBlockStream) Err() <-chan error     { return s.errc }

func (s *ethBlockStream) Close() {
	s.sub.Unsubscribe()
	s.ws.Close()
}

func (s *ethBlockStream) pump(ctx context.Context) {
	defer close(s.blocks)
	for {
		select {
		case err := <-s.sub.Err():
			s.errc <- err
			return
		case header := <-s.headers:
			block, err := s.ws.BlockByHash(ctx, header.Hash())
			if err != nil {
				log.Warn("failed to fetch block for new head, skipping", "hash", header.Hash(), "err", err)
				continue
			}
			hashes := make([]common.Hash, 0, len(block.Transactions()))
			for _, tx := range block.Transactions() {
				hashes = append(hashes, tx.Hash())
			}
			select {
			case s.blocks <- &Block{Transactions: hashes}:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
