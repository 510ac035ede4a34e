package scheduler

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethfaucet/faucet-dispatcher/internal/chain"
	"github.com/ethfaucet/faucet-dispatcher/internal/walletkey"
)

// balanceRetryDelay is the backoff between bootstrap balance queries that
// fail with a transient RPC error. Bootstrap must not proceed with partial
// balances, so it retries indefinitely rather than giving up on a wallet.
const balanceRetryDelay = 1 * time.Second

// fundingFraction is applied to the pool's mean balance to get the target
// every under-funded wallet is lifted towards: eighty percent, leaving
// headroom so no single bootstrap round tries to equalize exactly.
var fundingFraction = big.NewRat(8, 10)

// Bootstrap derives the wallet set from mnemonic, queries each wallet's
// balance, and seeds the pool and queue accordingly. It must complete
// before the dispatcher is allowed to run.
func Bootstrap(ctx context.Context, state *State, client chain.Client, mnemonic string, numWallets int, enableFunding bool) error {
	wallets, err := walletkey.DeriveWallets(mnemonic, numWallets)
	if err != nil {
		return err
	}

	balances := make([]*big.Int, len(wallets))
	total := new(big.Int)
	for i, w := range wallets {
		balance, err := queryBalanceWithRetry(ctx, client, w)
		if err != nil {
			return err
		}
		balances[i] = balance
		total.Add(total, balance)
		log.Info("bootstrap wallet balance", "index", i, "address", w.Address, "balance", balance)
	}

	desired := desiredBalance(total, len(wallets))
	log.Info("bootstrap desired balance computed", "desired", desired, "enable_funding", enableFunding)

	for i, w := range wallets {
		if enableFunding && balances[i].Cmp(desired) < 0 {
			state.SeedFunding(NewFundingRequest(w.Address, desired), w)
			log.Info("bootstrap wallet scheduled for funding", "address", w.Address, "balance", balances[i], "target", desired)
			continue
		}
		state.SeedPool(balances[i], w)
	}

	return nil
}

// queryBalanceWithRetry polls a wallet's on-chain balance, retrying any
// error indefinitely. The RPC facade does not distinguish a "node warming
// up" error class from any other transient failure, so every error here is
// treated as transient.
func queryBalanceWithRetry(ctx context.Context, client chain.Client, w *walletkey.Wallet) (*big.Int, error) {
	for {
		balance, err := client.BalanceAt(ctx, w.Address)
		if err == nil {
			return balance, nil
		}
		log.Warn("bootstrap balance query failed, retrying", "address", w.Address, "err", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(balanceRetryDelay):
		}
	}
}

// desiredBalance is eighty percent of the mean balance across all wallets.
func desiredBalance(total *big.Int, numWallets int) *big.Int {
	if numWallets == 0 {
		return big.NewInt(0)
	}
	mean := new(big.Rat).SetFrac(total, big.NewInt(int64(numWallets)))
	desired := new(big.Rat).Mul(mean, fundingFraction)
	return new(big.Int).Quo(desired.Num(), desired.Denom())
}
