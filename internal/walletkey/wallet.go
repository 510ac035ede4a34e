// Package walletkey derives the faucet's pool of sender wallets from a BIP-39
// mnemonic and provides the priority-ordered pool the scheduler dispatches
// from.
package walletkey

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	hdwallet "github.com/miguelmota/go-ethereum-hdwallet"
)

// Wallet is a sender account: an address plus the key material needed to
// sign a transaction. Wallets are created once during bootstrap and are
// shared by reference between the pool, in-flight entries and the
// funding-in-progress set for the lifetime of the process.
type Wallet struct {
	Address    common.Address
	PrivateKey *ecdsa.PrivateKey
}

// DeriveWallets derives n wallets from mnemonic at the standard Ethereum
// BIP-44 path m/44'/60'/0'/0/{index}, for index in [0, n).
func DeriveWallets(mnemonic string, n int) ([]*Wallet, error) {
	hd, err := hdwallet.NewFromMnemonic(mnemonic)
	if err != nil {
		return nil, fmt.Errorf("failed to parse mnemonic: %w", err)
	}

	wallets := make([]*Wallet, n)
	for index := 0; index < n; index++ {
		path := hdwallet.MustParseDerivationPath(fmt.Sprintf("m/44'/60'/0'/0/%d", index))
		account, err := hd.Derive(path, false)
		if err != nil {
			return nil, fmt.Errorf("failed to derive wallet %d: %w", index, err)
		}
		privateKey, err := hd.PrivateKey(account)
		if err != nil {
			return nil, fmt.Errorf("failed to extract private key for wallet %d: %w", index, err)
		}
		wallets[index] = &Wallet{
			Address:    account.Address,
			PrivateKey: privateKey,
		}
	}
	return wallets, nil
}
