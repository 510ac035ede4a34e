package scheduler

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Kind discriminates the two cases of TransferRequest. Modeled as a tagged
// struct rather than an interface hierarchy: dispatch decisions only differ
// by a couple of derived fields, not by behavior, so a sum-of-fields struct
// keeps the per-variant logic in one place (Recipient, RequiredFunds) instead
// of scattering it across implementations.
type Kind uint8

const (
	// KindFaucet is an externally requested grant.
	KindFaucet Kind = iota
	// KindFunding is an internal bootstrap transfer that lifts an
	// under-funded wallet to roughly TargetBalance.
	KindFunding
)

func (k Kind) String() string {
	switch k {
	case KindFaucet:
		return "faucet"
	case KindFunding:
		return "funding"
	default:
		return "unknown"
	}
}

// TransferRequest is either a user-facing Faucet grant or an internal
// Funding rebalance.
type TransferRequest struct {
	Kind Kind
	To   common.Address

	// Amount is set for KindFaucet: the exact grant to send.
	Amount *big.Int
	// TargetBalance is set for KindFunding: the balance the recipient
	// should be lifted to.
	TargetBalance *big.Int
}

// NewFaucetRequest builds a Faucet grant request.
func NewFaucetRequest(to common.Address, amount *big.Int) TransferRequest {
	return TransferRequest{Kind: KindFaucet, To: to, Amount: amount}
}

// NewFundingRequest builds an internal bootstrap funding request.
func NewFundingRequest(to common.Address, targetBalance *big.Int) TransferRequest {
	return TransferRequest{Kind: KindFunding, To: to, TargetBalance: targetBalance}
}

// Recipient is the destination address of the transfer.
func (r TransferRequest) Recipient() common.Address {
	return r.To
}

// RequiredFunds is the minimum sender balance needed to attempt this
// transfer: double the grant for Faucet (a conservative gas cushion), the
// target balance itself for Funding.
func (r TransferRequest) RequiredFunds() *big.Int {
	switch r.Kind {
	case KindFaucet:
		return new(big.Int).Mul(r.Amount, big.NewInt(2))
	case KindFunding:
		return r.TargetBalance
	default:
		panic(fmt.Sprintf("unreachable: unknown request kind %d", r.Kind))
	}
}

func (r TransferRequest) String() string {
	switch r.Kind {
	case KindFaucet:
		return fmt.Sprintf("Faucet{to=%s amount=%s}", r.To, r.Amount)
	case KindFunding:
		return fmt.Sprintf("Funding{to=%s target_balance=%s}", r.To, r.TargetBalance)
	default:
		return "invalid TransferRequest"
	}
}
