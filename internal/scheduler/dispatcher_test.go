package scheduler

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

var errSendFailed = errors.New("dispatcher_test: send failed")

func TestDispatchOnceSubmitsFaucetGrant(t *testing.T) {
	s := NewState()
	client := newFakeClient()

	sender := wallet(1)
	client.setBalance(sender.Address, big.NewInt(1000))
	s.SeedPool(big.NewInt(1000), sender)

	recipient := wallet(2)
	req := NewFaucetRequest(recipient.Address, big.NewInt(100))
	s.EnqueueBack(req)

	dispatchOnce(context.Background(), s, client)

	poolLen, inflightLen, _, queueLen := s.Counts()
	require.Equal(t, 0, poolLen, "wallet stays checked out until settlement")
	require.Equal(t, 1, inflightLen)
	require.Equal(t, 0, queueLen)
}

func TestDispatchOnceFundingSendsHalfSenderBalance(t *testing.T) {
	s := NewState()
	client := newFakeClient()

	donor := wallet(1)
	client.setBalance(donor.Address, big.NewInt(100))
	s.SeedPool(big.NewInt(100), donor)

	receiver := wallet(2)
	req := NewFundingRequest(receiver.Address, big.NewInt(80))
	s.EnqueueBack(req)

	dispatchOnce(context.Background(), s, client)

	require.Len(t, client.sent, 1)
	for _, send := range client.sent {
		require.Equal(t, big.NewInt(50), send.Amount, "funding donates half the sender's popped balance")
	}
}

func TestDispatchOnceRequeuesOnSubmitFailure(t *testing.T) {
	s := NewState()
	client := newFakeClient()
	client.sendErr = errSendFailed

	sender := wallet(1)
	client.setBalance(sender.Address, big.NewInt(1000))
	s.SeedPool(big.NewInt(1000), sender)

	req := NewFaucetRequest(wallet(2).Address, big.NewInt(100))
	s.EnqueueBack(req)

	dispatchOnce(context.Background(), s, client)

	poolLen, inflightLen, _, queueLen := s.Counts()
	require.Equal(t, 1, poolLen, "wallet returns to the pool at its pre-submission balance")
	require.Equal(t, 0, inflightLen)
	require.Equal(t, 1, queueLen, "failed submission requeues at the back")
}

func TestDispatchOnceIdlesWhenNoWalletCanAfford(t *testing.T) {
	s := NewState()
	client := newFakeClient()

	sender := wallet(1)
	s.SeedPool(big.NewInt(1), sender)
	req := NewFaucetRequest(wallet(2).Address, big.NewInt(1000))
	s.EnqueueBack(req)

	dispatchOnce(context.Background(), s, client)

	poolLen, _, _, queueLen := s.Counts()
	require.Equal(t, 1, poolLen, "dispatcher must not discard or reorder the unaffordable front request")
	require.Equal(t, 1, queueLen)
}
