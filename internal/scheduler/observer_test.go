package scheduler

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

func TestHandleObservedTxIgnoresUnknownHash(t *testing.T) {
	s := NewState()
	client := newFakeClient()

	// No in-flight entry exists for this hash; handling it must be a no-op.
	handleObservedTx(context.Background(), s, client, [32]byte{0xAA})

	poolLen, inflightLen, _, _ := s.Counts()
	require.Equal(t, 0, poolLen)
	require.Equal(t, 0, inflightLen)
}

func TestHandleObservedTxSettlesFaucetGrant(t *testing.T) {
	s := NewState()
	client := newFakeClient()

	sender := wallet(1)
	recipient := wallet(2)
	client.setBalance(sender.Address, big.NewInt(1000))

	req := NewFaucetRequest(recipient.Address, big.NewInt(100))
	txHash, err := client.SendValueTransfer(context.Background(), sender, recipient.Address, req.Amount)
	require.NoError(t, err)
	s.RecordInflight(txHash, sender, req, time.Now())

	client.settle(txHash, types.ReceiptStatusSuccessful)

	handleObservedTx(context.Background(), s, client, txHash)

	poolLen, inflightLen, _, _ := s.Counts()
	require.Equal(t, 1, poolLen, "only the sender returns to the pool for a Faucet grant")
	require.Equal(t, 0, inflightLen)
}

func TestHandleObservedTxSettlesFundingAndReleasesReceiver(t *testing.T) {
	s := NewState()
	client := newFakeClient()

	donor := wallet(1)
	receiver := wallet(2)
	client.setBalance(donor.Address, big.NewInt(100))

	req := NewFundingRequest(receiver.Address, big.NewInt(80))
	s.SeedFunding(req, receiver)

	txHash, err := client.SendValueTransfer(context.Background(), donor, receiver.Address, big.NewInt(50))
	require.NoError(t, err)
	s.RecordInflight(txHash, donor, req, time.Now())

	client.settle(txHash, types.ReceiptStatusSuccessful)

	handleObservedTx(context.Background(), s, client, txHash)

	poolLen, inflightLen, fundingLen, _ := s.Counts()
	require.Equal(t, 2, poolLen, "both donor and receiver return to the pool")
	require.Equal(t, 0, inflightLen)
	require.Equal(t, 0, fundingLen)
}

func TestHandleObservedTxRetriesUntilReceiptPresent(t *testing.T) {
	s := NewState()
	client := newFakeClient()

	sender := wallet(1)
	recipient := wallet(2)
	client.setBalance(sender.Address, big.NewInt(1000))

	req := NewFaucetRequest(recipient.Address, big.NewInt(100))
	txHash, err := client.SendValueTransfer(context.Background(), sender, recipient.Address, req.Amount)
	require.NoError(t, err)
	s.RecordInflight(txHash, sender, req, time.Now())

	// No receipt is available yet; settle arrives after the first poll
	// would have come up empty but before the second retry fires, so a
	// single lookup without retrying would leave this entry stuck.
	go func() {
		time.Sleep(100 * time.Millisecond)
		client.settle(txHash, types.ReceiptStatusSuccessful)
	}()

	handleObservedTx(context.Background(), s, client, txHash)

	poolLen, inflightLen, _, _ := s.Counts()
	require.Equal(t, 1, poolLen, "receipt polling must retry rather than give up on the first empty lookup")
	require.Equal(t, 0, inflightLen)
}

func TestPollReceiptStopsOnContextCancellation(t *testing.T) {
	client := newFakeClient()
	txHash := common.HexToHash("0x09")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	receipt, ok := pollReceipt(ctx, client, txHash)
	require.False(t, ok)
	require.Nil(t, receipt)
}

func TestHandleObservedTxRequeuesOnChainFailure(t *testing.T) {
	s := NewState()
	client := newFakeClient()

	sender := wallet(1)
	recipient := wallet(2)
	client.setBalance(sender.Address, big.NewInt(1000))

	req := NewFaucetRequest(recipient.Address, big.NewInt(100))
	txHash, err := client.SendValueTransfer(context.Background(), sender, recipient.Address, req.Amount)
	require.NoError(t, err)
	s.RecordInflight(txHash, sender, req, time.Now())

	client.settle(txHash, types.ReceiptStatusFailed)

	handleObservedTx(context.Background(), s, client, txHash)

	poolLen, inflightLen, _, queueLen := s.Counts()
	require.Equal(t, 1, poolLen)
	require.Equal(t, 0, inflightLen)
	require.Equal(t, 1, queueLen, "on-chain failure requeues the request")
}
