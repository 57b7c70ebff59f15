package workers

import (
	"context"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"interoprelay/interop"
	"interoprelay/status"
	"interoprelay/types"
)

type relayFixture struct {
	src    *fakeClient
	dst    *fakeClient
	store  *historyStore
	engine *RelayEngine
}

func newRelayFixture(t *testing.T, cfg RelayConfig) *relayFixture {
	t.Helper()
	return newRelayFixtureWithCapacity(t, cfg, 100)
}

func newRelayFixtureWithCapacity(t *testing.T, cfg RelayConfig, capacity int) *relayFixture {
	t.Helper()

	f := &relayFixture{
		src:   newFakeClient(271),
		dst:   newFakeClient(260),
		store: newHistoryStore(capacity),
	}
	cfg.InteropHandler = interopHandler
	cfg.TriggerAccount = triggerAccount
	cfg.ConfirmationInterval = time.Millisecond

	logger := zap.NewNop().Sugar()
	f.engine = NewRelayEngine(
		cfg,
		newTestRegistry(f.src, f.dst),
		status.NewRecorder(f.store, logger),
		interop.PlaceholderProofSource{},
		nil,
		logger,
	)
	return f
}

func (f *relayFixture) relay(t *testing.T, ev ReceiptEvent) *types.RelayStatus {
	t.Helper()

	require.NoError(t, f.engine.HandleReceipt(context.Background(), ev))
	f.engine.Wait()

	rec, err := f.store.Get(context.Background(), types.StatusKey{SenderChainID: ev.ChainID, TransactionHash: ev.Receipt.TxHash})
	require.NoError(t, err)
	return rec
}

func TestRelayCompleted(t *testing.T) {
	t.Parallel()

	f := newRelayFixture(t, RelayConfig{})
	f.dst.nonce = 7
	receipt := interopReceipt(t, "0xaa01", 260)

	rec := f.relay(t, ReceiptEvent{Receipt: receipt, ChainID: 271})
	require.NotNil(t, rec)

	assert.Equal(t, []types.Status{
		types.StatusWaitingFinalization,
		types.StatusProcessing,
		types.StatusBroadcasting,
		types.StatusCompleted,
	}, f.store.statuses(rec.Key()))

	sent := f.dst.sentTransactions()
	require.Len(t, sent, 1)

	assert.Equal(t, types.StatusCompleted, rec.Status)
	assert.Equal(t, uint64(271), rec.SenderChainID)
	require.NotNil(t, rec.DestinationChainID)
	assert.Equal(t, uint64(260), *rec.DestinationChainID)
	assert.Equal(t, receipt.TxHash, rec.TransactionHash)
	require.NotNil(t, rec.BroadcastTransactionHash)
	assert.Equal(t, crypto.Keccak256Hash(sent[0]), *rec.BroadcastTransactionHash)

	// the destination calldata carries the execution bundle unchanged
	var envelope interop.EIP712Transaction
	require.NoError(t, envelope.UnmarshalBinary(sent[0]))
	assert.Equal(t, interopHandler, envelope.To)
	assert.Equal(t, triggerAccount, envelope.From)
	assert.Equal(t, uint64(7), envelope.Nonce)
	assert.Equal(t, int64(30_000_000), envelope.GasLimit.Int64())

	bundle, _, err := interop.DecodeExecuteData(envelope.Data)
	require.NoError(t, err)
	assert.Equal(t, testBundle(260, 1000), bundle)
}

func TestRelayUnsupportedDestination(t *testing.T) {
	t.Parallel()

	f := newRelayFixture(t, RelayConfig{})
	receipt := interopReceipt(t, "0xaa02", 999)

	rec := f.relay(t, ReceiptEvent{Receipt: receipt, ChainID: 271})
	require.NotNil(t, rec)

	assert.Equal(t, types.StatusProcessingFailed, rec.Status)
	assert.Equal(t, uint64(271), rec.SenderChainID)
	assert.Equal(t, receipt.TxHash, rec.TransactionHash)
	assert.Nil(t, rec.BroadcastTransactionHash)
	assert.Equal(t, []types.Status{
		types.StatusWaitingFinalization,
		types.StatusProcessing,
		types.StatusProcessingFailed,
	}, f.store.statuses(rec.Key()))
	assert.Empty(t, f.dst.sentTransactions())
}

func TestRelayDestinationOutOfRange(t *testing.T) {
	t.Parallel()

	f := newRelayFixture(t, RelayConfig{})
	dst := new(big.Int).Add(new(big.Int).Lsh(big.NewInt(1), 64), big.NewInt(260))
	receipt := interopReceiptTo(t, "0xaa07", dst)

	rec := f.relay(t, ReceiptEvent{Receipt: receipt, ChainID: 271})
	require.NotNil(t, rec)

	assert.Equal(t, types.StatusProcessingFailed, rec.Status)
	assert.Nil(t, rec.DestinationChainID, "the wrapped chain id must not be recorded")
	assert.Empty(t, f.dst.sentTransactions())
	assert.Equal(t, []types.Status{
		types.StatusWaitingFinalization,
		types.StatusProcessing,
		types.StatusProcessingFailed,
	}, f.store.statuses(rec.Key()))
}

func TestRelayAlreadyKnown(t *testing.T) {
	t.Parallel()

	f := newRelayFixture(t, RelayConfig{})
	f.dst.sendErr = errors.New("already known")

	rec := f.relay(t, ReceiptEvent{Receipt: interopReceipt(t, "0xaa03", 260), ChainID: 271})
	require.NotNil(t, rec)

	assert.Equal(t, types.StatusCompleted, rec.Status)
	assert.Nil(t, rec.BroadcastTransactionHash)
}

func TestRelayBroadcastFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		modify func(c *fakeClient)
		want   types.Status
	}{
		{"rejected broadcast", func(c *fakeClient) { c.sendErr = errors.New("insufficient funds") }, types.StatusBroadcastingFailed},
		{"reverted on destination", func(c *fakeClient) { c.revert = true }, types.StatusBroadcastingFailed},
		{"nonce lookup fails", func(c *fakeClient) { c.nonceErr = errors.New("connection refused") }, types.StatusProcessingFailed},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newRelayFixture(t, RelayConfig{})
			tt.modify(f.dst)

			rec := f.relay(t, ReceiptEvent{Receipt: interopReceipt(t, "0xaa04", 260), ChainID: 271})
			require.NotNil(t, rec)
			assert.Equal(t, tt.want, rec.Status)
			assert.Nil(t, rec.BroadcastTransactionHash)
			require.NotNil(t, rec.DestinationChainID)
			assert.Equal(t, uint64(260), *rec.DestinationChainID)
		})
	}
}

func TestRelayIgnoresPlainReceipts(t *testing.T) {
	t.Parallel()

	f := newRelayFixture(t, RelayConfig{})
	receipt := plainReceipt("0xbb01")

	rec := f.relay(t, ReceiptEvent{Receipt: receipt, ChainID: 271})
	assert.Nil(t, rec)

	key := types.StatusKey{SenderChainID: 271, TransactionHash: receipt.TxHash}
	for i := 0; i < 2; i++ {
		got, err := status.Query(context.Background(), f.store, key, time.Millisecond, 10*time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, types.StatusNotFound, got.Status)
		assert.Nil(t, got.DestinationChainID)
	}
	assert.Equal(t, 0, f.store.Len())
}

func TestRelaySkipsKnownKeys(t *testing.T) {
	t.Parallel()

	f := newRelayFixture(t, RelayConfig{})
	ev := ReceiptEvent{Receipt: interopReceipt(t, "0xaa05", 260), ChainID: 271}

	f.relay(t, ev)
	rec := f.relay(t, ev)

	assert.Equal(t, types.StatusCompleted, rec.Status)
	assert.Len(t, f.dst.sentTransactions(), 1)
	assert.Len(t, f.store.statuses(rec.Key()), 4)
}

func TestRelayWaitsForFinalization(t *testing.T) {
	t.Parallel()

	f := newRelayFixture(t, RelayConfig{WaitFinalization: true})
	receipt := interopReceipt(t, "0xaa06", 260)
	f.src.addBlock(5, receipt)

	require.NoError(t, f.engine.HandleReceipt(context.Background(), ReceiptEvent{Receipt: receipt, ChainID: 271}))

	key := types.StatusKey{SenderChainID: 271, TransactionHash: receipt.TxHash}
	time.Sleep(20 * time.Millisecond)
	rec, err := f.store.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, types.StatusWaitingFinalization, rec.Status)

	f.src.setFinalized(5)
	f.engine.Wait()

	rec, err = f.store.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, rec.Status)
}

func TestRelayConcurrencyLimit(t *testing.T) {
	t.Parallel()

	f := newRelayFixture(t, RelayConfig{MaxConcurrentFlows: 1})
	for i := 0; i < 5; i++ {
		receipt := interopReceipt(t, fmt.Sprintf("0xcc%02d", i), 260)
		require.NoError(t, f.engine.HandleReceipt(context.Background(), ReceiptEvent{Receipt: receipt, ChainID: 271}))
	}
	f.engine.Wait()

	completed, err := f.store.ListByStatus(context.Background(), types.StatusCompleted)
	require.NoError(t, err)
	assert.Len(t, completed, 5)
	assert.Len(t, f.dst.sentTransactions(), 5)
}

func TestRelayKeepsRunningFlowsBeyondCapacity(t *testing.T) {
	t.Parallel()

	f := newRelayFixtureWithCapacity(t, RelayConfig{WaitFinalization: true}, 1)
	first := interopReceipt(t, "0xdd01", 260)
	second := interopReceipt(t, "0xdd02", 260)
	f.src.addBlock(5, first, second)

	ctx := context.Background()
	require.NoError(t, f.engine.HandleReceipt(ctx, ReceiptEvent{Receipt: first, ChainID: 271}))
	require.NoError(t, f.engine.HandleReceipt(ctx, ReceiptEvent{Receipt: second, ChainID: 271}))

	waiting, err := f.store.ListByStatus(ctx, types.StatusWaitingFinalization)
	require.NoError(t, err)
	assert.Len(t, waiting, 2)

	f.src.setFinalized(5)
	f.engine.Wait()

	for _, receipt := range []*ethtypes.Receipt{first, second} {
		key := types.StatusKey{SenderChainID: 271, TransactionHash: receipt.TxHash}
		assert.Equal(t, []types.Status{
			types.StatusWaitingFinalization,
			types.StatusProcessing,
			types.StatusBroadcasting,
			types.StatusCompleted,
		}, f.store.statuses(key), receipt.TxHash.Hex())
	}
	assert.Len(t, f.dst.sentTransactions(), 2)
}
