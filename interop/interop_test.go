package interop

import (
	"math/big"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"interoprelay/types"
)

var (
	interopCenter = common.HexToAddress("0x000000000000000000000000000000000001000b")
	alice         = common.HexToAddress("0x36615Cf349d7F6344891B1e7CA7C72883F5dc049")
	bob           = common.HexToAddress("0xa61464658AfeAf65CccaaFD3a512b69A83B77618")
)

func testBundle(value int64) *types.InteropBundle {
	return &types.InteropBundle{
		DestinationChainId: big.NewInt(260),
		Calls: []types.InteropCall{
			{
				DirectCall: true,
				To:         bob,
				From:       alice,
				Value:      big.NewInt(value),
				Data:       []byte{0xde, 0xad, 0xbe, 0xef},
			},
		},
		ExecutionAddress: alice,
	}
}

func testTrigger() *types.InteropTrigger {
	return &types.InteropTrigger{
		DestinationChainId:  big.NewInt(260),
		Sender:              alice,
		Recipient:           bob,
		FeeBundleHash:       common.HexToHash("0x01"),
		ExecutionBundleHash: common.HexToHash("0x02"),
		GasFields: types.GasFields{
			GasLimit:               big.NewInt(30_000_000),
			GasPerPubdataByteLimit: big.NewInt(1000),
			RefundRecipient:        alice,
			Paymaster:              common.Address{},
			PaymasterInput:         []byte{},
		},
	}
}

// testReceipt builds a receipt carrying a full interop transaction
func testReceipt(t *testing.T, dst int64) *ethtypes.Receipt {
	t.Helper()

	fee := testBundle(1)
	exec := testBundle(1000)
	trigger := testTrigger()
	fee.DestinationChainId = big.NewInt(dst)
	exec.DestinationChainId = big.NewInt(dst)
	trigger.DestinationChainId = big.NewInt(dst)

	feeLog, err := NewBundleSentLog(interopCenter, fee)
	require.NoError(t, err)
	execLog, err := NewBundleSentLog(interopCenter, exec)
	require.NoError(t, err)
	triggerLog, err := NewTriggerSentLog(interopCenter, trigger)
	require.NoError(t, err)

	return &ethtypes.Receipt{
		Status:           ethtypes.ReceiptStatusSuccessful,
		TxHash:           common.HexToHash("0xabc1"),
		BlockNumber:      big.NewInt(42),
		TransactionIndex: 3,
		Logs:             []*ethtypes.Log{feeLog, execLog, triggerLog},
	}
}

func TestBundleRoundTrip(t *testing.T) {
	t.Parallel()

	bundle := testBundle(7)
	encoded, err := EncodeBundle(bundle)
	require.NoError(t, err)

	decoded, err := DecodeBundle(encoded)
	require.NoError(t, err)
	assert.Equal(t, bundle, decoded)

	again, err := EncodeBundle(decoded)
	require.NoError(t, err)
	assert.Equal(t, encoded, again)
}

func TestTriggerRoundTrip(t *testing.T) {
	t.Parallel()

	trigger := testTrigger()
	encoded, err := EncodeTrigger(trigger)
	require.NoError(t, err)

	decoded, err := DecodeTrigger(encoded)
	require.NoError(t, err)
	assert.Equal(t, trigger, decoded)
}

func TestDecodeReceipt(t *testing.T) {
	t.Parallel()

	t.Run("full interop transaction", func(t *testing.T) {
		receipt := testReceipt(t, 260)

		tx, err := DecodeReceipt(receipt)
		require.NoError(t, err)
		assert.Equal(t, big.NewInt(1), tx.FeeBundle.Calls[0].Value)
		assert.Equal(t, big.NewInt(1000), tx.ExecutionBundle.Calls[0].Value)
		assert.Equal(t, uint64(260), tx.Trigger.DestinationChainId.Uint64())
		assert.Same(t, receipt.Logs[0], tx.FeeBundleLog)
		assert.Same(t, receipt.Logs[2], tx.TriggerLog)
	})

	t.Run("unrelated logs are ignored", func(t *testing.T) {
		receipt := testReceipt(t, 260)
		unrelated := &ethtypes.Log{Topics: []common.Hash{common.HexToHash("0xff")}, Data: []byte{1}}
		receipt.Logs = append([]*ethtypes.Log{unrelated}, receipt.Logs...)

		_, err := DecodeReceipt(receipt)
		require.NoError(t, err)
	})

	t.Run("one bundle is not interop", func(t *testing.T) {
		receipt := testReceipt(t, 260)
		receipt.Logs = []*ethtypes.Log{receipt.Logs[0], receipt.Logs[2]}

		_, err := DecodeReceipt(receipt)
		assert.True(t, errors.Is(err, types.ErrNotInterop))
	})

	t.Run("missing trigger is not interop", func(t *testing.T) {
		receipt := testReceipt(t, 260)
		receipt.Logs = receipt.Logs[:2]

		_, err := DecodeReceipt(receipt)
		assert.True(t, errors.Is(err, types.ErrNotInterop))
	})

	t.Run("no logs", func(t *testing.T) {
		_, err := DecodeReceipt(&ethtypes.Receipt{})
		assert.True(t, errors.Is(err, types.ErrNotInterop))
	})

	t.Run("malformed bundle data", func(t *testing.T) {
		receipt := testReceipt(t, 260)
		receipt.Logs[1] = &ethtypes.Log{Topics: receipt.Logs[1].Topics, Data: []byte{0x01, 0x02}}

		_, err := DecodeReceipt(receipt)
		assert.True(t, errors.Is(err, types.ErrNotInterop))
	})
}

func TestBuildDestinationTransaction(t *testing.T) {
	t.Parallel()

	receipt := testReceipt(t, 260)
	tx, err := DecodeReceipt(receipt)
	require.NoError(t, err)

	payload, err := BuildPayload(testContext(t), PlaceholderProofSource{}, 271, receipt, tx)
	require.NoError(t, err)

	assert.Equal(t, uint64(271), payload.FeeProof.ChainId.Uint64())
	assert.Equal(t, uint64(42), payload.FeeProof.L1BatchNumber.Uint64())
	assert.Equal(t, int64(SlotFeeBundle), payload.FeeProof.L2MessageIndex.Int64())
	assert.Equal(t, int64(SlotExecutionBundle), payload.ExecutionProof.L2MessageIndex.Int64())
	assert.Equal(t, int64(SlotTrigger), payload.TriggerProof.L2MessageIndex.Int64())
	assert.Equal(t, uint16(3), payload.TriggerProof.Message.TxNumberInBatch)
	assert.Equal(t, PlaceholderProof, payload.ExecutionProof.Proof)

	handler := common.HexToAddress("0x000000000000000000000000000000000001000d")
	account := common.HexToAddress("0x000000000000000000000000000000000001000e")
	envelope, err := BuildDestinationTransaction(payload, DestinationParams{
		ChainID:              260,
		InteropHandler:       handler,
		TriggerAccount:       account,
		Nonce:                5,
		MaxFeePerGas:         big.NewInt(2_000_000_000),
		MaxPriorityFeePerGas: big.NewInt(1),
	})
	require.NoError(t, err)

	assert.Equal(t, handler, envelope.To)
	assert.Equal(t, account, envelope.From)
	assert.Equal(t, uint64(5), envelope.Nonce)
	assert.Equal(t, big.NewInt(30_000_000), envelope.GasLimit)
	assert.Equal(t, big.NewInt(1000), envelope.Meta.GasPerPubdata)
	assert.Zero(t, envelope.Value.Sign())

	bundle, proof, err := DecodeExecuteData(envelope.Data)
	require.NoError(t, err)
	assert.Equal(t, tx.ExecutionBundle, bundle)
	assert.Equal(t, payload.ExecutionProof.L2MessageIndex, proof.L2MessageIndex)

	raw, err := envelope.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, byte(EIP712TxType), raw[0])
}

func TestBuildDestinationTransactionDefaultsGasPerPubdata(t *testing.T) {
	t.Parallel()

	receipt := testReceipt(t, 260)
	tx, err := DecodeReceipt(receipt)
	require.NoError(t, err)
	tx.Trigger.GasFields.GasPerPubdataByteLimit = big.NewInt(0)

	payload, err := BuildPayload(testContext(t), PlaceholderProofSource{}, 271, receipt, tx)
	require.NoError(t, err)

	envelope, err := BuildDestinationTransaction(payload, DestinationParams{
		ChainID:              260,
		InteropHandler:       common.HexToAddress("0x01"),
		TriggerAccount:       common.HexToAddress("0x02"),
		MaxFeePerGas:         big.NewInt(1),
		MaxPriorityFeePerGas: big.NewInt(0),
	})
	require.NoError(t, err)
	assert.Equal(t, DefaultGasPerPubdata, envelope.Meta.GasPerPubdata)
}
