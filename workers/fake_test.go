package workers

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"interoprelay/EVMRPC"
	"interoprelay/interop"
	"interoprelay/status"
	"interoprelay/types"
)

var (
	interopCenter  = common.HexToAddress("0x000000000000000000000000000000000001000b")
	interopHandler = common.HexToAddress("0x000000000000000000000000000000000001000d")
	triggerAccount = common.HexToAddress("0x000000000000000000000000000000000001000e")
	alice          = common.HexToAddress("0x36615Cf349d7F6344891B1e7CA7C72883F5dc049")
	bob            = common.HexToAddress("0xa61464658AfeAf65CccaaFD3a512b69A83B77618")
)

// fakeClient is an in-memory chain
type fakeClient struct {
	mu sync.Mutex

	chainID   uint64
	height    uint64
	blocks    map[uint64][]common.Hash
	receipts  map[common.Hash]*ethtypes.Receipt
	failBlock map[uint64]int // remaining failures per block number
	finalized uint64

	nonce        uint64
	nonceErr     error
	sendErr      error
	revert       bool
	sent         [][]byte
	finalizedReq int
}

func newFakeClient(chainID uint64) *fakeClient {
	return &fakeClient{
		chainID:   chainID,
		blocks:    make(map[uint64][]common.Hash),
		receipts:  make(map[common.Hash]*ethtypes.Receipt),
		failBlock: make(map[uint64]int),
	}
}

var _ EVMRPC.Client = (*fakeClient)(nil)

func (c *fakeClient) addBlock(number uint64, receipts ...*ethtypes.Receipt) {
	c.mu.Lock()
	defer c.mu.Unlock()

	hashes := make([]common.Hash, 0, len(receipts))
	for _, r := range receipts {
		r.BlockNumber = new(big.Int).SetUint64(number)
		hashes = append(hashes, r.TxHash)
		c.receipts[r.TxHash] = r
	}
	c.blocks[number] = hashes
	if number > c.height {
		c.height = number
	}
}

func (c *fakeClient) sentTransactions() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.sent...)
}

func (c *fakeClient) ChainID() uint64 { return c.chainID }

func (c *fakeClient) BlockNumber(context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.height, nil
}

func (c *fakeClient) SubscribeNewHead(context.Context, chan<- *ethtypes.Header) (ethereum.Subscription, error) {
	return nil, rpc.ErrNotificationsUnsupported
}

func (c *fakeClient) BlockTransactionHashes(_ context.Context, number uint64) ([]common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failBlock[number] > 0 {
		c.failBlock[number]--
		return nil, errors.Newf("block %d unavailable", number)
	}
	return c.blocks[number], nil
}

func (c *fakeClient) TransactionReceipt(_ context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (c *fakeClient) FinalizedBlockNumber(context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.finalizedReq++
	return c.finalized, nil
}

func (c *fakeClient) setFinalized(n uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finalized = n
}

func (c *fakeClient) NonceAt(context.Context, common.Address) (uint64, error) {
	return c.nonce, c.nonceErr
}

func (c *fakeClient) EstimateFees(context.Context) (*EVMRPC.FeeEstimate, error) {
	return &EVMRPC.FeeEstimate{
		MaxFeePerGas:         big.NewInt(250_000_000),
		MaxPriorityFeePerGas: big.NewInt(0),
	}, nil
}

func (c *fakeClient) SendRawTransaction(_ context.Context, raw []byte) (common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sendErr != nil {
		return common.Hash{}, c.sendErr
	}
	c.sent = append(c.sent, raw)
	hash := crypto.Keccak256Hash(raw)

	receiptStatus := ethtypes.ReceiptStatusSuccessful
	if c.revert {
		receiptStatus = ethtypes.ReceiptStatusFailed
	}
	c.receipts[hash] = &ethtypes.Receipt{TxHash: hash, Status: receiptStatus}
	return hash, nil
}

func (c *fakeClient) WaitForReceipt(ctx context.Context, hash common.Hash, interval time.Duration) (*ethtypes.Receipt, error) {
	return EVMRPC.WaitForReceipt(ctx, c, hash, interval)
}

func (c *fakeClient) Close() {}

func newTestRegistry(clients ...*fakeClient) *EVMRPC.Registry {
	chains := make([]types.ChainDescriptor, 0, len(clients))
	byID := make(map[uint64]*fakeClient, len(clients))
	for _, c := range clients {
		chains = append(chains, types.ChainDescriptor{ID: c.chainID, Name: "test", RPCURL: "http://fake", PollingInterval: 1})
		byID[c.chainID] = c
	}
	return EVMRPC.NewRegistry(chains, func(_ context.Context, desc types.ChainDescriptor) (EVMRPC.Client, error) {
		return byID[desc.ID], nil
	}, zap.NewNop().Sugar())
}

func testBundle(dst int64, value int64) *types.InteropBundle {
	return &types.InteropBundle{
		DestinationChainId: big.NewInt(dst),
		Calls: []types.InteropCall{{
			DirectCall: true,
			To:         bob,
			From:       alice,
			Value:      big.NewInt(value),
			Data:       []byte{0xca, 0xfe},
		}},
		ExecutionAddress: alice,
	}
}

// interopReceipt builds a source receipt with fee bundle, execution bundle and trigger
func interopReceipt(t *testing.T, txHash string, dst int64) *ethtypes.Receipt {
	t.Helper()
	return interopReceiptTo(t, txHash, big.NewInt(dst))
}

func interopReceiptTo(t *testing.T, txHash string, dst *big.Int) *ethtypes.Receipt {
	t.Helper()

	fee := testBundle(0, 1)
	fee.DestinationChainId = dst
	exec := testBundle(0, 1000)
	exec.DestinationChainId = dst

	feeLog, err := interop.NewBundleSentLog(interopCenter, fee)
	require.NoError(t, err)
	execLog, err := interop.NewBundleSentLog(interopCenter, exec)
	require.NoError(t, err)
	triggerLog, err := interop.NewTriggerSentLog(interopCenter, &types.InteropTrigger{
		DestinationChainId: dst,
		Sender:             alice,
		Recipient:          bob,
		GasFields: types.GasFields{
			GasLimit:               big.NewInt(30_000_000),
			GasPerPubdataByteLimit: big.NewInt(1000),
			RefundRecipient:        alice,
			PaymasterInput:         []byte{},
		},
	})
	require.NoError(t, err)

	return &ethtypes.Receipt{
		Status:      ethtypes.ReceiptStatusSuccessful,
		TxHash:      common.HexToHash(txHash),
		BlockNumber: big.NewInt(1),
		Logs:        []*ethtypes.Log{feeLog, execLog, triggerLog},
	}
}

func plainReceipt(txHash string) *ethtypes.Receipt {
	return &ethtypes.Receipt{
		Status:      ethtypes.ReceiptStatusSuccessful,
		TxHash:      common.HexToHash(txHash),
		BlockNumber: big.NewInt(1),
	}
}

// historyStore remembers every status written per key
type historyStore struct {
	*status.MemoryStore

	mu      sync.Mutex
	history map[types.StatusKey][]types.Status
}

func newHistoryStore(capacity int) *historyStore {
	return &historyStore{
		MemoryStore: status.NewMemoryStore(capacity, time.Hour),
		history:     make(map[types.StatusKey][]types.Status),
	}
}

func (s *historyStore) Set(ctx context.Context, rec *types.RelayStatus) error {
	if err := s.MemoryStore.Set(ctx, rec); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[rec.Key()] = append(s.history[rec.Key()], rec.Status)
	return nil
}

func (s *historyStore) statuses(key types.StatusKey) []types.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Status(nil), s.history[key]...)
}
