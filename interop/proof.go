package interop

import (
	"context"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ybbus/jsonrpc"
	"go.uber.org/zap"

	"interoprelay/types"
)

// message slots inside one interop transaction
const (
	SlotFeeBundle = iota
	SlotExecutionBundle
	SlotTrigger
)

type ProofRequest struct {
	SenderChainID uint64
	TxHash        common.Hash
	BlockNumber   uint64
	TxIndex       uint
	Sender        common.Address // contract that sent the L2->L1 message
	Slot          int
	Data          []byte
}

type ProofSource interface {
	MessageProof(ctx context.Context, req ProofRequest) (*types.MessageInclusionProof, error)
}

// PlaceholderProof is the fixed proof the demo deployment accepts
var PlaceholderProof = []common.Hash{
	common.HexToHash("0x010f0c0000000000000000000000000000000000000000000000000000000000"),
}

// PlaceholderProofSource reproduces the reference behaviour: synthetic batch and index
// values and a constant proof, no chain round trip
type PlaceholderProofSource struct{}

func (PlaceholderProofSource) MessageProof(_ context.Context, req ProofRequest) (*types.MessageInclusionProof, error) {
	proof := make([]common.Hash, len(PlaceholderProof))
	copy(proof, PlaceholderProof)

	return &types.MessageInclusionProof{
		ChainId:        new(big.Int).SetUint64(req.SenderChainID),
		L1BatchNumber:  new(big.Int).SetUint64(req.BlockNumber),
		L2MessageIndex: big.NewInt(int64(req.Slot)),
		Message: types.L2Message{
			TxNumberInBatch: uint16(req.TxIndex),
			Sender:          req.Sender,
			Data:            req.Data,
		},
		Proof: proof,
	}, nil
}

type logProof struct {
	ID    uint64        `json:"id"`
	Proof []common.Hash `json:"proof"`
	Root  common.Hash   `json:"root"`
}

type batchReceipt struct {
	L1BatchNumber  *hexutil.Big    `json:"l1BatchNumber"`
	L1BatchTxIndex *hexutil.Uint64 `json:"l1BatchTxIndex"`
}

// DefaultProofRequestTimeout bounds one proof RPC call when none is configured
const DefaultProofRequestTimeout = 30 * time.Second

// RPCProofSource asks the sender chain for the real log proof and keeps polling
// while the batch is not sealed yet. Polling has no limit besides ctx. The jsonrpc
// client takes no context, so a single call is bounded by the request timeout and
// ctx is only observed between calls.
type RPCProofSource struct {
	mu       sync.Mutex
	urls     map[uint64]string
	clients  map[uint64]jsonrpc.RPCClient
	interval time.Duration
	timeout  time.Duration
	logger   *zap.SugaredLogger
}

func NewRPCProofSource(urls map[uint64]string, interval, timeout time.Duration, logger *zap.SugaredLogger) *RPCProofSource {
	if timeout <= 0 {
		timeout = DefaultProofRequestTimeout
	}
	return &RPCProofSource{
		urls:     urls,
		clients:  make(map[uint64]jsonrpc.RPCClient),
		interval: interval,
		timeout:  timeout,
		logger:   logger.Named("proof"),
	}
}

func (s *RPCProofSource) client(chainID uint64) (jsonrpc.RPCClient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.clients[chainID]; ok {
		return c, nil
	}
	url, ok := s.urls[chainID]
	if !ok {
		return nil, errors.Mark(errors.Newf("no rpc url for chain %d", chainID), types.ErrUnknownChain)
	}
	c := jsonrpc.NewClientWithOpts(url, &jsonrpc.RPCClientOpts{
		HTTPClient: &http.Client{Timeout: s.timeout},
	})
	s.clients[chainID] = c
	return c, nil
}

func (s *RPCProofSource) MessageProof(ctx context.Context, req ProofRequest) (*types.MessageInclusionProof, error) {
	client, err := s.client(req.SenderChainID)
	if err != nil {
		return nil, err
	}

	var result *types.MessageInclusionProof
	err = retry.Do(
		func() error {
			proof, err := s.fetch(client, req)
			if err != nil {
				return err
			}
			result = proof
			return nil
		},
		retry.Attempts(0),
		retry.Delay(s.interval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, types.ErrLogProofNotFound)
		}),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Debugw("log proof not available yet",
				"senderChainId", req.SenderChainID,
				"txHash", req.TxHash.Hex(),
				"slot", req.Slot,
				"try", n+1,
			)
		}),
	)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *RPCProofSource) fetch(client jsonrpc.RPCClient, req ProofRequest) (*types.MessageInclusionProof, error) {
	var receipt *batchReceipt
	if err := client.CallFor(&receipt, "eth_getTransactionReceipt", req.TxHash.Hex()); err != nil {
		return nil, errors.Wrap(err, "eth_getTransactionReceipt")
	}
	if receipt == nil || receipt.L1BatchNumber == nil || receipt.L1BatchTxIndex == nil {
		return nil, errors.Wrap(types.ErrLogProofNotFound, "batch not assigned")
	}

	var proof *logProof
	if err := client.CallFor(&proof, "zks_getL2ToL1LogProof", req.TxHash.Hex(), req.Slot); err != nil {
		return nil, errors.Wrap(err, "zks_getL2ToL1LogProof")
	}
	if proof == nil {
		return nil, errors.Wrapf(types.ErrLogProofNotFound, "slot %d", req.Slot)
	}

	return &types.MessageInclusionProof{
		ChainId:        new(big.Int).SetUint64(req.SenderChainID),
		L1BatchNumber:  (*big.Int)(receipt.L1BatchNumber),
		L2MessageIndex: new(big.Int).SetUint64(proof.ID),
		Message: types.L2Message{
			TxNumberInBatch: uint16(*receipt.L1BatchTxIndex),
			Sender:          req.Sender,
			Data:            req.Data,
		},
		Proof: proof.Proof,
	}, nil
}
