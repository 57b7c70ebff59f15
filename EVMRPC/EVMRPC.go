package EVMRPC

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"interoprelay/types"
)

// Client is the read and raw-broadcast surface the watcher and relay engine need from a chain
type Client interface {
	ChainID() uint64
	BlockNumber(ctx context.Context) (uint64, error)
	SubscribeNewHead(ctx context.Context, ch chan<- *ethtypes.Header) (ethereum.Subscription, error)
	BlockTransactionHashes(ctx context.Context, number uint64) ([]common.Hash, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error)
	FinalizedBlockNumber(ctx context.Context) (uint64, error)
	NonceAt(ctx context.Context, account common.Address) (uint64, error)
	EstimateFees(ctx context.Context) (*FeeEstimate, error)
	SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error)
	WaitForReceipt(ctx context.Context, hash common.Hash, interval time.Duration) (*ethtypes.Receipt, error)
	Close()
}

type FeeEstimate struct {
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// EVMClient wraps ethclient, raw rpc is used where ethclient decoding
// chokes on custom transaction types
type EVMClient struct {
	chainID   uint64
	ethClient *ethclient.Client
	rpcClient *rpc.Client
	// separate websocket connection for newHeads, nil when the chain has no ws url
	wsClient *ethclient.Client
}

var _ Client = (*EVMClient)(nil)

func Dial(ctx context.Context, desc types.ChainDescriptor) (Client, error) {
	rpcClient, err := rpc.DialContext(ctx, desc.RPCURL)
	if err != nil {
		return nil, err
	}

	c := &EVMClient{
		chainID:   desc.ID,
		ethClient: ethclient.NewClient(rpcClient),
		rpcClient: rpcClient,
	}

	if desc.WSURL != "" {
		ws, err := ethclient.DialContext(ctx, desc.WSURL)
		if err != nil {
			rpcClient.Close()
			return nil, err
		}
		c.wsClient = ws
	}

	return c, nil
}

func (c *EVMClient) ChainID() uint64 {
	return c.chainID
}

func (c *EVMClient) BlockNumber(ctx context.Context) (uint64, error) {
	return c.ethClient.BlockNumber(ctx)
}

func (c *EVMClient) SubscribeNewHead(ctx context.Context, ch chan<- *ethtypes.Header) (ethereum.Subscription, error) {
	if c.wsClient == nil {
		return nil, rpc.ErrNotificationsUnsupported
	}
	return c.wsClient.SubscribeNewHead(ctx, ch)
}

type rpcBlock struct {
	Number       hexutil.Uint64 `json:"number"`
	Transactions []common.Hash  `json:"transactions"`
}

// BlockTransactionHashes returns the hashes only, full objects are not decoded
func (c *EVMClient) BlockTransactionHashes(ctx context.Context, number uint64) ([]common.Hash, error) {
	var block *rpcBlock
	err := c.rpcClient.CallContext(ctx, &block, "eth_getBlockByNumber", hexutil.EncodeUint64(number), false)
	if err == nil && block == nil {
		err = ethereum.NotFound
	}
	if err != nil {
		return nil, err
	}
	return block.Transactions, nil
}

func (c *EVMClient) TransactionReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	return c.ethClient.TransactionReceipt(ctx, hash)
}

func (c *EVMClient) FinalizedBlockNumber(ctx context.Context) (uint64, error) {
	header, err := c.ethClient.HeaderByNumber(ctx, big.NewInt(int64(rpc.FinalizedBlockNumber)))
	if err != nil {
		return 0, err
	}
	return header.Number.Uint64(), nil
}

func (c *EVMClient) NonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return c.ethClient.NonceAt(ctx, account, nil)
}

func (c *EVMClient) EstimateFees(ctx context.Context) (*FeeEstimate, error) {
	tip, err := c.ethClient.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, err
	}
	header, err := c.ethClient.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, err
	}
	if header.BaseFee == nil {
		gasPrice, err := c.ethClient.SuggestGasPrice(ctx)
		if err != nil {
			return nil, err
		}
		return &FeeEstimate{MaxFeePerGas: gasPrice, MaxPriorityFeePerGas: tip}, nil
	}
	return &FeeEstimate{
		MaxFeePerGas:         FeeCap(header.BaseFee, tip),
		MaxPriorityFeePerGas: tip,
	}, nil
}

// FeeCap leaves room for two base fee increases
func FeeCap(baseFee, tip *big.Int) *big.Int {
	feeCap := new(big.Int).Mul(baseFee, big.NewInt(2))
	return feeCap.Add(feeCap, tip)
}

func (c *EVMClient) SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error) {
	var hash common.Hash
	err := c.rpcClient.CallContext(ctx, &hash, "eth_sendRawTransaction", hexutil.Encode(raw))
	return hash, err
}

func (c *EVMClient) WaitForReceipt(ctx context.Context, hash common.Hash, interval time.Duration) (*ethtypes.Receipt, error) {
	return WaitForReceipt(ctx, c, hash, interval)
}

func (c *EVMClient) Close() {
	c.ethClient.Close()
	if c.wsClient != nil {
		c.wsClient.Close()
	}
}

type receiptFetcher interface {
	TransactionReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error)
}

// WaitForReceipt polls until the receipt shows up or ctx is done
func WaitForReceipt(ctx context.Context, c receiptFetcher, hash common.Hash, interval time.Duration) (*ethtypes.Receipt, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		receipt, err := c.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !isNotFound(err) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, ethereum.NotFound) || strings.Contains(err.Error(), "not found")
}

// IsAlreadyKnown reports a node rejecting a transaction it already holds
func IsAlreadyKnown(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already known") || strings.Contains(msg, "known transaction")
}
