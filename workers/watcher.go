package workers

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"interoprelay/EVMRPC"
	"interoprelay/config"
	"interoprelay/metrics"
	"interoprelay/types"
)

// receipts fetched in parallel per block
const receiptFetchLimit = 16

type ReceiptEvent struct {
	Receipt *ethtypes.Receipt
	ChainID uint64
}

// ChainClients is the registry surface the workers use
type ChainClients interface {
	GetClient(ctx context.Context, chainID uint64) (EVMRPC.Client, error)
	Descriptor(chainID uint64) (types.ChainDescriptor, error)
}

// BlockWatcher follows the head of one chain and publishes the receipt of every
// transaction in every new block, block by block
type BlockWatcher struct {
	chainID uint64
	clients ChainClients
	out     *Broadcaster[ReceiptEvent]
	metrics metrics.Recorder
	logger  *zap.SugaredLogger

	// run serializes HandleHead, mu only guards the cursor
	run           sync.Mutex
	mu            sync.Mutex
	started       bool
	lastProcessed uint64
}

func NewBlockWatcher(
	chainID uint64,
	clients ChainClients,
	out *Broadcaster[ReceiptEvent],
	rec metrics.Recorder,
	logger *zap.SugaredLogger,
) *BlockWatcher {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &BlockWatcher{
		chainID: chainID,
		clients: clients,
		out:     out,
		metrics: rec,
		logger:  logger.Named("watcher").With("chainId", chainID),
	}
}

// LastProcessed returns the last fully handled block, false before the first head
func (w *BlockWatcher) LastProcessed() (uint64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastProcessed, w.started
}

func (w *BlockWatcher) setProcessed(number uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.started = true
	w.lastProcessed = number
}

func (w *BlockWatcher) ChainID() uint64 {
	return w.chainID
}

// Start runs until ctx is done. Heads come from a newHeads subscription when the
// chain has a websocket endpoint, otherwise eth_blockNumber is polled.
func (w *BlockWatcher) Start(ctx context.Context) error {
	desc, err := w.clients.Descriptor(w.chainID)
	if err != nil {
		return err
	}
	client, err := w.clients.GetClient(ctx, w.chainID)
	if err != nil {
		return err
	}

	interval := config.Millis(desc.PollingInterval)
	if interval <= 0 {
		interval = time.Second
	}

	headers := make(chan *ethtypes.Header, 16)
	sub, err := client.SubscribeNewHead(ctx, headers)
	if err != nil {
		w.logger.Infof("new head subscription unavailable (%s), polling every %s", err, interval)
		return w.poll(ctx, client, interval)
	}
	w.logger.Info("subscribed to new heads")
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-sub.Err():
			w.logger.Warnf("new head subscription closed: %v, polling every %s", err, interval)
			return w.poll(ctx, client, interval)
		case header := <-headers:
			if header == nil || header.Number == nil {
				continue
			}
			w.HandleHead(ctx, client, header.Number.Uint64())
		}
	}
}

func (w *BlockWatcher) poll(ctx context.Context, client EVMRPC.Client, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		height, err := client.BlockNumber(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Errorf("Error getting last block eth_blockNumber: %s", err.Error())
		} else {
			w.HandleHead(ctx, client, height)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// HandleHead processes every block after the last processed one up to height.
// The first head only sets the baseline. A failed block stops the pass and is
// retried from the same number on the next head.
func (w *BlockWatcher) HandleHead(ctx context.Context, client EVMRPC.Client, height uint64) {
	w.run.Lock()
	defer w.run.Unlock()

	last, started := w.LastProcessed()
	if !started {
		w.setProcessed(height)
		w.logger.Infof("baseline block %d", height)
		w.metrics.BlockProcessed(w.chainID, height)
		return
	}

	for number := last + 1; number <= height; number++ {
		if ctx.Err() != nil {
			return
		}
		if err := w.processBlock(ctx, client, number); err != nil {
			w.logger.Errorw("block processing failed, will retry", "block", number, "error", err)
			return
		}
		w.setProcessed(number)
		w.metrics.BlockProcessed(w.chainID, number)
	}
}

func (w *BlockWatcher) processBlock(ctx context.Context, client EVMRPC.Client, number uint64) error {
	hashes, err := client.BlockTransactionHashes(ctx, number)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "get block %d", number), types.ErrWatcherBlock)
	}
	if len(hashes) == 0 {
		return nil
	}
	w.logger.Debugf("Scanning block %d with %d transactions", number, len(hashes))

	receipts := make([]*ethtypes.Receipt, len(hashes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(receiptFetchLimit)
	for i, hash := range hashes {
		i, hash := i, hash
		g.Go(func() error {
			receipt, err := fetchReceipt(gctx, client, hash)
			if err != nil {
				return err
			}
			receipts[i] = receipt
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return errors.Mark(errors.Wrapf(err, "receipts of block %d", number), types.ErrWatcherBlock)
	}

	for _, receipt := range receipts {
		w.out.Publish(ReceiptEvent{Receipt: receipt, ChainID: w.chainID})
	}
	return nil
}

func fetchReceipt(ctx context.Context, client EVMRPC.Client, hash common.Hash) (*ethtypes.Receipt, error) {
	receipt, err := client.TransactionReceipt(ctx, hash)
	if err != nil {
		return nil, errors.Wrapf(err, "receipt %s", hash.Hex())
	}
	if receipt == nil {
		return nil, errors.Newf("receipt %s is empty", hash.Hex())
	}
	return receipt, nil
}
