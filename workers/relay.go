package workers

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"interoprelay/EVMRPC"
	"interoprelay/config"
	"interoprelay/interop"
	"interoprelay/metrics"
	"interoprelay/status"
	"interoprelay/types"
)

type RelayConfig struct {
	WaitFinalization     bool
	InteropHandler       common.Address
	TriggerAccount       common.Address
	ConfirmationInterval time.Duration
	// 0 is unbounded
	MaxConcurrentFlows int
}

func RelayConfigFrom(cfg *config.Configuration) RelayConfig {
	return RelayConfig{
		WaitFinalization:     cfg.Relay.WaitFinalization,
		InteropHandler:       cfg.InteropHandler(),
		TriggerAccount:       cfg.TriggerAccount(),
		ConfirmationInterval: config.Millis(cfg.Relay.ConfirmationInterval),
		MaxConcurrentFlows:   cfg.Relay.MaxConcurrentFlows,
	}
}

// RelayEngine turns source chain interop transactions into destination chain
// transactions, one independent flow per transaction
type RelayEngine struct {
	cfg      RelayConfig
	clients  ChainClients
	recorder *status.Recorder
	proofs   interop.ProofSource
	metrics  metrics.Recorder
	logger   *zap.SugaredLogger

	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

func NewRelayEngine(
	cfg RelayConfig,
	clients ChainClients,
	recorder *status.Recorder,
	proofs interop.ProofSource,
	rec metrics.Recorder,
	logger *zap.SugaredLogger,
) *RelayEngine {
	if rec == nil {
		rec = metrics.Nop{}
	}
	if cfg.ConfirmationInterval <= 0 {
		cfg.ConfirmationInterval = time.Second
	}
	e := &RelayEngine{
		cfg:      cfg,
		clients:  clients,
		recorder: recorder,
		proofs:   proofs,
		metrics:  rec,
		logger:   logger.Named("relay"),
	}
	if cfg.MaxConcurrentFlows > 0 {
		e.sem = semaphore.NewWeighted(int64(cfg.MaxConcurrentFlows))
	}
	return e
}

// HandleReceipt recognizes an interop transaction and starts its flow in the
// background. Receipts without the interop events are ignored.
func (e *RelayEngine) HandleReceipt(ctx context.Context, ev ReceiptEvent) error {
	if ev.Receipt == nil {
		return nil
	}

	tx, err := interop.DecodeReceipt(ev.Receipt)
	if err != nil {
		if errors.Is(err, types.ErrNotInterop) {
			if err != types.ErrNotInterop {
				e.logger.Debugw("receipt has malformed interop events", "txHash", ev.Receipt.TxHash.Hex(), "error", err)
			}
			return nil
		}
		return err
	}

	key := types.StatusKey{SenderChainID: ev.ChainID, TransactionHash: ev.Receipt.TxHash}
	log := e.logger.With(
		"flow", uuid.New().String(),
		"senderChainId", key.SenderChainID,
		"txHash", key.TransactionHash.Hex(),
	)

	// nil when the trigger's chain id does not fit a uint64, the flow then fails as unsupported
	var destination *uint64
	if dst := tx.Trigger.DestinationChainId; dst != nil && dst.IsUint64() {
		id := dst.Uint64()
		destination = &id
	}
	log.Infow("interop transaction found", "destinationChainId", tx.Trigger.DestinationChainId)

	started, err := e.recorder.Begin(ctx, key, destination)
	if err != nil {
		log.Errorw("cannot create status record", "error", err)
		return nil
	}
	if !started {
		log.Infow("relay flow already exists, skipping")
		return nil
	}

	e.metrics.FlowsInFlight(1)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.metrics.FlowsInFlight(-1)
		e.runFlow(ctx, log, key, ev, tx, destination)
	}()
	return nil
}

// Wait blocks until every started flow has finished
func (e *RelayEngine) Wait() {
	e.wg.Wait()
}

func (e *RelayEngine) runFlow(
	ctx context.Context,
	log *zap.SugaredLogger,
	key types.StatusKey,
	ev ReceiptEvent,
	tx *interop.Transaction,
	destination *uint64,
) {
	if e.sem != nil {
		if err := e.sem.Acquire(ctx, 1); err != nil {
			e.fail(ctx, log, key, err)
			return
		}
		defer e.sem.Release(1)
	}

	broadcastHash, err := e.relay(ctx, log, key, ev, tx, destination)
	if err != nil {
		e.fail(ctx, log, key, err)
		return
	}

	rec, err := e.recorder.Transition(ctx, key, types.StatusCompleted, broadcastHash)
	if err != nil {
		e.fail(ctx, log, key, err)
		return
	}
	e.metrics.RelayOutcome(rec.Status)
	log.Infow("relay completed", "destinationChainId", rec.DestinationChainID, "broadcastTxHash", broadcastHash)
}

// fail records the terminal failure state, it runs even when ctx is cancelled
func (e *RelayEngine) fail(ctx context.Context, log *zap.SugaredLogger, key types.StatusKey, cause error) {
	rec, err := e.recorder.Fail(context.WithoutCancel(ctx), key)
	if err != nil {
		log.Errorw("relay failed, cannot record failure", "error", cause, "recordError", err)
		return
	}
	e.metrics.RelayOutcome(rec.Status)
	log.Errorw("relay failed", "status", rec.Status, "error", cause)
}

// relay runs everything between waiting_finalization and completed and returns
// the destination transaction hash, nil when the destination already knew it
func (e *RelayEngine) relay(
	ctx context.Context,
	log *zap.SugaredLogger,
	key types.StatusKey,
	ev ReceiptEvent,
	tx *interop.Transaction,
	destination *uint64,
) (*common.Hash, error) {
	if e.cfg.WaitFinalization {
		if err := e.waitFinalized(ctx, log, ev); err != nil {
			return nil, err
		}
	}

	if _, err := e.recorder.Transition(ctx, key, types.StatusProcessing, nil); err != nil {
		return nil, err
	}

	payload, err := interop.BuildPayload(ctx, e.proofs, ev.ChainID, ev.Receipt, tx)
	if err != nil {
		return nil, err
	}

	if destination == nil {
		return nil, errors.Mark(
			errors.Newf("destination chain id %s out of range", tx.Trigger.DestinationChainId),
			types.ErrUnsupportedChain,
		)
	}
	destinationChainID := *destination
	if _, err := e.clients.Descriptor(destinationChainID); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "destination chain %d", destinationChainID), types.ErrUnsupportedChain)
	}
	dst, err := e.clients.GetClient(ctx, destinationChainID)
	if err != nil {
		return nil, types.Mark(err, types.ErrDestinationRPC, "destination client")
	}

	nonce, err := dst.NonceAt(ctx, e.cfg.TriggerAccount)
	if err != nil {
		return nil, types.Mark(err, types.ErrDestinationRPC, "trigger account nonce")
	}
	fees, err := dst.EstimateFees(ctx)
	if err != nil {
		return nil, types.Mark(err, types.ErrDestinationRPC, "fee estimate")
	}

	envelope, err := interop.BuildDestinationTransaction(payload, interop.DestinationParams{
		ChainID:              destinationChainID,
		InteropHandler:       e.cfg.InteropHandler,
		TriggerAccount:       e.cfg.TriggerAccount,
		Nonce:                nonce,
		MaxFeePerGas:         fees.MaxFeePerGas,
		MaxPriorityFeePerGas: fees.MaxPriorityFeePerGas,
	})
	if err != nil {
		return nil, err
	}
	raw, err := envelope.MarshalBinary()
	if err != nil {
		return nil, types.Mark(err, types.ErrProofConstruction, "serialize envelope")
	}

	if _, err := e.recorder.Transition(ctx, key, types.StatusBroadcasting, nil); err != nil {
		return nil, err
	}

	hash, err := dst.SendRawTransaction(ctx, raw)
	if err != nil {
		if EVMRPC.IsAlreadyKnown(err) {
			log.Infow("duplicate submission, not a failure", "error", types.Mark(err, types.ErrDuplicateSubmission, "broadcast"))
			return nil, nil
		}
		return nil, types.Mark(err, types.ErrDestinationRPC, "broadcast")
	}
	log.Infow("destination transaction sent", "destinationChainId", destinationChainID, "broadcastTxHash", hash.Hex(), "nonce", nonce)

	receipt, err := dst.WaitForReceipt(ctx, hash, e.cfg.ConfirmationInterval)
	if err != nil {
		return nil, types.Mark(err, types.ErrDestinationRPC, "await confirmation")
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return nil, errors.Mark(errors.Newf("destination transaction %s reverted", hash.Hex()), types.ErrDestinationRPC)
	}
	return &hash, nil
}

// waitFinalized polls the source chain's finalized tag until it covers the receipt's block
func (e *RelayEngine) waitFinalized(ctx context.Context, log *zap.SugaredLogger, ev ReceiptEvent) error {
	if ev.Receipt.BlockNumber == nil {
		return nil
	}
	block := ev.Receipt.BlockNumber.Uint64()

	desc, err := e.clients.Descriptor(ev.ChainID)
	if err != nil {
		return err
	}
	src, err := e.clients.GetClient(ctx, ev.ChainID)
	if err != nil {
		return err
	}
	interval := config.Millis(desc.PollingInterval)
	if interval <= 0 {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		finalized, err := src.FinalizedBlockNumber(ctx)
		if err != nil {
			log.Warnw("cannot read finalized block", "error", err)
		} else if finalized >= block {
			log.Debugw("source block finalized", "block", block, "finalized", finalized)
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
