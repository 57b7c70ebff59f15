package status

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"interoprelay/types"
)

// "" stands for no record yet, only Begin creates records
var transitions = map[types.Status][]types.Status{
	"":                              {types.StatusWaitingFinalization},
	types.StatusWaitingFinalization: {types.StatusProcessing, types.StatusProcessingFailed},
	types.StatusProcessing:          {types.StatusBroadcasting, types.StatusProcessingFailed},
	types.StatusBroadcasting:        {types.StatusCompleted, types.StatusBroadcastingFailed},
}

// CanTransition reports whether a record in state from may move to state to.
// Terminal states have no exits.
func CanTransition(from, to types.Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func checkStorable(rec *types.RelayStatus) error {
	if rec == nil {
		return errors.New("null status record")
	}
	if rec.Status == "" || rec.Status == types.StatusNotFound {
		return errors.Newf("status %q cannot be stored", rec.Status)
	}
	return nil
}

// Recorder is the only writer of status records, it rejects regressions
// and keeps destinationChainId fixed once it is known
type Recorder struct {
	mu     sync.Mutex
	store  Store
	logger *zap.SugaredLogger
}

func NewRecorder(store Store, logger *zap.SugaredLogger) *Recorder {
	return &Recorder{
		store:  store,
		logger: logger.Named("status"),
	}
}

// Begin creates the waiting_finalization record. It returns false when the key
// already has a record, a flow for it has been started before. destinationChainID
// is nil when the trigger names a chain id that cannot be represented.
func (r *Recorder) Begin(ctx context.Context, key types.StatusKey, destinationChainID *uint64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, err := r.store.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if cur != nil {
		return false, nil
	}

	rec := &types.RelayStatus{
		Status:          types.StatusWaitingFinalization,
		SenderChainID:   key.SenderChainID,
		TransactionHash: key.TransactionHash,
	}
	if destinationChainID != nil {
		dst := *destinationChainID
		rec.DestinationChainID = &dst
	}
	if err := r.store.Set(ctx, rec); err != nil {
		return false, err
	}
	r.logger.Infow("status changed",
		"senderChainId", key.SenderChainID,
		"txHash", key.TransactionHash.Hex(),
		"status", rec.Status,
	)
	return true, nil
}

// Transition moves the record for key to next. broadcastHash is kept only for completed.
// A key without a record fails with ErrRecordMissing and nothing is written.
func (r *Recorder) Transition(ctx context.Context, key types.StatusKey, next types.Status, broadcastHash *common.Hash) (*types.RelayStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, err := r.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return r.transition(ctx, key, cur, next, broadcastHash)
}

// Fail picks the terminal failure state from the current record: broadcasting
// becomes broadcasting_failed, anything else processing_failed. It never creates
// a record, a missing one is reported as ErrRecordMissing.
func (r *Recorder) Fail(ctx context.Context, key types.StatusKey) (*types.RelayStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, err := r.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	next := types.StatusProcessingFailed
	if cur != nil && cur.Status == types.StatusBroadcasting {
		next = types.StatusBroadcastingFailed
	}
	return r.transition(ctx, key, cur, next, nil)
}

func (r *Recorder) transition(
	ctx context.Context,
	key types.StatusKey,
	cur *types.RelayStatus,
	next types.Status,
	broadcastHash *common.Hash,
) (*types.RelayStatus, error) {
	if cur == nil {
		r.logger.Errorw("status record missing",
			"senderChainId", key.SenderChainID,
			"txHash", key.TransactionHash.Hex(),
			"status", next,
		)
		return nil, errors.Mark(errors.Newf("%s: no record for %q", key, next), types.ErrRecordMissing)
	}
	from := cur.Status
	rec := cur.Clone()

	if !CanTransition(from, next) {
		return nil, errors.Mark(
			errors.Newf("%s: %q -> %q", key, from, next),
			types.ErrInvalidTransition,
		)
	}

	rec.Status = next
	rec.BroadcastTransactionHash = nil
	if next == types.StatusCompleted && broadcastHash != nil {
		h := *broadcastHash
		rec.BroadcastTransactionHash = &h
	}

	if err := r.store.Set(ctx, rec); err != nil {
		return nil, err
	}

	r.logger.Infow("status changed",
		"senderChainId", key.SenderChainID,
		"txHash", key.TransactionHash.Hex(),
		"from", from,
		"status", next,
	)
	return rec.Clone(), nil
}
