package types

import (
	"github.com/cockroachdb/errors"
)

// error categories, call sites wrap the cause and mark it with one of these
var (
	ErrNotInterop          = errors.New("not an interop transaction")
	ErrUnknownChain        = errors.New("unknown chain")
	ErrUnsupportedChain    = errors.New("unsupported destination chain")
	ErrProofConstruction   = errors.New("proof construction failed")
	ErrDestinationRPC      = errors.New("destination rpc error")
	ErrDuplicateSubmission = errors.New("transaction already known")
	ErrWatcherBlock        = errors.New("watcher block error")
	ErrLogProofNotFound    = errors.New("log proof not found")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrRecordMissing       = errors.New("status record missing")
)

// Mark wraps err with msg and tags it with category so errors.Is(err, category) holds
func Mark(err error, category error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrap(err, msg), category)
}
