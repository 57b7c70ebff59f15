package handlers

import (
	"time"

	"go.uber.org/zap"

	"interoprelay/status"
)

// HeadState is implemented by block watchers
type HeadState interface {
	ChainID() uint64
	LastProcessed() (uint64, bool)
}

// Handlers holds what the API endpoints read from
type Handlers struct {
	Store         status.Store
	Watchers      []HeadState
	QueryInterval time.Duration
	QueryWindow   time.Duration
	// accept 0x prefixed senderChainId values
	AllowHexChainIDs bool
	Logger           *zap.SugaredLogger
}
