package types

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

type Status string

const (
	StatusWaitingFinalization Status = "waiting_finalization"
	StatusProcessing          Status = "processing"
	StatusBroadcasting        Status = "broadcasting"
	StatusCompleted           Status = "completed"
	StatusProcessingFailed    Status = "processing_failed"
	StatusBroadcastingFailed  Status = "broadcasting_failed"
	// never stored, synthesized by the query path
	StatusNotFound Status = "not_found"
)

var StoredStatuses = []Status{
	StatusWaitingFinalization,
	StatusProcessing,
	StatusBroadcasting,
	StatusCompleted,
	StatusProcessingFailed,
	StatusBroadcastingFailed,
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusProcessingFailed || s == StatusBroadcastingFailed
}

func (s Status) Failed() bool {
	return s == StatusProcessingFailed || s == StatusBroadcastingFailed
}

// StatusKey identifies a relay flow, one record per key
type StatusKey struct {
	SenderChainID   uint64
	TransactionHash common.Hash
}

func (k StatusKey) String() string {
	return fmt.Sprintf("%d:%s", k.SenderChainID, strings.ToLower(k.TransactionHash.Hex()))
}

type RelayStatus struct {
	Status                   Status       `json:"status"`
	SenderChainID            uint64       `json:"senderChainId"`
	DestinationChainID       *uint64      `json:"destinationChainId"`
	TransactionHash          common.Hash  `json:"transactionHash"`
	BroadcastTransactionHash *common.Hash `json:"broadcastTransactionHash,omitempty"`
}

func (r *RelayStatus) Key() StatusKey {
	return StatusKey{SenderChainID: r.SenderChainID, TransactionHash: r.TransactionHash}
}

func (r *RelayStatus) Clone() *RelayStatus {
	if r == nil {
		return nil
	}
	c := *r
	if r.DestinationChainID != nil {
		id := *r.DestinationChainID
		c.DestinationChainID = &id
	}
	if r.BroadcastTransactionHash != nil {
		h := *r.BroadcastTransactionHash
		c.BroadcastTransactionHash = &h
	}
	return &c
}

func NotFoundStatus(key StatusKey) *RelayStatus {
	return &RelayStatus{
		Status:          StatusNotFound,
		SenderChainID:   key.SenderChainID,
		TransactionHash: key.TransactionHash,
	}
}
