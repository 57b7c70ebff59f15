package handlers

import (
	"context"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"interoprelay/config"
	"interoprelay/status"
	"interoprelay/types"
)

// InteropTransactionStatus answers with the relay status record. Unknown transactions
// are polled for a while and then reported as not_found with 200.
func (h *Handlers) InteropTransactionStatus(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	txHash := q.Get("transactionHash")
	if txHash == "" {
		responseError(w, "transactionHash", "missing transaction hash", http.StatusBadRequest)
		return
	}
	raw, err := hexutil.Decode(txHash)
	if err != nil || len(raw) != common.HashLength {
		responseError(w, "transactionHash", "invalid transaction hash", http.StatusBadRequest)
		return
	}

	chainParam := q.Get("senderChainId")
	if chainParam == "" {
		responseError(w, "senderChainId", "missing sender chain id", http.StatusBadRequest)
		return
	}
	chainID, err := config.ParseChainID(chainParam, h.AllowHexChainIDs)
	if err != nil {
		responseError(w, "senderChainId", err.Error(), http.StatusBadRequest)
		return
	}

	key := types.StatusKey{SenderChainID: chainID, TransactionHash: common.BytesToHash(raw)}
	rec, err := status.Query(r.Context(), h.Store, key, h.QueryInterval, h.QueryWindow)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		h.Logger.Errorw("status query failed", "senderChainId", chainID, "txHash", key.TransactionHash.Hex(), "error", err)
		responseError(w, "", "status store unavailable", http.StatusInternalServerError)
		return
	}

	responseJSON(w, rec, http.StatusOK)
}
