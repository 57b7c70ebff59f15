package handlers

import (
	"net/http"

	"interoprelay/types"
)

// GetFailedTransactions lists records in either failure state
func (h *Handlers) GetFailedTransactions(w http.ResponseWriter, r *http.Request) {
	failedTxs := make([]*types.RelayStatus, 0)
	for _, st := range []types.Status{types.StatusProcessingFailed, types.StatusBroadcastingFailed} {
		recs, err := h.Store.ListByStatus(r.Context(), st)
		if err != nil {
			h.Logger.Errorf("cannot list %s records: %s", st, err.Error())
			responseJSON(w, nil, http.StatusInternalServerError)
			return
		}
		failedTxs = append(failedTxs, recs...)
	}

	responseJSON(w, failedTxs, http.StatusOK)
}
