package handlers

import (
	"net/http"
)

// State reports how far every watcher got
func (h *Handlers) State(w http.ResponseWriter, r *http.Request) {
	chains := make([]ChainState, 0, len(h.Watchers))
	for _, watcher := range h.Watchers {
		st := ChainState{ChainID: watcher.ChainID()}
		if block, ok := watcher.LastProcessed(); ok {
			st.LastProcessedBlock = &block
		}
		chains = append(chains, st)
	}

	responseJSON(w, &APIStateResponse{
		Status: "ok",
		Chains: chains,
	}, http.StatusOK)
}
