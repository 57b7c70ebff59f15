package handlers

type APIResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Field   string `json:"field,omitempty"`
}

type APIStateResponse struct {
	Status  string       `json:"status"`
	Message string       `json:"message,omitempty"`
	Chains  []ChainState `json:"chains"`
}

type ChainState struct {
	ChainID            uint64  `json:"chainId"`
	LastProcessedBlock *uint64 `json:"lastProcessedBlock"`
}
