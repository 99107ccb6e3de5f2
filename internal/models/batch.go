package models

// ProviderSelector names the AI provider and model a batch should run with.
type ProviderSelector struct {
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
}

// StartBatchRequest is the body of the batch start endpoint.
type StartBatchRequest struct {
	PhotoIDs []string         `json:"photoIds"`
	Selector ProviderSelector `json:"selector"`
}

// StartBatchResponse acknowledges a batch start request. Acceptance only
// confirms the backend registered the batch, not that any work finished.
type StartBatchResponse struct {
	Accepted bool   `json:"accepted"`
	BatchID  string `json:"batchId,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// PhotoStatusResponse is the per-photo status endpoint payload.
type PhotoStatusResponse struct {
	PhotoID string          `json:"photoId"`
	Status  PhotoStatus     `json:"status"`
	Result  *AnalysisResult `json:"result,omitempty"`
}

// BatchStatusResponse reports whether a batch is in flight server-side and
// which photo IDs are still outstanding. Used only by the resume path.
type BatchStatusResponse struct {
	InFlight    bool     `json:"inFlight"`
	BatchID     string   `json:"batchId,omitempty"`
	Outstanding []string `json:"outstanding,omitempty"`
	Processing  []string `json:"processing,omitempty"`
}
