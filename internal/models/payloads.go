package models

// These structs define the JSON payloads for the Cloud Function entrypoints
// and the downstream workflow hand-off.

// SummarizeDocumentRequest is the input for the summarize-document function.
type SummarizeDocumentRequest struct {
	DocumentID  string `json:"documentId"`
	ExecutionID string `json:"executionId"`
}

// SummarizeDocumentResponse is the output of the summarize-document function.
type SummarizeDocumentResponse struct {
	Status        string            `json:"status"`
	DocumentID    string            `json:"documentId"`
	SummaryLength int               `json:"summaryLength"`
	Links         map[string]string `json:"links,omitempty"`
}

// GCSEvent is the subset of a storage object-finalize event we use.
type GCSEvent struct {
	Bucket      string `json:"bucket"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
}

// BatchCompletedPayload is the argument passed to the post-batch workflow.
type BatchCompletedPayload struct {
	SessionFile string   `json:"sessionFile"`
	Total       int      `json:"total"`
	Processed   int      `json:"processed"`
	Failed      int      `json:"failed"`
	FailedIDs   []string `json:"failedIds,omitempty"`
}
