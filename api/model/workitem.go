package model

// CreateWorkItem is the request body for enqueueing a new work item on a
// queue.
type CreateWorkItem struct {
	PayloadRef string                 `json:"payload_ref"`
	Content    string                 `json:"content"`
	MetaData   map[string]interface{} `json:"meta_data"`
}

// SubmitResult is the request body for submitting the result of a claimed
// work item.
type SubmitResult struct {
	ClaimToken string                 `json:"claim_token"`
	Result     map[string]interface{} `json:"result"`
}

// ReleaseWorkItem is the request body for giving up a claim.
type ReleaseWorkItem struct {
	MarkFailed bool   `json:"mark_failed"`
	Reason     string `json:"reason"`
}
