package model

import (
	"encoding/json"
	"time"
)

const (
	StatusAvailable  = "AVAILABLE"
	StatusInProgress = "IN_PROGRESS"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

// WorkItem is a single evaluable unit of work handed out to polling workers.
// At most one worker holds an unexpired claim on an item at any instant; the
// claim token rotates on every claim so a submit against a reclaimed item can
// be detected and rejected.
type WorkItem struct {
	ID            int64                  `json:"-"`
	WorkItemID    string                 `json:"work_item_id"`
	QueueKey      string                 `json:"queue_key"`
	PayloadRef    string                 `json:"payload_ref"`
	Content       string                 `json:"content"`
	Status        string                 `json:"status"`
	ClaimToken    string                 `json:"claim_token,omitempty"`
	ClaimedAt     *time.Time             `json:"claimed_at,omitempty"`
	CompletedAt   *time.Time             `json:"completed_at,omitempty"`
	Result        map[string]interface{} `json:"result,omitempty"`
	FailureReason string                 `json:"failure_reason,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	MetaData      map[string]interface{} `json:"meta_data,omitempty"`
}

// ReleaseAction reports what a release call did to a work item.
type ReleaseAction string

const (
	ReleaseActionDeleted      ReleaseAction = "deleted"
	ReleaseActionMarkedFailed ReleaseAction = "marked_failed"
	ReleaseActionNoop         ReleaseAction = "noop"
)

func (w *WorkItem) ToJSON() ([]byte, error) {
	return json.Marshal(w)
}

// IsTerminal reports whether the item can never be offered to a poller again.
func (w *WorkItem) IsTerminal() bool {
	return w.Status == StatusCompleted || w.Status == StatusFailed
}

// ClaimExpired reports whether the item's claim is older than the given
// timeout. Items without a claim are never expired.
func (w *WorkItem) ClaimExpired(timeout time.Duration, now time.Time) bool {
	if w.Status != StatusInProgress || w.ClaimedAt == nil {
		return false
	}
	return now.Sub(*w.ClaimedAt) > timeout
}
