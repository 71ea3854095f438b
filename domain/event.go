package domain

import "github.com/bytedance/sonic"

// Write-event types published after a successful persistence write.
const (
	EventTaskCreated  = "task-created"
	EventTaskAssigned = "task-assigned"
	EventCommentAdded = "comment-added"
	EventUserSynced   = "user-synced"
)

// Event notifies downstream read models about a committed write. Delivery
// is advisory; the write's result envelope never depends on it.
type Event struct {
	ID         string                 `json:"id"`
	EntityType string                 `json:"entityType"`
	EntityID   string                 `json:"entityId"`
	Type       string                 `json:"type"`
	Data       sonic.NoCopyRawMessage `json:"data,omitempty"`
	Timestamp  int64                  `json:"timestamp"`
}

// EventEnvelope wraps an event with the user whose write produced it.
type EventEnvelope struct {
	UserID string `json:"userId"`
	Event  Event  `json:"event"`
}
