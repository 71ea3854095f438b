package domain

import "fmt"

// Status is the value domain of a task's workflow state. No operation in
// the write path restricts transitions between values.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusReview     Status = "review"
	StatusDone       Status = "done"
)

// ParseStatus normalizes a raw status value. An empty value yields the
// default StatusTodo; anything outside the domain is an error.
func ParseStatus(raw string) (Status, error) {
	switch Status(raw) {
	case "":
		return StatusTodo, nil
	case StatusTodo, StatusInProgress, StatusReview, StatusDone:
		return Status(raw), nil
	}
	return "", fmt.Errorf("invalid status %q", raw)
}

// Priority is the value domain of a task's priority.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ParsePriority normalizes a raw priority value, defaulting to
// PriorityMedium when empty.
func ParsePriority(raw string) (Priority, error) {
	switch Priority(raw) {
	case "":
		return PriorityMedium, nil
	case PriorityLow, PriorityMedium, PriorityHigh:
		return Priority(raw), nil
	}
	return "", fmt.Errorf("invalid priority %q", raw)
}

// CreatorSnapshot is a point-in-time copy of the creating user, captured
// when the task is written and never refreshed afterwards.
type CreatorSnapshot struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Avatar string `json:"avatar,omitempty"`
}

// SnapshotCreator copies the fields a task keeps from its creator.
func SnapshotCreator(u User) CreatorSnapshot {
	return CreatorSnapshot{UserID: u.ID, Name: u.Name, Email: u.Email, Avatar: u.Avatar}
}

// Task represents a single board item.
type Task struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Status      Status          `json:"status"`
	Priority    Priority        `json:"priority"`
	DueDate     int64           `json:"dueDate,omitempty"`
	CreatedBy   CreatorSnapshot `json:"createdBy"`
	CreatedAt   int64           `json:"createdAt"`
	UpdatedAt   int64           `json:"updatedAt"`
}
