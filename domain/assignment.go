package domain

// Assignment links a task to an assignee. It is immutable once created and
// carries no uniqueness constraint: assigning the same task to the same
// user twice produces two records.
type Assignment struct {
	ID        string `json:"id"`
	TaskID    string `json:"task_id"`
	UserID    string `json:"user_id"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
}
