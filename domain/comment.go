package domain

// AuthorSnapshot is the point-in-time copy of the commenting user kept on
// the comment itself, so reads never join back to the users table.
type AuthorSnapshot struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// SnapshotAuthor copies the fields a comment keeps from its author.
func SnapshotAuthor(u User) AuthorSnapshot {
	return AuthorSnapshot{UserID: u.ID, Name: u.Name, Avatar: u.Avatar}
}

// Comment is a free-text note attached to a task.
type Comment struct {
	ID        string         `json:"id"`
	TaskID    string         `json:"task_id"`
	Text      string         `json:"text"`
	Author    AuthorSnapshot `json:"author"`
	CreatedAt int64          `json:"createdAt"`
	UpdatedAt int64          `json:"updatedAt"`
}
