package api

const writeBodyMaxSize = 64 * 1024 // 64 KiB

// POST /api/tasks request body
type createTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Priority    string `json:"priority"`
	DueDate     int64  `json:"dueDate"`
}

// POST /api/tasks/assign request body
type assignTaskRequest struct {
	TaskID string `json:"task_id"`
	UserID string `json:"user_id"`
}

// POST /api/tasks/comments request body
type addCommentRequest struct {
	TaskID string `json:"task_id"`
	Text   string `json:"text"`
}

// PUT /api/users/me request body
type syncUserRequest struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Avatar string `json:"avatar"`
}
