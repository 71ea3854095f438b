package domain

// ErrorCode is the closed, caller-facing error enumeration. The values are
// the stable contract; diagnostic detail rides alongside, never instead.
type ErrorCode string

const (
	ErrUserNotFound       ErrorCode = "USER_NOT_FOUND"
	ErrTaskNotFound       ErrorCode = "TASK_NOT_FOUND"
	ErrFailedToCreateTask ErrorCode = "FAILED_TO_CREATE_TASK"
	ErrFailedToAssignTask ErrorCode = "FAILED_TO_ASSIGN_TASK"
	ErrFailedToAddComment ErrorCode = "FAILED_TO_ADD_COMMENT"
)

// Result is the uniform envelope every write operation returns. OK=false
// implies Data is absent and Error is set; OK=true implies Error is absent.
type Result struct {
	OK     bool      `json:"ok"`
	Data   any       `json:"data,omitempty"`
	Error  ErrorCode `json:"error,omitempty"`
	Detail string    `json:"detail,omitempty"`
}

// Success wraps a created entity in a success envelope.
func Success(data any) Result {
	return Result{OK: true, Data: data}
}

// Failure builds a failure envelope. Detail is auxiliary diagnostic text
// and may be empty.
func Failure(code ErrorCode, detail string) Result {
	return Result{OK: false, Error: code, Detail: detail}
}
