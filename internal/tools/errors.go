package tools

import "fmt"

// ErrorCode classifies a ToolError.
type ErrorCode string

const (
	CodeInvalidArgs ErrorCode = "invalid_args"
	CodeFailed      ErrorCode = "execution_failed"
	CodeTimeout     ErrorCode = "timeout"
)

// ToolError is a handler failure whose message is meant to be read by the
// calling agent, so it should say what went wrong and what to change.
type ToolError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *ToolError) Error() string {
	switch {
	case e.Err == nil:
		return e.Message
	case e.Message == "":
		return e.Err.Error()
	default:
		return e.Message + ": " + e.Err.Error()
	}
}

func (e *ToolError) Unwrap() error { return e.Err }

// InvalidArgs reports bad input from the caller.
func InvalidArgs(format string, a ...any) *ToolError {
	return &ToolError{Code: CodeInvalidArgs, Message: fmt.Sprintf(format, a...)}
}

// Failed wraps err with a message describing what the tool was doing.
func Failed(err error, format string, a ...any) *ToolError {
	return &ToolError{Code: CodeFailed, Message: fmt.Sprintf(format, a...), Err: err}
}
