package protocol

import "fmt"

// ErrorCode is the structured error category carried in error
// responses next to the human-readable message.
type ErrorCode string

const (
	CodeGameNotFound    ErrorCode = "GAME_NOT_FOUND"
	CodeNoActiveSession ErrorCode = "NO_ACTIVE_SESSION"
	CodeUnknownCommand  ErrorCode = "UNKNOWN_COMMAND"
	CodeInvalidParams   ErrorCode = "INVALID_PARAMS"
	CodeHardwareError   ErrorCode = "HARDWARE_ERROR"
	CodeCardNotFound    ErrorCode = "CARD_NOT_FOUND"
	CodeCardInactive    ErrorCode = "CARD_INACTIVE"
	CodeInternal        ErrorCode = "INTERNAL"
)

// CommandError is an agent-reported failure surfaced to callers of the
// typed client API.
type CommandError struct {
	Code    ErrorCode
	Message string
}

func (e *CommandError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

// ErrorFromResponse converts an error response into a CommandError.
// Returns nil for success responses.
func ErrorFromResponse(resp *Response) error {
	if resp == nil || resp.Status != StatusError {
		return nil
	}
	msg := resp.Error
	if msg == "" {
		msg = "unknown error"
	}
	return &CommandError{Code: resp.Code, Message: msg}
}
