package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeUnauthenticated = "unauthenticated"
	ErrCodeForbidden       = "forbidden"
	ErrCodeNotFound        = "not_found"
	ErrCodeEmptyMessage    = "empty_message"
	ErrCodeInvalidEnum     = "invalid_enum"
	ErrCodeUnauthorized    = "unauthorized"
	ErrCodeInvalidState    = "invalid_state"
	ErrCodeBadRequest      = "bad_request"
	ErrCodeRoomNotFound    = "room_not_found"
	ErrCodeNotInRoom       = "not_in_room"

	// Call-related error codes
	ErrCodeCallInProgress = "call_in_progress"
	ErrCodeNoCall         = "no_call"
)

var (
	ErrUnauthenticated = coreError(ErrCodeUnauthenticated, "no verified identity")
	ErrForbidden       = coreError(ErrCodeForbidden, "not the owner of this resource")
	ErrNotFound        = coreError(ErrCodeNotFound, "not found")
	ErrEmptyMessage    = coreError(ErrCodeEmptyMessage, "message text is empty")
	ErrInvalidEnum     = coreError(ErrCodeInvalidEnum, "unsupported kind")
	ErrUnauthorized    = coreError(ErrCodeUnauthorized, "privileged action")
	ErrInvalidState    = coreError(ErrCodeInvalidState, "message has been deleted")
	ErrBadRequest      = coreError(ErrCodeBadRequest, "bad request")
	ErrRoomNotFound    = coreError(ErrCodeRoomNotFound, "room not found")
	ErrNotInRoom       = coreError(ErrCodeNotInRoom, "not in room")
	ErrCallInProgress  = coreError(ErrCodeCallInProgress, "a call is already live in this room")
	ErrNoCall          = coreError(ErrCodeNoCall, "no live call in this room")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

// Code extracts the domain error code from err, or "internal" when err is not a CoreError.
func Code(err error) string {
	if err == nil {
		return ""
	}
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return "internal"
}
