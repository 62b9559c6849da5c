package stomp

import (
	"errors"
	"fmt"
)

const (
	CommandError = iota

	ConnectionError

	DisconnectedError

	InvalidURIError

	ProtocolError

	TimedOutError

	UnknownError
)

// Error is a typed client error.
type Error struct {
	Code    int
	Message string
	cause   error
}

func errorName(errorCode int) string {
	var errorName string

	switch errorCode {
	case CommandError:
		errorName = "CommandError"
	case ConnectionError:
		errorName = "ConnectionError"
	case DisconnectedError:
		errorName = "DisconnectedError"
	case InvalidURIError:
		errorName = "InvalidURIError"
	case ProtocolError:
		errorName = "ProtocolError"
	case TimedOutError:
		errorName = "TimedOutError"
	default:
		errorName = "UnknownError"
	}

	return errorName
}

func (err *Error) Error() string {
	if err.Message == "" {
		return errorName(err.Code)
	}
	return fmt.Sprintf("%s: %s", errorName(err.Code), err.Message)
}

func (err *Error) Unwrap() error {
	return err.cause
}

// NewError returns a typed error for errorCode. The first message argument is
// formatted into the text; an error argument is also kept as the cause.
func NewError(errorCode int, message ...interface{}) error {
	result := &Error{Code: errorCode}
	if len(message) > 0 {
		result.Message = fmt.Sprint(message[0])
		if cause, ok := message[0].(error); ok {
			result.cause = cause
		}
	}
	return result
}

// ErrorCode returns the code of a typed error in err's chain, or UnknownError.
func ErrorCode(err error) int {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Code
	}
	return UnknownError
}
