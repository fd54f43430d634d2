package command

import (
	"errors"
	"fmt"
)

// Error is an error reported by the server for one command.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" && e.Message != e.Code {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code
}

// Is matches errors by code, or by message when target has no code.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code != "" {
		return e.Code == t.Code
	}
	if t.Message != "" {
		return e.Message == t.Message
	}
	return false
}

func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Kinds of TransportError, also used as the suffix of the io.error.<kind>
// events.
const (
	KindNetwork     = "network"
	KindMaintenance = "maintenance"
	KindParse       = "parse"
)

// TransportError reports a batch which could not be sent or whose response
// could not be read. The batch stays in flight until Center.Resend.
type TransportError struct {
	Kind   string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s error (http status %d): %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

var (
	ErrNoResponse = errors.New("no response for command")
	ErrClosed     = errors.New("command center closed")
)
