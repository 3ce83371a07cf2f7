package platform

import (
	"errors"
	"fmt"
	"strings"
)

type ErrorKind string

const (
	KindUnsupportedPlatform ErrorKind = "UNSUPPORTED_PLATFORM"
	KindInvalidInput        ErrorKind = "INVALID_INPUT"
	KindStrategyExhausted   ErrorKind = "STRATEGY_EXHAUSTED"
	KindTimeout             ErrorKind = "TIMEOUT"
	KindToolFault           ErrorKind = "TOOL_FAULT"
	KindUnexpectedFault     ErrorKind = "UNEXPECTED_FAULT"
)

// Error is a classified acquisition failure. Message is human readable and
// safe to show to users; Err carries the underlying cause, if any.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

var (
	ErrUnsupportedPlatform = &Error{Kind: KindUnsupportedPlatform}
	ErrInvalidInput        = &Error{Kind: KindInvalidInput}
	ErrStrategyExhausted   = &Error{Kind: KindStrategyExhausted}
	ErrTimeout             = &Error{Kind: KindTimeout}
	ErrToolFault           = &Error{Kind: KindToolFault}
	ErrUnexpectedFault     = &Error{Kind: KindUnexpectedFault}
)

func newError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

func (err *Error) Error() string {
	if err.Err == nil {
		return err.Message
	}

	return fmt.Sprintf("%s: %s", err.Message, err.Err)
}

func (err *Error) Unwrap() error { return err.Err }

// Is allows the package sentinels to match any Error of the same kind,
// e.g. errors.Is(err, ErrTimeout).
func (err *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return t.Kind == err.Kind && t.Message == "" && t.Err == nil
}

// KindOf returns the kind of the first *Error in the chain, or
// KindUnexpectedFault if the error is not classified.
func KindOf(err error) ErrorKind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}

	return KindUnexpectedFault
}

// UserMessage returns a non-empty, human readable description of the error
// suitable for storing against a failed task.
func UserMessage(err error) string {
	var classified *Error
	if errors.As(err, &classified) && classified.Message != "" {
		return classified.Message
	}
	if err != nil && strings.TrimSpace(err.Error()) != "" {
		return err.Error()
	}

	return "download failed"
}

// rank orders errors by how useful they are to the user. A tool fault
// (e.g. login required) explains the failure better than a timeout,
// which in turn is better than a generic failure.
func rank(err error) int {
	switch KindOf(err) {
	case KindToolFault:
		return 2
	case KindTimeout:
		return 1
	default:
		return 0
	}
}

var toolFaultSignatures = []string{"login", "log in", "sign in", "cookie", "authentication"}

// detectToolFault inspects tool stderr for signatures indicating the content
// requires authentication, which no strategy can work around.
func detectToolFault(stderr string) bool {
	lower := strings.ToLower(stderr)
	for _, sig := range toolFaultSignatures {
		if strings.Contains(lower, sig) {
			return true
		}
	}

	return false
}
