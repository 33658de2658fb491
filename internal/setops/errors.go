package setops

import (
	"errors"
	"fmt"
)

// Kind classifies a terminal pipeline failure.
type Kind string

// Error kinds surfaced by the public entry points.
const (
	KindInput     Kind = "input"
	KindFetch     Kind = "fetch"
	KindParse     Kind = "parse"
	KindInference Kind = "inference"
	KindQuality   Kind = "quality"
	KindLoop      Kind = "loop"
	KindDiscovery Kind = "discovery"
)

// Sentinels for errors.Is checks against a kind.
var (
	ErrInput     = &Error{Kind: KindInput}
	ErrFetch     = &Error{Kind: KindFetch}
	ErrParse     = &Error{Kind: KindParse}
	ErrInference = &Error{Kind: KindInference}
	ErrQuality   = &Error{Kind: KindQuality}
	ErrLoop      = &Error{Kind: KindLoop}
	ErrDiscovery = &Error{Kind: KindDiscovery}
)

// ErrNotFound is returned by stores when a job does not exist.
var ErrNotFound = errors.New("not found")

// Error is a classified failure with an operator-facing message.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

// Errorf builds a classified error with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds a classified error around a cause.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind) + " error"
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinels of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// KindOf returns the kind of the first classified error in the chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Message returns the operator-facing message of a classified error, falling back to err.Error().
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
