package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind is a closed set of AI failure categories. Callers switch on the
// kind instead of matching message substrings.
type ErrorKind string

const (
	KindRateLimited ErrorKind = "RATE_LIMITED"
	KindAuth        ErrorKind = "AUTH"
	KindTimeout     ErrorKind = "TIMEOUT"
	KindParse       ErrorKind = "PARSE"
	KindUnavailable ErrorKind = "UNAVAILABLE"
)

// ErrNotConfigured indicates no Gemini credential was provided.
var ErrNotConfigured = errors.New("ai: client not configured")

// Error is a tagged AI failure.
type Error struct {
	Kind  ErrorKind
	Op    string
	cause error
}

func (e *Error) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("ai: %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("ai: %s: %s: %v", e.Op, e.Kind, e.cause)
}

func (e *Error) Unwrap() error { return e.cause }

// NewError builds a tagged AI error.
func NewError(kind ErrorKind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, cause: cause}
}

// KindOf extracts the kind of an AI error, or empty when err is unrelated.
func KindOf(err error) ErrorKind {
	var aiErr *Error
	if errors.As(err, &aiErr) {
		return aiErr.Kind
	}
	return ""
}

// classify maps a transport error onto a tagged kind. The Gemini SDK only
// exposes quota and credential failures through message text, so the
// substring matching lives here and nowhere else.
func classify(op string, err error) *Error {
	kind := KindUnavailable
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		kind = KindTimeout
	case containsAny(err, "quota", "resource exhausted", "429"):
		kind = KindRateLimited
	case containsAny(err, "API key", "api key", "credential", "unauthenticated"):
		kind = KindAuth
	}
	return &Error{Kind: kind, Op: op, cause: err}
}

func containsAny(err error, needles ...string) bool {
	msg := err.Error()
	for _, needle := range needles {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
