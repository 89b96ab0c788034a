// Package llm abstracts the language-model backend behind a
// conversation-shaped request/response call.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is a single exchange in a conversation.
type Turn struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Request is the input to a completion call.
type Request struct {
	Model        string
	SystemPrompt string
	Turns        []Turn
	MaxTokens    int
	Temperature  *float64
}

// Provider is a language-model backend.
type Provider interface {
	// Complete returns the assistant's next message for the conversation.
	// Failures carry a distinguishable *Error kind where the backend
	// reported one.
	Complete(ctx context.Context, req Request) (string, error)
	// DefaultModel returns the model identifier used when the request
	// does not name one.
	DefaultModel() string
}

// ErrorKind distinguishes backend failure classes that need different
// user-facing treatment.
type ErrorKind string

const (
	KindQuotaExceeded     ErrorKind = "quota_exceeded"
	KindRateLimited       ErrorKind = "rate_limited"
	KindInvalidCredential ErrorKind = "invalid_credential"
	KindOther             ErrorKind = "other"
)

// Error wraps a backend failure with its classified kind.
type Error struct {
	Kind     ErrorKind
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Classify returns the kind of err, or KindOther if it does not carry one.
func Classify(err error) ErrorKind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return KindOther
}

// kindFromStatus maps an HTTP status code from a backend to an ErrorKind.
// quotaHint marks responses whose body names a quota/credit problem, which
// some backends report under 400/429 rather than a dedicated status.
func kindFromStatus(status int, quotaHint bool) ErrorKind {
	switch {
	case quotaHint:
		return KindQuotaExceeded
	case status == 401 || status == 403:
		return KindInvalidCredential
	case status == 402:
		return KindQuotaExceeded
	case status == 429:
		return KindRateLimited
	default:
		return KindOther
	}
}
