package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pulsefeed/internal/model"
)

// RawMessage is a provider-native record before normalization. ProviderID
// is unique within one provider and stable across refetches.
type RawMessage struct {
	ProviderID     string
	Subject        string
	Sender         string
	SenderEmail    string
	Recipients     string
	Snippet        string
	Timestamp      time.Time
	HasAttachments bool
	Labels         []string
	Metadata       map[string]any
}

// Adapter fetches raw messages from one external provider. Implementations
// must return partial results when individual items fail, dropping the
// failed items with a logged warning.
type Adapter interface {
	// Name is the stable provider name, also used as the circuit breaker
	// service name for this adapter.
	Name() string
	// Source is the feed source messages from this adapter map to.
	Source() model.Source
	// Fetch returns messages from the last windowDays days using the
	// given access credential.
	Fetch(ctx context.Context, credential string, windowDays int) ([]RawMessage, error)
}

// ErrorKind classifies a provider failure for the retry predicate.
type ErrorKind int

const (
	// Unauthorized means the credential is expired or invalid. Never
	// retried; propagated so the caller can trigger re-auth.
	Unauthorized ErrorKind = iota
	// RateLimited is a 429-equivalent response. Retryable.
	RateLimited
	// Unavailable is a network failure or 5xx response. Retryable.
	Unavailable
	// Malformed means a single item could not be parsed. The item is
	// dropped; the call as a whole does not fail with this kind.
	Malformed
)

func (k ErrorKind) String() string {
	switch k {
	case Unauthorized:
		return "unauthorized"
	case RateLimited:
		return "rate_limited"
	case Unavailable:
		return "unavailable"
	case Malformed:
		return "malformed"
	}
	return "unknown"
}

// Error is a typed provider failure.
type Error struct {
	Provider string
	Kind     ErrorKind
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is transient.
func (e *Error) Retryable() bool {
	return e.Kind == RateLimited || e.Kind == Unavailable
}

// NewError wraps err with a provider name and classification.
func NewError(provider string, kind ErrorKind, err error) *Error {
	return &Error{Provider: provider, Kind: kind, Err: err}
}

// KindFromStatus classifies an HTTP status code.
func KindFromStatus(status int) ErrorKind {
	switch {
	case status == 401 || status == 403:
		return Unauthorized
	case status == 429:
		return RateLimited
	case status >= 500:
		return Unavailable
	default:
		return Malformed
	}
}

// AsCredentialError converts an Unauthorized provider error into the
// feed-level credential error surfaced to callers, or returns nil.
func AsCredentialError(err error) *model.CredentialError {
	var perr *Error
	if errors.As(err, &perr) && perr.Kind == Unauthorized {
		return &model.CredentialError{Provider: perr.Provider, Reason: "access token expired or revoked"}
	}
	return nil
}
