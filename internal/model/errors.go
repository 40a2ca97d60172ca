package model

import (
	"fmt"
)

// CredentialError indicates a user is not connected to a provider or the
// stored credential is expired and could not be refreshed. Never retried
// automatically; the caller is expected to trigger re-auth.
type CredentialError struct {
	Provider string
	Reason   string
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("credential error for provider %s: %s", e.Provider, e.Reason)
}

// AnalysisValidationError indicates a malformed analysis payload for a
// single message. Fatal for that message only; the pipeline continues.
type AnalysisValidationError struct {
	MessageID string
	Field     string
	Reason    string
}

func (e *AnalysisValidationError) Error() string {
	return fmt.Sprintf("invalid analysis for message %s: field %s: %s", e.MessageID, e.Field, e.Reason)
}

// CircuitOpenError is returned when a call is rejected because the named
// service's circuit breaker is open. A degraded-service signal, not a
// hard failure.
type CircuitOpenError struct {
	Service string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open for service %s", e.Service)
}

// CacheComputeError wraps a failure inside a getOrSet compute function.
// The underlying error propagates and nothing is cached.
type CacheComputeError struct {
	Key string
	Err error
}

func (e *CacheComputeError) Error() string {
	return fmt.Sprintf("cache compute failed for key %s: %v", e.Key, e.Err)
}

func (e *CacheComputeError) Unwrap() error {
	return e.Err
}
