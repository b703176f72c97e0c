package toolrunner

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/agentbundle/pkg/models"
)

var (
	// ErrNotInitialized indicates the client was used before Initialize.
	ErrNotInitialized = errors.New("tool runner not initialized")

	// ErrMissingCredential indicates Initialize was called without a provider key.
	ErrMissingCredential = errors.New("provider API key is required")
)

// ProviderError is a provider failure already classified at the client boundary.
type ProviderError struct {
	Kind     models.FailureKind
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError wraps err with its classification.
func NewProviderError(provider string, kind models.FailureKind, err error) *ProviderError {
	return &ProviderError{Kind: kind, Provider: provider, Err: err}
}

// Classify returns the failure kind of err. Context expiry maps to timeout,
// context cancellation to cancelled, and anything unclassified to an unknown
// provider error.
func Classify(err error) models.FailureKind {
	var pe *ProviderError

	switch {
	case errors.As(err, &pe):
		return pe.Kind
	case errors.Is(err, context.DeadlineExceeded):
		return models.FailureTimeout
	case errors.Is(err, context.Canceled):
		return models.FailureCancelled
	default:
		return models.FailureUnknownProvider
	}
}

// IsRetryable reports whether a failure of kind may succeed when tried again.
func IsRetryable(kind models.FailureKind) bool {
	return kind == models.FailureRateLimited
}
