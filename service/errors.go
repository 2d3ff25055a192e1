package service

import (
	"errors"
	"fmt"
)

// ErrValidation marks every ValidationError.
var ErrValidation = errors.New("validation failed")

// ValidationError reports a missing or malformed required input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("missing %s", e.Field)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// UpstreamAuthError wraps a failed provider token exchange.
type UpstreamAuthError struct {
	Err error
}

func (e *UpstreamAuthError) Error() string { return "provider authentication failed: " + e.Err.Error() }
func (e *UpstreamAuthError) Unwrap() error { return e.Err }

// UpstreamChargeError wraps a failed provider charge request.
type UpstreamChargeError struct {
	Err error
}

func (e *UpstreamChargeError) Error() string { return "provider charge failed: " + e.Err.Error() }
func (e *UpstreamChargeError) Unwrap() error { return e.Err }

// ProcessingError wraps a store failure while reconciling a webhook. It is
// surfaced as 500 so the provider re-delivers.
type ProcessingError struct {
	ExternalID string
	Err        error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("failed to update payer %q: %v", e.ExternalID, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }
