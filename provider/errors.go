package provider

import (
	"fmt"
	"strings"
)

// APIError carries a non-success provider response verbatim for diagnostics.
type APIError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *APIError) Error() string {
	if e == nil {
		return "<nil>"
	}
	bt := strings.TrimSpace(e.Body)
	if bt == "" {
		return fmt.Sprintf("bspay error: %s", e.Status)
	}
	return fmt.Sprintf("bspay error: %s: %s", e.Status, bt)
}

// AuthError is returned when the token exchange is rejected.
type AuthError struct {
	APIError
}

func (e *AuthError) Error() string {
	return "authenticate: " + e.APIError.Error()
}

// ChargeError is returned when the Pix charge request is rejected.
type ChargeError struct {
	APIError
}

func (e *ChargeError) Error() string {
	return "create charge: " + e.APIError.Error()
}
