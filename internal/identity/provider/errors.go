package provider

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies transport-level failures talking to the provider.
// Business rejections are not errors; they arrive as a RawResponse.
type ErrorCategory string

const (
	// ErrorTimeout means no response arrived before the deadline.
	ErrorTimeout ErrorCategory = "timeout"
	// ErrorProviderOutage covers refused connections, DNS failures and an open circuit.
	ErrorProviderOutage ErrorCategory = "provider_outage"
	// ErrorBadData means the body was unreadable or not a JSON object.
	ErrorBadData ErrorCategory = "bad_data"
	ErrorInternal ErrorCategory = "internal"
)

// TransportError wraps failures where no interpretable provider answer exists.
type TransportError struct {
	Category   ErrorCategory
	Message    string
	StatusCode int
	Underlying error
}

func (e *TransportError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("identity provider [%s]: %s: %v", e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("identity provider [%s]: %s", e.Category, e.Message)
}

func (e *TransportError) Unwrap() error {
	return e.Underlying
}

func NewTransportError(category ErrorCategory, message string, underlying error) *TransportError {
	return &TransportError{Category: category, Message: message, Underlying: underlying}
}

// GetCategory extracts the category from err, or ErrorInternal.
func GetCategory(err error) ErrorCategory {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Category
	}
	return ErrorInternal
}

// IsTransportError reports whether err came from the transport layer.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
