package models

import "fmt"

// FailureKind classifies why a single candidate attempt failed
type FailureKind string

const (
	NetworkError  FailureKind = "network_error"
	EmptyResponse FailureKind = "empty_response"
	ProviderError FailureKind = "provider_error"
)

// CompletionError is the failure variant of one completion attempt.
// StatusCode is zero when no HTTP response was received.
type CompletionError struct {
	Kind       FailureKind
	Message    string
	StatusCode int
}

func (e *CompletionError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}
