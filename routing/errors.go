package routing

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidRequest is returned when the prompt is missing or blank.
	ErrInvalidRequest = errors.New("valid prompt is required")

	// ErrConfiguration is returned when the provider credential is absent.
	ErrConfiguration = errors.New("server configuration error: missing API key")
)

// ExhaustedError is returned when every candidate failed, or when the
// fallback deadline stopped the walk early
type ExhaustedError struct {
	Err              error
	LastError        string
	TriedModels      int
	Duration         time.Duration
	DeadlineExceeded bool
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all %d candidate models failed after %s: %s", e.TriedModels, e.Duration, e.LastError)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }
