package models

import (
	"time"
)

// CandidateStatus tracks how a candidate model has been doing across requests
type CandidateStatus struct {
	Model string `json:"model"`

	// Request metrics
	Attempts  int64 `json:"attempts"`
	Successes int64 `json:"successes"`
	Failures  int64 `json:"failures"`

	// Latency metrics (milliseconds)
	AverageLatency float64 `json:"average_latency_ms"`

	// Token metrics
	TokensUsed int64 `json:"tokens_used"`

	// Last observed outcome
	ConsecutiveFails int         `json:"consecutive_fails"`
	LastError        string      `json:"last_error,omitempty"`
	LastErrorKind    FailureKind `json:"last_error_kind,omitempty"`
	LastStatusCode   int         `json:"last_status_code,omitempty"`
	LastSuccessful   time.Time   `json:"last_successful,omitempty"`
	LastUpdated      time.Time   `json:"last_updated"`
}

// SuccessRate returns successes/attempts, or 0 before the first attempt
func (s CandidateStatus) SuccessRate() float64 {
	if s.Attempts == 0 {
		return 0
	}
	return float64(s.Successes) / float64(s.Attempts)
}
