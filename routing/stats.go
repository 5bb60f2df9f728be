package routing

import (
	"sort"
	"sync"

	"parallelyou/models"
)

// Stats keeps per-model outcome counters fed from router events. It is only
// reported, never consulted when ordering candidates.
type Stats struct {
	mu         sync.RWMutex
	candidates map[string]*models.CandidateStatus
}

// NewStats creates a stats registry seeded with the configured models so they
// show up before their first attempt
func NewStats(seed ...string) *Stats {
	s := &Stats{
		candidates: make(map[string]*models.CandidateStatus),
	}
	for _, m := range seed {
		s.candidates[m] = &models.CandidateStatus{Model: m}
	}
	return s
}

// Emit implements EventSink
func (s *Stats) Emit(e Event) {
	switch e.Kind {
	case AttemptSucceeded:
		s.recordSuccess(e)
	case AttemptFailed:
		s.recordFailure(e)
	}
}

func (s *Stats) status(model string) *models.CandidateStatus {
	st, ok := s.candidates[model]
	if !ok {
		st = &models.CandidateStatus{Model: model}
		s.candidates[model] = st
	}
	return st
}

// recordSuccess records a successful attempt
func (s *Stats) recordSuccess(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.status(e.Model)
	st.Attempts++
	st.Successes++
	st.ConsecutiveFails = 0
	st.TokensUsed += int64(e.TokensUsed)
	st.LastSuccessful = e.Time
	st.LastUpdated = e.Time
	updateLatency(st, e)
}

// recordFailure records a failed attempt
func (s *Stats) recordFailure(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.status(e.Model)
	st.Attempts++
	st.Failures++
	st.ConsecutiveFails++
	st.LastError = e.Message
	st.LastErrorKind = e.FailureKind
	st.LastStatusCode = e.StatusCode
	st.LastUpdated = e.Time
	updateLatency(st, e)
}

// updateLatency keeps a simple moving average of attempt latency
func updateLatency(st *models.CandidateStatus, e Event) {
	ms := float64(e.Duration.Milliseconds())
	if st.AverageLatency == 0 {
		st.AverageLatency = ms
	} else {
		st.AverageLatency = st.AverageLatency*0.9 + ms*0.1
	}
}

// Get returns a copy of one model's status
func (s *Stats) Get(model string) (models.CandidateStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.candidates[model]
	if !ok {
		return models.CandidateStatus{}, false
	}
	return *st, true
}

// Snapshot returns copies of every status ordered by model name
func (s *Stats) Snapshot() []models.CandidateStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.CandidateStatus, 0, len(s.candidates))
	for _, st := range s.candidates {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Model < out[j].Model
	})
	return out
}
