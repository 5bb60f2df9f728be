package routing

import (
	"time"

	"parallelyou/models"
)

// EventKind names a step of the fallback walk
type EventKind string

const (
	AttemptStarted   EventKind = "attempt_started"
	AttemptFailed    EventKind = "attempt_failed"
	AttemptSucceeded EventKind = "attempt_succeeded"
	AllFailed        EventKind = "all_failed"
)

// Event is emitted by the Router instead of logging. Attempt is 1-based; for
// AllFailed it holds the number of attempts made and Duration the total time.
type Event struct {
	Kind        EventKind
	RequestID   string
	Model       string
	Attempt     int
	Candidates  int
	FailureKind models.FailureKind
	Message     string
	StatusCode  int
	TokensUsed  int
	Duration    time.Duration
	Time        time.Time
}

// EventSink consumes router events. Emit must not block for long.
type EventSink interface {
	Emit(Event)
}

// EventSinkFunc adapts a function to EventSink
type EventSinkFunc func(Event)

func (f EventSinkFunc) Emit(e Event) { f(e) }

// Sinks fans an event out to several sinks in order
type Sinks []EventSink

func (s Sinks) Emit(e Event) {
	for _, sink := range s {
		if sink != nil {
			sink.Emit(e)
		}
	}
}

// Discard drops every event
var Discard EventSink = EventSinkFunc(func(Event) {})
