package main

import (
	"github.com/sirupsen/logrus"

	"parallelyou/routing"
)

// beacon logs a named lifecycle event with its fields
func beacon(event string, fields logrus.Fields) {
	logrus.WithFields(fields).WithField("event", event).Info(event)
}

// eventLogger turns router events into structured log lines
type eventLogger struct {
	log *logrus.Logger
}

func newEventLogger(log *logrus.Logger) *eventLogger {
	return &eventLogger{log: log}
}

// Emit implements routing.EventSink
func (l *eventLogger) Emit(e routing.Event) {
	entry := l.log.WithFields(logrus.Fields{
		"request_id": e.RequestID,
		"event":      string(e.Kind),
		"attempt":    e.Attempt,
		"candidates": e.Candidates,
	})
	if e.Model != "" {
		entry = entry.WithField("model", e.Model)
	}

	switch e.Kind {
	case routing.AttemptStarted:
		entry.Debug("Trying model")
	case routing.AttemptFailed:
		entry.WithFields(logrus.Fields{
			"kind":       e.FailureKind,
			"status":     e.StatusCode,
			"latency_ms": e.Duration.Milliseconds(),
		}).Warnf("Model failed: %s", e.Message)
	case routing.AttemptSucceeded:
		entry.WithFields(logrus.Fields{
			"tokens_used": e.TokensUsed,
			"latency_ms":  e.Duration.Milliseconds(),
		}).Info("Model answered")
	case routing.AllFailed:
		entry.WithField("latency_ms", e.Duration.Milliseconds()).
			Errorf("All models failed: %s", e.Message)
	}
}
