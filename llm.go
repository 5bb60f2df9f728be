package main

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"parallelyou/audit"
	"parallelyou/models"
	"parallelyou/routing"
)

// chat runs one request through the fallback router and records the outcome.
// Every transport goes through here.
func (g *gateway) chat(ctx context.Context, req models.ChatRequest) (*models.Completion, error) {
	if req.RequestID == "" {
		req.RequestID = newRequestID()
	}

	logrus.WithFields(logrus.Fields{
		"request_id":    req.RequestID,
		"transport":     req.Transport,
		"prompt_length": len(req.Prompt),
		"persona":       req.PersonaName(),
		"universe":      req.PersonaUniverse(),
		"model":         req.PreferredModel,
	}).Info("Chat request received")

	completion, err := g.router.ExecuteRequest(ctx, req)
	g.record(req, completion, err)
	return completion, err
}

// record writes the terminal outcome to the audit log. Rejected requests
// never reached a model and are not recorded.
func (g *gateway) record(req models.ChatRequest, completion *models.Completion, err error) {
	if g.audit == nil {
		return
	}

	entry := audit.Entry{
		RequestID:      req.RequestID,
		Transport:      req.Transport,
		Persona:        req.PersonaName(),
		Universe:       req.PersonaUniverse(),
		RequestedModel: req.PreferredModel,
		Prompt:         req.Prompt,
	}

	var exhausted *routing.ExhaustedError
	switch {
	case err == nil:
		entry.ModelUsed = completion.Model
		entry.Response = completion.Text
		entry.ProviderTokens = completion.TokensUsed
		entry.DurationMS = completion.Duration.Milliseconds()
	case errors.As(err, &exhausted):
		entry.Error = exhausted.LastError
		entry.TriedModels = exhausted.TriedModels
		entry.DurationMS = exhausted.Duration.Milliseconds()
	default:
		return
	}
	if err == nil {
		entry.TriedModels = g.attemptsFor(req, completion.Model)
	}

	// Detached from the request so a client hang-up does not drop the row.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, auditErr := g.audit.Record(ctx, entry); auditErr != nil {
		logrus.WithError(auditErr).WithField("request_id", req.RequestID).Error("Failed to write audit entry")
	}
}

// attemptsFor returns the 1-based position of model in the request's
// candidate order, which is how many attempts a success took
func (g *gateway) attemptsFor(req models.ChatRequest, model string) int {
	for i, m := range routing.Candidates(g.router.DefaultModels(), req.PreferredModel) {
		if m == model {
			return i + 1
		}
	}
	return 0
}
