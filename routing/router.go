package routing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"parallelyou/models"
)

//go:generate mockgen -source=router.go -destination=mocks/completer.go -package=mocks Completer

// Completer performs one completion attempt against a single candidate model
type Completer interface {
	// Complete returns the reply or a *models.CompletionError
	Complete(ctx context.Context, req models.CompletionRequest) (*models.Completion, error)

	// Configured reports whether the provider credential is present
	Configured() bool
}

// Options configures a Router
type Options struct {
	DefaultModels  []string
	AttemptTimeout time.Duration // per candidate, 30s when zero
	Deadline       time.Duration // across all candidates, 0 disables the cap
	Sink           EventSink
}

// Router tries candidate models in order until one answers
type Router struct {
	client         Completer
	defaultModels  []string
	attemptTimeout time.Duration
	deadline       time.Duration
	sink           EventSink

	// nowFunc is used for testing; defaults to time.Now.
	nowFunc func() time.Time
}

// NewRouter creates a router. The default model list is copied.
func NewRouter(client Completer, opts Options) *Router {
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = 30 * time.Second
	}
	if opts.Sink == nil {
		opts.Sink = Discard
	}

	defaults := make([]string, len(opts.DefaultModels))
	copy(defaults, opts.DefaultModels)

	return &Router{
		client:         client,
		defaultModels:  defaults,
		attemptTimeout: opts.AttemptTimeout,
		deadline:       opts.Deadline,
		sink:           opts.Sink,
		nowFunc:        time.Now,
	}
}

// SetNowFunc overrides the time source (for testing).
func (r *Router) SetNowFunc(fn func() time.Time) { r.nowFunc = fn }

// DefaultModels returns a copy of the default candidate list
func (r *Router) DefaultModels() []string {
	out := make([]string, len(r.defaultModels))
	copy(out, r.defaultModels)
	return out
}

// Candidates builds the attempt order: the preferred model first, then the
// defaults without it. A blank preferred model yields the defaults verbatim.
func Candidates(defaults []string, preferred string) []string {
	preferred = strings.TrimSpace(preferred)
	if preferred == "" {
		out := make([]string, len(defaults))
		copy(out, defaults)
		return out
	}

	out := make([]string, 0, len(defaults)+1)
	out = append(out, preferred)
	for _, m := range defaults {
		if m == preferred {
			continue
		}
		out = append(out, m)
	}
	return out
}

// RoutingDecision is the ordered candidate list chosen for one request
type RoutingDecision struct {
	RequestID  string    `json:"request_id,omitempty"`
	Preferred  string    `json:"preferred,omitempty"`
	Candidates []string  `json:"candidates"`
	Timestamp  time.Time `json:"timestamp"`
}

// RouteRequest makes a routing decision for a request
func (r *Router) RouteRequest(requestID, preferred string) *RoutingDecision {
	return &RoutingDecision{
		RequestID:  requestID,
		Preferred:  strings.TrimSpace(preferred),
		Candidates: Candidates(r.defaultModels, preferred),
		Timestamp:  r.nowFunc(),
	}
}

// ExecuteRequest validates the request and walks the candidate list. It
// returns the first usable completion, with Duration measured from the start
// of the call, or an *ExhaustedError once no candidate is left.
func (r *Router) ExecuteRequest(ctx context.Context, req models.ChatRequest) (*models.Completion, error) {
	start := r.nowFunc()

	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, ErrInvalidRequest
	}
	if !r.client.Configured() {
		return nil, ErrConfiguration
	}

	systemPrompt := BuildSystemPrompt(req.Persona)
	decision := r.RouteRequest(req.RequestID, req.PreferredModel)
	total := len(decision.Candidates)

	var lastErr, ctxErr error
	tried := 0
	deadlineHit := false

	for i, model := range decision.Candidates {
		if err := ctx.Err(); err != nil {
			ctxErr = err
			break
		}

		timeout := r.attemptTimeout
		if r.deadline > 0 {
			remaining := r.deadline - r.nowFunc().Sub(start)
			if remaining <= 0 {
				deadlineHit = true
				break
			}
			timeout = min(timeout, remaining)
		}

		tried++
		r.sink.Emit(Event{
			Kind:       AttemptStarted,
			RequestID:  req.RequestID,
			Model:      model,
			Attempt:    i + 1,
			Candidates: total,
			Time:       r.nowFunc(),
		})

		attemptStart := r.nowFunc()
		completion, err := r.tryCandidate(ctx, models.CompletionRequest{
			Model:        model,
			SystemPrompt: systemPrompt,
			UserPrompt:   prompt,
			Timeout:      timeout,
		})
		now := r.nowFunc()

		if err == nil {
			completion.Model = model
			completion.Duration = now.Sub(start)
			r.sink.Emit(Event{
				Kind:       AttemptSucceeded,
				RequestID:  req.RequestID,
				Model:      model,
				Attempt:    i + 1,
				Candidates: total,
				TokensUsed: completion.TokensUsed,
				Duration:   now.Sub(attemptStart),
				Time:       now,
			})
			return completion, nil
		}

		lastErr = err
		failure := asCompletionError(err)
		r.sink.Emit(Event{
			Kind:        AttemptFailed,
			RequestID:   req.RequestID,
			Model:       model,
			Attempt:     i + 1,
			Candidates:  total,
			FailureKind: failure.Kind,
			Message:     failure.Message,
			StatusCode:  failure.StatusCode,
			Duration:    now.Sub(attemptStart),
			Time:        now,
		})
	}

	if lastErr == nil {
		switch {
		case ctxErr != nil:
			lastErr = ctxErr
		case deadlineHit:
			lastErr = fmt.Errorf("fallback deadline of %s exceeded", r.deadline)
		default:
			lastErr = errors.New("no candidate models configured")
		}
	}

	// LastError reports the last provider failure; Err carries the
	// cancellation when the caller's context ended the walk.
	cause := lastErr
	if ctxErr != nil {
		cause = ctxErr
	}

	elapsed := r.nowFunc().Sub(start)
	exhausted := &ExhaustedError{
		Err:              cause,
		LastError:        asCompletionError(lastErr).Message,
		TriedModels:      tried,
		Duration:         elapsed,
		DeadlineExceeded: deadlineHit,
	}
	r.sink.Emit(Event{
		Kind:       AllFailed,
		RequestID:  req.RequestID,
		Attempt:    tried,
		Candidates: total,
		Message:    exhausted.LastError,
		Duration:   elapsed,
		Time:       r.nowFunc(),
	})

	return nil, exhausted
}

// tryCandidate runs one attempt and rejects blank replies
func (r *Router) tryCandidate(ctx context.Context, req models.CompletionRequest) (*models.Completion, error) {
	completion, err := r.client.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	if completion == nil || strings.TrimSpace(completion.Text) == "" {
		return nil, &models.CompletionError{
			Kind:    models.EmptyResponse,
			Message: "Empty response from model",
		}
	}
	return completion, nil
}

// asCompletionError extracts the typed failure, treating anything else as a
// transport problem
func asCompletionError(err error) *models.CompletionError {
	var ce *models.CompletionError
	if errors.As(err, &ce) {
		return ce
	}
	return &models.CompletionError{
		Kind:    models.NetworkError,
		Message: err.Error(),
	}
}
