package routing_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"parallelyou/models"
	"parallelyou/routing"
	"parallelyou/routing/mocks"
)

var defaultModels = []string{
	"deepseek/deepseek-r1:free",
	"z-ai/glm-4.5-air:free",
	"qwen/qwen3-coder:free",
	"mistralai/mistral-7b-instruct:free",
	"google/gemma-7b-it:free",
}

// fakeClock only moves when a test advances it.
type fakeClock struct {
	now time.Time
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// modelMatcher matches a CompletionRequest by its Model field.
type modelMatcher string

func modelIs(model string) gomock.Matcher { return modelMatcher(model) }

func (m modelMatcher) String() string { return "request for model " + string(m) }

func (m modelMatcher) Matches(x any) bool {
	r, ok := x.(models.CompletionRequest)
	return ok && r.Model == string(m)
}

type recordingSink struct {
	events []routing.Event
}

func (s *recordingSink) Emit(e routing.Event) { s.events = append(s.events, e) }

func (s *recordingSink) kinds() []routing.EventKind {
	out := make([]routing.EventKind, len(s.events))
	for i, e := range s.events {
		out[i] = e.Kind
	}
	return out
}

func newRouter(t *testing.T, opts routing.Options) (*routing.Router, *mocks.MockCompleter, *fakeClock) {
	t.Helper()

	ctrl := gomock.NewController(t)
	client := mocks.NewMockCompleter(ctrl)

	if opts.DefaultModels == nil {
		opts.DefaultModels = defaultModels
	}
	r := routing.NewRouter(client, opts)
	clock := newClock()
	r.SetNowFunc(clock.Now)

	return r, client, clock
}

func fail(kind models.FailureKind, msg string, status int) error {
	return &models.CompletionError{Kind: kind, Message: msg, StatusCode: status}
}

func TestCandidates(t *testing.T) {
	tests := []struct {
		name      string
		preferred string
		want      []string
	}{
		{
			name: "no preferred model keeps defaults verbatim",
			want: defaultModels,
		},
		{
			name:      "blank preferred model keeps defaults verbatim",
			preferred: "   ",
			want:      defaultModels,
		},
		{
			name:      "unknown preferred model is prepended",
			preferred: "foo/bar",
			want:      append([]string{"foo/bar"}, defaultModels...),
		},
		{
			name:      "known preferred model moves to the front once",
			preferred: "qwen/qwen3-coder:free",
			want: []string{
				"qwen/qwen3-coder:free",
				"deepseek/deepseek-r1:free",
				"z-ai/glm-4.5-air:free",
				"mistralai/mistral-7b-instruct:free",
				"google/gemma-7b-it:free",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := routing.Candidates(defaultModels, tt.preferred)
			assert.Equal(t, tt.want, got)

			seen := map[string]bool{}
			for _, m := range got {
				assert.False(t, seen[m], "duplicate candidate %s", m)
				seen[m] = true
			}
		})
	}
}

func TestCandidatesDoesNotAliasDefaults(t *testing.T) {
	defaults := []string{"a", "b"}
	got := routing.Candidates(defaults, "")
	got[0] = "changed"
	assert.Equal(t, "a", defaults[0])
}

func TestNewRouterCopiesDefaults(t *testing.T) {
	defaults := []string{"a", "b"}
	r, _, _ := newRouter(t, routing.Options{DefaultModels: defaults})
	defaults[0] = "changed"

	assert.Equal(t, []string{"a", "b"}, r.DefaultModels())
	assert.Equal(t, []string{"x", "a", "b"}, r.RouteRequest("req_1", "x").Candidates)
}

func TestExecuteRequest_FirstCandidateSucceeds(t *testing.T) {
	r, client, clock := newRouter(t, routing.Options{})

	client.EXPECT().Configured().Return(true)
	client.EXPECT().
		Complete(gomock.Any(), modelIs(defaultModels[0])).
		DoAndReturn(func(_ context.Context, req models.CompletionRequest) (*models.Completion, error) {
			assert.Equal(t, "Hello", req.UserPrompt)
			assert.Contains(t, req.SystemPrompt, "You are Zed from Cyber Haven.")
			assert.Equal(t, 30*time.Second, req.Timeout)
			clock.Advance(120 * time.Millisecond)
			return &models.Completion{Text: "Hi there!", TokensUsed: 42}, nil
		})

	got, err := r.ExecuteRequest(context.Background(), models.ChatRequest{
		Prompt:  "Hello",
		Persona: &models.Persona{Name: "Zed", Universe: "Cyber Haven"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hi there!", got.Text)
	assert.Equal(t, defaultModels[0], got.Model)
	assert.Equal(t, 42, got.TokensUsed)
	assert.Equal(t, 120*time.Millisecond, got.Duration)
}

func TestExecuteRequest_PreferredModelFailsThenDefaultSucceeds(t *testing.T) {
	r, client, clock := newRouter(t, routing.Options{})

	client.EXPECT().Configured().Return(true)
	gomock.InOrder(
		client.EXPECT().
			Complete(gomock.Any(), modelIs("foo/bar")).
			DoAndReturn(func(context.Context, models.CompletionRequest) (*models.Completion, error) {
				clock.Advance(200 * time.Millisecond)
				return nil, fail(models.ProviderError, "model not found", 404)
			}),
		client.EXPECT().
			Complete(gomock.Any(), modelIs(defaultModels[0])).
			DoAndReturn(func(context.Context, models.CompletionRequest) (*models.Completion, error) {
				clock.Advance(300 * time.Millisecond)
				return &models.Completion{Text: "Greetings."}, nil
			}),
	)

	got, err := r.ExecuteRequest(context.Background(), models.ChatRequest{
		Prompt:         "Hello",
		PreferredModel: "foo/bar",
	})
	require.NoError(t, err)
	assert.Equal(t, defaultModels[0], got.Model)
	assert.Equal(t, 500*time.Millisecond, got.Duration, "duration covers every attempt")
}

func TestExecuteRequest_StopsAtFirstSuccess(t *testing.T) {
	r, client, _ := newRouter(t, routing.Options{})

	client.EXPECT().Configured().Return(true)
	gomock.InOrder(
		client.EXPECT().Complete(gomock.Any(), modelIs(defaultModels[0])).
			Return(nil, fail(models.NetworkError, "dial tcp: timeout", 0)).Times(1),
		client.EXPECT().Complete(gomock.Any(), modelIs(defaultModels[1])).
			Return(nil, fail(models.EmptyResponse, "Empty response from model", 0)).Times(1),
		client.EXPECT().Complete(gomock.Any(), modelIs(defaultModels[2])).
			Return(&models.Completion{Text: "third time lucky"}, nil).Times(1),
	)
	// defaultModels[3:] carry no expectation: calling them fails the test.

	got, err := r.ExecuteRequest(context.Background(), models.ChatRequest{Prompt: "Hi"})
	require.NoError(t, err)
	assert.Equal(t, defaultModels[2], got.Model)
}

func TestExecuteRequest_AllCandidatesFail(t *testing.T) {
	r, client, clock := newRouter(t, routing.Options{})

	client.EXPECT().Configured().Return(true)
	calls := []string{}
	client.EXPECT().
		Complete(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req models.CompletionRequest) (*models.Completion, error) {
			calls = append(calls, req.Model)
			clock.Advance(time.Second)
			return nil, fail(models.ProviderError, "upstream said no to "+req.Model, 503)
		}).
		Times(len(defaultModels))

	_, err := r.ExecuteRequest(context.Background(), models.ChatRequest{Prompt: "Hi"})
	require.Error(t, err)

	var exhausted *routing.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, len(defaultModels), exhausted.TriedModels)
	assert.Equal(t, "upstream said no to "+defaultModels[len(defaultModels)-1], exhausted.LastError)
	assert.Equal(t, time.Duration(len(defaultModels))*time.Second, exhausted.Duration)
	assert.False(t, exhausted.DeadlineExceeded)
	assert.Equal(t, defaultModels, calls, "attempts follow the candidate order")
}

func TestExecuteRequest_InvalidPromptSkipsProvider(t *testing.T) {
	for _, prompt := range []string{"", "   ", "\n\t"} {
		t.Run(fmt.Sprintf("%q", prompt), func(t *testing.T) {
			r, _, _ := newRouter(t, routing.Options{})
			// No expectations: any call on the client fails the test.

			_, err := r.ExecuteRequest(context.Background(), models.ChatRequest{Prompt: prompt})
			assert.ErrorIs(t, err, routing.ErrInvalidRequest)
		})
	}
}

func TestExecuteRequest_MissingCredential(t *testing.T) {
	r, client, _ := newRouter(t, routing.Options{})
	client.EXPECT().Configured().Return(false)

	_, err := r.ExecuteRequest(context.Background(), models.ChatRequest{Prompt: "Hi"})
	assert.ErrorIs(t, err, routing.ErrConfiguration)
}

func TestExecuteRequest_BlankReplyFallsThrough(t *testing.T) {
	sink := &recordingSink{}
	r, client, _ := newRouter(t, routing.Options{DefaultModels: []string{"a", "b"}, Sink: sink})

	client.EXPECT().Configured().Return(true)
	gomock.InOrder(
		client.EXPECT().Complete(gomock.Any(), modelIs("a")).Return(&models.Completion{Text: "  \n"}, nil),
		client.EXPECT().Complete(gomock.Any(), modelIs("b")).Return(&models.Completion{Text: "ok"}, nil),
	)

	got, err := r.ExecuteRequest(context.Background(), models.ChatRequest{Prompt: "Hi"})
	require.NoError(t, err)
	assert.Equal(t, "b", got.Model)

	require.Len(t, sink.events, 4)
	assert.Equal(t, models.EmptyResponse, sink.events[1].FailureKind)
}

func TestExecuteRequest_TrimsPrompt(t *testing.T) {
	r, client, _ := newRouter(t, routing.Options{DefaultModels: []string{"a"}})

	client.EXPECT().Configured().Return(true)
	client.EXPECT().
		Complete(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req models.CompletionRequest) (*models.Completion, error) {
			assert.Equal(t, "what is the void?", req.UserPrompt)
			return &models.Completion{Text: "everything"}, nil
		})

	_, err := r.ExecuteRequest(context.Background(), models.ChatRequest{Prompt: "  what is the void?\n"})
	require.NoError(t, err)
}

func TestExecuteRequest_DeadlineStopsEarly(t *testing.T) {
	r, client, clock := newRouter(t, routing.Options{Deadline: 250 * time.Millisecond})

	client.EXPECT().Configured().Return(true)
	var timeouts []time.Duration
	client.EXPECT().
		Complete(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req models.CompletionRequest) (*models.Completion, error) {
			timeouts = append(timeouts, req.Timeout)
			clock.Advance(100 * time.Millisecond)
			return nil, fail(models.NetworkError, "slow "+req.Model, 0)
		}).
		Times(3)

	_, err := r.ExecuteRequest(context.Background(), models.ChatRequest{Prompt: "Hi"})

	var exhausted *routing.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.True(t, exhausted.DeadlineExceeded)
	assert.Equal(t, 3, exhausted.TriedModels)
	assert.Equal(t, "slow "+defaultModels[2], exhausted.LastError)
	assert.Equal(t, []time.Duration{250 * time.Millisecond, 150 * time.Millisecond, 50 * time.Millisecond}, timeouts)
}

func TestExecuteRequest_CancelledContext(t *testing.T) {
	r, client, _ := newRouter(t, routing.Options{})
	client.EXPECT().Configured().Return(true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.ExecuteRequest(ctx, models.ChatRequest{Prompt: "Hi"})

	var exhausted *routing.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Zero(t, exhausted.TriedModels)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestExecuteRequest_CancelKeepsLastProviderMessage(t *testing.T) {
	r, client, _ := newRouter(t, routing.Options{})
	client.EXPECT().Configured().Return(true)

	ctx, cancel := context.WithCancel(context.Background())
	client.EXPECT().Complete(gomock.Any(), modelIs(defaultModels[0])).
		DoAndReturn(func(context.Context, models.CompletionRequest) (*models.Completion, error) {
			cancel()
			return nil, fail(models.ProviderError, "upstream overloaded", 503)
		})

	_, err := r.ExecuteRequest(ctx, models.ChatRequest{Prompt: "Hi"})

	var exhausted *routing.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 1, exhausted.TriedModels)
	assert.Equal(t, "upstream overloaded", exhausted.LastError)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestExecuteRequest_UntypedErrorsCountAsNetwork(t *testing.T) {
	sink := &recordingSink{}
	ctrl := gomock.NewController(t)
	client := mocks.NewMockCompleter(ctrl)
	r := routing.NewRouter(client, routing.Options{DefaultModels: []string{"a"}, Sink: sink})

	client.EXPECT().Configured().Return(true)
	client.EXPECT().Complete(gomock.Any(), gomock.Any()).Return(nil, errors.New("boom"))

	_, err := r.ExecuteRequest(context.Background(), models.ChatRequest{Prompt: "Hi"})
	require.Error(t, err)

	require.Len(t, sink.events, 3)
	assert.Equal(t, models.NetworkError, sink.events[1].FailureKind)
	assert.Equal(t, "boom", sink.events[1].Message)
}

func TestExecuteRequest_EmitsEvents(t *testing.T) {
	sink := &recordingSink{}
	ctrl := gomock.NewController(t)
	client := mocks.NewMockCompleter(ctrl)
	r := routing.NewRouter(client, routing.Options{DefaultModels: []string{"a", "b"}, Sink: sink})

	client.EXPECT().Configured().Return(true)
	gomock.InOrder(
		client.EXPECT().Complete(gomock.Any(), modelIs("a")).Return(nil, fail(models.ProviderError, "nope", 429)),
		client.EXPECT().Complete(gomock.Any(), modelIs("b")).Return(&models.Completion{Text: "yes", TokensUsed: 7}, nil),
	)

	_, err := r.ExecuteRequest(context.Background(), models.ChatRequest{RequestID: "req_abc", Prompt: "Hi"})
	require.NoError(t, err)

	assert.Equal(t, []routing.EventKind{
		routing.AttemptStarted,
		routing.AttemptFailed,
		routing.AttemptStarted,
		routing.AttemptSucceeded,
	}, sink.kinds())

	failed := sink.events[1]
	assert.Equal(t, "req_abc", failed.RequestID)
	assert.Equal(t, "a", failed.Model)
	assert.Equal(t, 1, failed.Attempt)
	assert.Equal(t, 2, failed.Candidates)
	assert.Equal(t, 429, failed.StatusCode)

	succeeded := sink.events[3]
	assert.Equal(t, "b", succeeded.Model)
	assert.Equal(t, 2, succeeded.Attempt)
	assert.Equal(t, 7, succeeded.TokensUsed)
}

func TestExecuteRequest_EmitsAllFailed(t *testing.T) {
	sink := &recordingSink{}
	ctrl := gomock.NewController(t)
	client := mocks.NewMockCompleter(ctrl)
	r := routing.NewRouter(client, routing.Options{DefaultModels: []string{"a"}, Sink: sink})

	client.EXPECT().Configured().Return(true)
	client.EXPECT().Complete(gomock.Any(), gomock.Any()).Return(nil, fail(models.ProviderError, "nope", 500))

	_, err := r.ExecuteRequest(context.Background(), models.ChatRequest{Prompt: "Hi"})
	require.Error(t, err)

	last := sink.events[len(sink.events)-1]
	assert.Equal(t, routing.AllFailed, last.Kind)
	assert.Equal(t, 1, last.Attempt)
	assert.Equal(t, "nope", last.Message)
}

func TestExecuteRequest_IndependentInvocations(t *testing.T) {
	r, client, _ := newRouter(t, routing.Options{DefaultModels: []string{"a"}})

	client.EXPECT().Configured().Return(true).Times(2)
	client.EXPECT().Complete(gomock.Any(), modelIs("a")).Return(&models.Completion{Text: "one"}, nil)
	client.EXPECT().Complete(gomock.Any(), modelIs("a")).Return(&models.Completion{Text: "two"}, nil)

	first, err := r.ExecuteRequest(context.Background(), models.ChatRequest{Prompt: "Hi"})
	require.NoError(t, err)
	second, err := r.ExecuteRequest(context.Background(), models.ChatRequest{Prompt: "Hi"})
	require.NoError(t, err)

	assert.Equal(t, "one", first.Text)
	assert.Equal(t, "two", second.Text)
}

func TestExecuteRequest_NoCandidates(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockCompleter(ctrl)
	r := routing.NewRouter(client, routing.Options{})

	client.EXPECT().Configured().Return(true)

	_, err := r.ExecuteRequest(context.Background(), models.ChatRequest{Prompt: "Hi"})

	var exhausted *routing.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Zero(t, exhausted.TriedModels)
	assert.Equal(t, "no candidate models configured", exhausted.LastError)
}
