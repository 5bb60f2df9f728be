package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"parallelyou/models"
)

// DefaultBaseURL is the OpenRouter OpenAI-compatible API root
const DefaultBaseURL = "https://openrouter.ai/api/v1"

// Sampling holds the generation parameters sent with every completion
type Sampling struct {
	Temperature      float32 `yaml:"temperature"`
	MaxTokens        int     `yaml:"max_tokens"`
	TopP             float32 `yaml:"top_p"`
	FrequencyPenalty float32 `yaml:"frequency_penalty"`
	PresencePenalty  float32 `yaml:"presence_penalty"`
}

// DefaultSampling returns the parameters tuned for short in-character replies
func DefaultSampling() Sampling {
	return Sampling{
		Temperature:      0.8,
		MaxTokens:        500,
		TopP:             0.9,
		FrequencyPenalty: 0.1,
		PresencePenalty:  0.1,
	}
}

// Config configures an OpenRouter client
type Config struct {
	BaseURL        string
	APIKey         string
	Referer        string // sent as HTTP-Referer
	Title          string // sent as X-Title
	Sampling       Sampling
	CatalogTimeout time.Duration

	// Transport overrides the underlying round tripper (tests).
	Transport http.RoundTripper
}

// attributionTransport adds the OpenRouter attribution headers to every request
type attributionTransport struct {
	base    http.RoundTripper
	referer string
	title   string
}

func (t *attributionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if t.referer != "" {
		req.Header.Set("HTTP-Referer", t.referer)
	}
	if t.title != "" {
		req.Header.Set("X-Title", t.title)
	}
	if t.base == nil {
		return http.DefaultTransport.RoundTrip(req)
	}
	return t.base.RoundTrip(req)
}

// OpenRouter performs single chat-completion attempts against an
// OpenAI-compatible endpoint. It never retries; fallback is the router's job.
type OpenRouter struct {
	client         *openai.Client
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	sampling       Sampling
	catalogTimeout time.Duration
	log            *logrus.Entry
}

// NewOpenRouter creates a client. An empty API key is accepted so the server
// can start and report the misconfiguration per request.
func NewOpenRouter(cfg Config) *OpenRouter {
	baseURL := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if cfg.CatalogTimeout <= 0 {
		cfg.CatalogTimeout = 10 * time.Second
	}

	httpClient := &http.Client{
		Transport: &attributionTransport{
			base:    cfg.Transport,
			referer: cfg.Referer,
			title:   cfg.Title,
		},
	}

	config := openai.DefaultConfig(cfg.APIKey)
	config.BaseURL = baseURL
	config.HTTPClient = httpClient

	return &OpenRouter{
		client:         openai.NewClientWithConfig(config),
		httpClient:     httpClient,
		baseURL:        baseURL,
		apiKey:         cfg.APIKey,
		sampling:       cfg.Sampling,
		catalogTimeout: cfg.CatalogTimeout,
		log:            logrus.WithField("component", "openrouter"),
	}
}

// Configured reports whether an API key is present
func (o *OpenRouter) Configured() bool {
	return strings.TrimSpace(o.apiKey) != ""
}

// BaseURL returns the API root requests are sent to
func (o *OpenRouter) BaseURL() string { return o.baseURL }

// Complete sends one chat completion for req.Model. Failures are always
// *models.CompletionError.
func (o *OpenRouter) Complete(ctx context.Context, req models.CompletionRequest) (*models.Completion, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	chatReq := openai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: req.UserPrompt},
		},
		Temperature:      o.sampling.Temperature,
		MaxTokens:        o.sampling.MaxTokens,
		TopP:             o.sampling.TopP,
		FrequencyPenalty: o.sampling.FrequencyPenalty,
		PresencePenalty:  o.sampling.PresencePenalty,
	}

	start := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		failure := classify(err)
		o.log.WithFields(logrus.Fields{
			"model":  req.Model,
			"kind":   failure.Kind,
			"status": failure.StatusCode,
		}).Debugf("completion failed: %s", failure.Message)
		return nil, failure
	}

	text := ""
	if len(resp.Choices) > 0 {
		text = strings.TrimSpace(resp.Choices[0].Message.Content)
	}
	if text == "" {
		return nil, &models.CompletionError{
			Kind:    models.EmptyResponse,
			Message: "Empty response from model",
		}
	}

	return &models.Completion{
		Text:       text,
		Model:      req.Model,
		TokensUsed: max(resp.Usage.TotalTokens, 0),
		Duration:   time.Since(start),
	}, nil
}

// classify maps a go-openai error to the failure taxonomy
func classify(err error) *models.CompletionError {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		msg := strings.TrimSpace(apiErr.Message)
		if msg == "" {
			msg = statusMessage(apiErr.HTTPStatusCode)
		}
		return &models.CompletionError{
			Kind:       models.ProviderError,
			Message:    msg,
			StatusCode: apiErr.HTTPStatusCode,
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &models.CompletionError{
			Kind:       models.ProviderError,
			Message:    statusMessage(reqErr.HTTPStatusCode),
			StatusCode: reqErr.HTTPStatusCode,
		}
	}

	return &models.CompletionError{
		Kind:    models.NetworkError,
		Message: err.Error(),
	}
}

func statusMessage(code int) string {
	return fmt.Sprintf("Request failed with status code %d", code)
}
