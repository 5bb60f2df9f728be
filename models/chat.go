package models

import (
	"strings"
	"time"
)

// Persona is the character profile a reply is written as
type Persona struct {
	Name        string `json:"name" yaml:"name"`
	Universe    string `json:"universe,omitempty" yaml:"universe"`
	Description string `json:"description,omitempty" yaml:"description"`
	Greeting    string `json:"greeting,omitempty" yaml:"greeting"`
}

// Slug returns the lower-cased, dash-joined persona name used to look up presets
func (p Persona) Slug() string {
	return strings.Join(strings.Fields(strings.ToLower(p.Name)), "-")
}

// ChatRequest is one inbound chat call from any transport
type ChatRequest struct {
	RequestID      string   `json:"-"`
	Transport      string   `json:"-"` // http, dns, ssh
	Prompt         string   `json:"prompt"`
	Persona        *Persona `json:"persona,omitempty"`
	PreferredModel string   `json:"model,omitempty"`
}

// PersonaName returns the persona name or "" when no persona was sent
func (r ChatRequest) PersonaName() string {
	if r.Persona == nil {
		return ""
	}
	return r.Persona.Name
}

// PersonaUniverse returns the persona universe or "" when absent
func (r ChatRequest) PersonaUniverse() string {
	if r.Persona == nil {
		return ""
	}
	return r.Persona.Universe
}

// CompletionRequest is a single attempt against one candidate model
type CompletionRequest struct {
	Model        string
	SystemPrompt string
	UserPrompt   string
	Timeout      time.Duration
}

// Completion is a successful reply
type Completion struct {
	Text       string        `json:"text"`
	Model      string        `json:"model_used"`
	TokensUsed int           `json:"tokens_used"`
	Duration   time.Duration `json:"-"`
}
