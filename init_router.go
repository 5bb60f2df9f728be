package main

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"parallelyou/audit"
	"parallelyou/config"
	"parallelyou/models"
	"parallelyou/providers"
	"parallelyou/routing"
)

// completionClient is the provider surface the gateway needs: completions for
// the router plus the live catalog for /api/models
type completionClient interface {
	routing.Completer
	ListModels(ctx context.Context) ([]providers.ModelInfo, error)
}

// gateway ties the router to its transports
type gateway struct {
	cfg      *config.Config
	client   completionClient
	router   *routing.Router
	stats    *routing.Stats
	personas *models.PersonaRegistry
	audit    *audit.Store // nil when disabled
	limiter  *rateLimiter
	started  time.Time
}

// newGateway builds the provider, router and optional audit store from
// configuration
func newGateway(cfg *config.Config) (*gateway, error) {
	var store *audit.Store
	if cfg.Audit.Enabled {
		var err error
		store, err = audit.Open(cfg.Audit.Path, audit.NewTokenCounter())
		if err != nil {
			return nil, err
		}
	}

	g := assembleGateway(cfg, config.BuildProvider(cfg), store)
	logInitSummary(g)
	return g, nil
}

// assembleGateway wires a gateway around an existing client
func assembleGateway(cfg *config.Config, client completionClient, store *audit.Store) *gateway {
	stats := routing.NewStats(cfg.Fallback.Models...)
	sink := routing.Sinks{stats, newEventLogger(logrus.StandardLogger())}

	return &gateway{
		cfg:      cfg,
		client:   client,
		router:   config.BuildRouter(cfg, client, sink),
		stats:    stats,
		personas: config.BuildPersonas(cfg),
		audit:    store,
		limiter:  newRateLimiter(cfg.Server.RateLimit.RequestsPerMinute, cfg.Server.RateLimit.Burst),
		started:  time.Now(),
	}
}

// Close releases the audit database
func (g *gateway) Close() error {
	if g.audit == nil {
		return nil
	}
	return g.audit.Close()
}

func logInitSummary(g *gateway) {
	logrus.WithFields(logrus.Fields{
		"models":        len(g.router.DefaultModels()),
		"personas":      len(g.personas.List()),
		"api_key":       keyStatus(g.client.Configured()),
		"audit_enabled": g.audit != nil,
		"deadline":      g.cfg.FallbackDeadline().String(),
	}).Info("Gateway initialized")

	for i, m := range g.router.DefaultModels() {
		logrus.WithFields(logrus.Fields{"position": i + 1, "model": m}).Debug("Fallback candidate")
	}
}

// status summarises the gateway for /api/health
func (g *gateway) status() map[string]interface{} {
	return map[string]interface{}{
		"available_models": len(g.router.DefaultModels()),
		"openrouter_key":   keyStatus(g.client.Configured()),
		"audit_enabled":    g.audit != nil,
		"rate_limited":     g.limiter != nil,
		"tracked_clients":  g.limiter.size(),
		"candidates":       g.stats.Snapshot(),
	}
}

func keyStatus(configured bool) string {
	if configured {
		return "Configured"
	}
	return "Missing"
}
