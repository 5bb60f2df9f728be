package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"parallelyou/models"
)

// routingEntry is one row of the routing table
type routingEntry struct {
	Position int                     `json:"position"`
	Model    string                  `json:"model"`
	Stats    *models.CandidateStatus `json:"stats,omitempty"`
}

// handleRouting shows the candidate order a request with ?model=X would
// walk, with the observed statistics for each candidate
func (g *gateway) handleRouting(c *gin.Context) {
	decision := g.router.RouteRequest(c.GetString("request_id"), c.Query("model"))

	table := make([]routingEntry, 0, len(decision.Candidates))
	for i, m := range decision.Candidates {
		entry := routingEntry{Position: i + 1, Model: m}
		if st, ok := g.stats.Get(m); ok {
			entry.Stats = &st
		}
		table = append(table, entry)
	}

	c.JSON(http.StatusOK, gin.H{
		"timestamp":       decision.Timestamp.Unix(),
		"preferred":       decision.Preferred,
		"candidates":      decision.Candidates,
		"routing_table":   table,
		"attempt_timeout": g.cfg.AttemptTimeout().String(),
		"deadline":        g.cfg.FallbackDeadline().String(),
		"audit_enabled":   g.audit != nil,
	})
}
