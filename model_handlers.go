package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"parallelyou/models"
	"parallelyou/providers"
	"parallelyou/routing"
)

// maxCatalogModels caps the live free models listed by /api/models
const maxCatalogModels = 20

// PersonaResponse for API responses
type PersonaResponse struct {
	Slug            string `json:"slug"`
	Name            string `json:"name"`
	Universe        string `json:"universe"`
	Description     string `json:"description"`
	Greeting        string `json:"greeting"`
	UniverseContext string `json:"universe_context,omitempty"`
}

func newPersonaResponse(p models.Persona) PersonaResponse {
	return PersonaResponse{
		Slug:            p.Slug(),
		Name:            p.Name,
		Universe:        p.Universe,
		Description:     p.Description,
		Greeting:        p.Greeting,
		UniverseContext: routing.UniverseContext(p.Universe),
	}
}

// handleModels handles GET /api/models. Catalog failures still answer 200
// with the configured list.
func (g *gateway) handleModels(c *gin.Context) {
	configured := g.router.DefaultModels()

	catalog, err := g.client.ListModels(c.Request.Context())
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"request_id": c.GetString("request_id"),
			"error":      err.Error(),
			"event":      "catalog_failed",
		}).Warn("Failed to fetch models")

		c.JSON(http.StatusOK, gin.H{
			"error":             "Could not fetch live models",
			"configured_models": configured,
			"fallback":          true,
		})
		return
	}

	free := providers.FreeModels(catalog, maxCatalogModels)
	c.JSON(http.StatusOK, gin.H{
		"free_models_available": len(free),
		"configured_models":     configured,
		"all_free_models":       free,
		"candidates":            g.stats.Snapshot(),
	})
}

// handlePersonas handles GET /api/personas
func (g *gateway) handlePersonas(c *gin.Context) {
	presets := g.personas.List()
	if universe := c.Query("universe"); universe != "" {
		presets = g.personas.GetByUniverse(universe)
	}

	out := make([]PersonaResponse, 0, len(presets))
	for _, p := range presets {
		out = append(out, newPersonaResponse(p))
	}
	c.JSON(http.StatusOK, gin.H{
		"object": "list",
		"data":   out,
	})
}

// handleGetPersona handles GET /api/personas/:name
func (g *gateway) handleGetPersona(c *gin.Context) {
	p, ok := g.personas.Get(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Persona not found"})
		return
	}
	c.JSON(http.StatusOK, newPersonaResponse(p))
}
