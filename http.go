package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"parallelyou/models"
	"parallelyou/routing"
)

const serviceVersion = "2.0.0"

var availableEndpoints = []string{
	"/api/health",
	"/api/ai",
	"/api/models",
	"/api/test",
	"/api/routing",
	"/api/history",
	"/api/personas",
}

// newHTTPHandler builds the gin engine serving the JSON API
func newHTTPHandler(g *gateway) *gin.Engine {
	r := gin.New()
	r.Use(
		requestIDMiddleware(),
		recoveryMiddleware(),
		loggingMiddleware(),
		corsMiddleware(g.cfg.Server.AllowedOrigins),
		bodyLimitMiddleware(g.cfg.Server.MaxBodyBytes),
	)

	r.GET("/", g.handleRoot)

	api := r.Group("/api")
	api.POST("/ai", rateLimitMiddleware(g.limiter), g.handleAI)
	api.GET("/health", g.handleHealth)
	api.GET("/test", g.handleTest)
	api.GET("/models", g.handleModels)
	api.GET("/routing", g.handleRouting)
	api.GET("/history", g.handleHistory)
	api.GET("/personas", g.handlePersonas)
	api.GET("/personas/:name", g.handleGetPersona)

	r.NoRoute(g.handleNotFound)
	return r
}

// requestIDMiddleware generates a unique ID for each request
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := newRequestID()
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// loggingMiddleware logs request start/end with timing
func loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetString("request_id")

		logrus.WithFields(logrus.Fields{
			"request_id": requestID,
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"event":      "started",
		}).Info("Request started")

		c.Next()

		logrus.WithFields(logrus.Fields{
			"request_id": requestID,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"event":      "completed",
		}).Info("Request completed")
	}
}

// recoveryMiddleware turns panics into a JSON 500
func recoveryMiddleware() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logrus.WithFields(logrus.Fields{
			"request_id": c.GetString("request_id"),
			"panic":      recovered,
			"event":      "panic",
		}).Error("Unhandled error")

		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})
}

// corsMiddleware allows the configured browser origins. Preflight requests
// end here with 204.
func corsMiddleware(origins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && slices.Contains(origins, origin) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Header("Vary", "Origin")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// bodyLimitMiddleware caps request bodies
func bodyLimitMiddleware(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

// rateLimitMiddleware rejects clients that exceed their token bucket
func rateLimitMiddleware(rl *rateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(c.ClientIP()) {
			logrus.WithFields(logrus.Fields{
				"request_id": c.GetString("request_id"),
				"client":     c.ClientIP(),
				"event":      "rate_limited",
			}).Warn("Rate limit exceeded")

			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many requests, please slow down",
			})
			return
		}
		c.Next()
	}
}

// aiRequest is the POST /api/ai body. Prompt stays raw so a non-string value
// can be reported back.
type aiRequest struct {
	Prompt  json.RawMessage `json:"prompt"`
	Persona *models.Persona `json:"persona"`
	Model   json.RawMessage `json:"model"`
}

// preferredModel reads the optional model field. Anything but a string means
// no preference.
func preferredModel(raw json.RawMessage) string {
	var model string
	if jsonType(raw) != "string" || json.Unmarshal(raw, &model) != nil {
		return ""
	}
	return model
}

// jsonType names a raw JSON value the way a JavaScript client would see it
func jsonType(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "undefined"
	}
	switch raw[0] {
	case '"':
		return "string"
	case '{', '[', 'n':
		return "object"
	case 't', 'f':
		return "boolean"
	default:
		return "number"
	}
}

func invalidPrompt(c *gin.Context, received string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":    "Valid prompt is required",
		"received": received,
	})
}

// handleAI handles POST /api/ai
func (g *gateway) handleAI(c *gin.Context) {
	requestID := c.GetString("request_id")

	var body aiRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Request body too large"})
			return
		}

		if errors.Is(err, io.EOF) {
			invalidPrompt(c, "undefined")
			return
		}

		logrus.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
			"event":      "parse_error",
		}).Warn("Failed to parse request body")

		invalidPrompt(c, "invalid JSON")
		return
	}

	received := jsonType(body.Prompt)
	if received != "string" {
		invalidPrompt(c, received)
		return
	}
	var prompt string
	if err := json.Unmarshal(body.Prompt, &prompt); err != nil {
		invalidPrompt(c, received)
		return
	}

	req := models.ChatRequest{
		RequestID:      requestID,
		Transport:      "http",
		Prompt:         prompt,
		Persona:        body.Persona,
		PreferredModel: preferredModel(body.Model),
	}

	completion, err := g.chat(c.Request.Context(), req)
	if err != nil {
		writeChatError(c, err, received)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"response": completion.Text,
		"metadata": gin.H{
			"model_used":  completion.Model,
			"tokens_used": completion.TokensUsed,
			"duration_ms": completion.Duration.Milliseconds(),
			"universe":    nullable(req.PersonaUniverse()),
			"character":   nullable(req.PersonaName()),
		},
	})
}

// writeChatError maps router errors to the API's status codes
func writeChatError(c *gin.Context, err error, received string) {
	var exhausted *routing.ExhaustedError
	switch {
	case errors.Is(err, routing.ErrInvalidRequest):
		invalidPrompt(c, received)
	case errors.Is(err, routing.ErrConfiguration):
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Server configuration error: Missing API key",
		})
	case errors.As(err, &exhausted):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "All AI models are currently unavailable",
			"details": gin.H{
				"last_error":   exhausted.LastError,
				"tried_models": exhausted.TriedModels,
				"duration_ms":  exhausted.Duration.Milliseconds(),
			},
			"suggestion": "Please try again in a few moments",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// nullable renders "" as JSON null
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// handleRoot serves the service banner
func (g *gateway) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "Parallel You AI Server",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   serviceVersion,
		"endpoints": gin.H{
			"health":   "/api/health",
			"ai":       "/api/ai",
			"models":   "/api/models",
			"test":     "/api/test",
			"routing":  "/api/routing",
			"history":  "/api/history",
			"personas": "/api/personas",
		},
	})
}

// handleHealth provides a health check endpoint
func (g *gateway) handleHealth(c *gin.Context) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	health := gin.H{
		"status":    "Server Online",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(g.started).Seconds(),
		"memory": gin.H{
			"alloc":       mem.Alloc,
			"total_alloc": mem.TotalAlloc,
			"sys":         mem.Sys,
			"heap_inuse":  mem.HeapInuse,
			"num_gc":      mem.NumGC,
			"goroutines":  runtime.NumGoroutine(),
		},
	}
	for k, v := range g.status() {
		health[k] = v
	}
	c.JSON(http.StatusOK, health)
}

// handleTest is a liveness probe
func (g *gateway) handleTest(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":   "AI Backend is working!",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"test":      "success",
	})
}

// handleHistory returns the newest audit entries, optionally for one persona
func (g *gateway) handleHistory(c *gin.Context) {
	if g.audit == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Audit log is disabled"})
		return
	}

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
			return
		}
		limit = n
	}

	entries, err := g.audit.History(c.Request.Context(), strings.TrimSpace(c.Query("persona")), limit)
	if err != nil {
		logrus.WithError(err).WithField("request_id", c.GetString("request_id")).Error("History query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not read history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":   len(entries),
		"entries": entries,
	})
}

// handleNotFound lists the endpoints that do exist
func (g *gateway) handleNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"error":               "Endpoint not found",
		"available_endpoints": availableEndpoints,
	})
}
