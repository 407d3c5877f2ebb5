// Package handler is the bot's HTTP surface: liveness endpoints for the hosting
// platform, Prometheus metrics and the authenticated staff dashboard.
package handler

import (
	"context"
	"net/http"
	"time"

	"helpdesk/backend/internal/dashboard"
	"helpdesk/backend/internal/logger"
	"helpdesk/backend/internal/metrics"
	"helpdesk/backend/internal/storage"

	"github.com/gin-gonic/gin"
)

const serviceName = "helpdesk-bot"

// StatsSource provides the dashboard statistics.
type StatsSource interface {
	Stats(ctx context.Context) (*storage.Stats, error)
}

// Handler holds the dashboard hub and what the endpoints report on.
type Handler struct {
	Hub     *dashboard.Hub
	stats   StatsSource
	secret  string
	metrics *metrics.Metrics
	log     *logger.Logger
	started time.Time
	now     func() time.Time
}

// NewHandler builds the handler. An empty secret disables /ws and /api.
func NewHandler(hub *dashboard.Hub, stats StatsSource, secret string, m *metrics.Metrics, log *logger.Logger) *Handler {
	return &Handler{
		Hub:     hub,
		stats:   stats,
		secret:  secret,
		metrics: m,
		log:     log.With("service", "http"),
		started: time.Now(),
		now:     time.Now,
	}
}

// Router registers every route on a new gin engine.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/", h.Home)
	r.HEAD("/", h.Home)
	r.GET("/health", h.Health)
	r.GET("/status", h.Status)
	if h.metrics != nil {
		r.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	}

	r.GET("/ws", h.ServeWebSocket)
	api := r.Group("/api", h.RequireToken)
	api.GET("/stats", h.Stats)
	return r
}

func (h *Handler) Home(c *gin.Context) {
	c.String(http.StatusOK, "Support bot is running ✅")
}

func (h *Handler) Health(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

func (h *Handler) Status(c *gin.Context) {
	now := h.now()
	c.JSON(http.StatusOK, gin.H{
		"status":         "online",
		"service":        serviceName,
		"uptime_seconds": int64(now.Sub(h.started).Seconds()),
		"timestamp":      now.Unix(),
	})
}

// Stats returns the same numbers as the owner's statistics button.
func (h *Handler) Stats(c *gin.Context) {
	st, err := h.stats.Stats(c.Request.Context())
	if err != nil {
		h.log.Error("failed to load stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load stats"})
		return
	}
	c.JSON(http.StatusOK, st)
}
