package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/jaipatel248/cric-alert/server/internal/engine"
	"github.com/jaipatel248/cric-alert/server/internal/monitor"
	"github.com/jaipatel248/cric-alert/server/internal/provider"
)

// Version is reported by GET /health.
const Version = "1.0.0"

// Monitors is the engine surface served by the alert endpoints.
type Monitors interface {
	Create(ctx context.Context, targetID, alertText string) (monitor.Monitor, error)
	Get(id string) (monitor.Monitor, error)
	List() []monitor.Monitor
	ListByTarget(targetID string) []monitor.Monitor
	Stop(ctx context.Context, id string) error
	Start(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	Running() int
}

// Matches fetches live match data for the match endpoints.
type Matches interface {
	Fetch(ctx context.Context, targetID string) (*provider.Snapshot, error)
}

// Streamer serves the per-monitor WebSocket stream.
type Streamer interface {
	ServeMonitor(w http.ResponseWriter, r *http.Request, id string)
}

// Options wires the handler's collaborators. Metrics, Stream and Auth are
// optional. Auth guards only the /api/v1 group.
type Options struct {
	Monitors       Monitors
	Matches        Matches
	Metrics        http.Handler
	Stream         Streamer
	Auth           gin.HandlerFunc
	AuthHeader     string
	AllowedOrigins []string
}

// Handler serves the REST API.
type Handler struct {
	monitors Monitors
	matches  Matches
	now      func() time.Time
}

// New returns the router with every route registered.
func New(opts Options) *gin.Engine {
	h := &Handler{monitors: opts.Monitors, matches: opts.Matches, now: time.Now}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	r.Use(cors.New(corsConfig(opts.AllowedOrigins, opts.AuthHeader)))

	r.GET("/health", h.health)
	r.GET("/ping", h.ping)
	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics))
	}
	if opts.Stream != nil {
		r.GET("/ws/:id", func(c *gin.Context) {
			opts.Stream.ServeMonitor(c.Writer, c.Request, c.Param("id"))
		})
	}

	v1 := r.Group("/api/v1")
	if opts.Auth != nil {
		v1.Use(opts.Auth)
	}
	{
		alerts := v1.Group("/alerts")
		{
			alerts.POST("", h.createAlert)
			alerts.GET("", h.listAlerts)
			alerts.GET("/:id", h.getAlert)
			alerts.PUT("/:id/stop", h.stopAlert)
			alerts.PUT("/:id/start", h.startAlert)
			alerts.DELETE("/:id/delete", h.deleteAlert)
		}

		matches := v1.Group("/matches")
		{
			matches.GET("/:id", h.matchStatus)
			matches.GET("/:id/detail", h.matchDetail)
			matches.GET("/:id/active", h.matchActive)
		}
	}
	return r
}

func corsConfig(origins []string, authHeader string) cors.Config {
	headers := []string{"Origin", "Content-Type", "Authorization"}
	if authHeader != "" {
		headers = append(headers, authHeader)
	}
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  headers,
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}

// requestLogger logs one line per request through slog.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		lvl := slog.LevelDebug
		if status >= http.StatusInternalServerError {
			lvl = slog.LevelError
		}
		slog.Log(c.Request.Context(), lvl, "api: request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"duration", time.Since(start),
		)
	}
}

// --- route handlers ---------------------------------------------------------

// health returns GET /health.
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:         "healthy",
		Timestamp:      h.now().UTC().Format(time.RFC3339),
		ActiveMonitors: h.monitors.Running(),
		Version:        Version,
	})
}

func (h *Handler) ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}

// createAlert returns POST /api/v1/alerts. The monitor is returned in
// INITIALIZING; rule parsing continues in the background.
func (h *Handler) createAlert(c *gin.Context) {
	var req CreateAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		jsonErr(c, http.StatusBadRequest, "invalid request: match_id and alert_text are required")
		return
	}

	m, err := h.monitors.Create(c.Request.Context(), string(req.MatchID), req.AlertText)
	if err != nil {
		h.fail(c, err, http.StatusConflict)
		return
	}
	c.JSON(http.StatusCreated, CreateAlertResponse{
		MonitorID: m.ID,
		MatchID:   m.TargetID,
		AlertText: m.AlertText,
		Rules:     m.Rules,
		Status:    m.Status,
		Message:   "Monitor created; parsing alert rules",
		CreatedAt: m.CreatedAt,
	})
}

// listAlerts returns GET /api/v1/alerts, optionally filtered by ?match_id=.
func (h *Handler) listAlerts(c *gin.Context) {
	var ms []monitor.Monitor
	if target := strings.TrimSpace(c.Query("match_id")); target != "" {
		ms = h.monitors.ListByTarget(target)
	} else {
		ms = h.monitors.List()
	}
	out := make([]engine.Summary, 0, len(ms))
	for _, m := range ms {
		out = append(out, engine.SummaryOf(m))
	}
	c.JSON(http.StatusOK, out)
}

// getAlert returns GET /api/v1/alerts/:id.
func (h *Handler) getAlert(c *gin.Context) {
	m, err := h.monitors.Get(c.Param("id"))
	if err != nil {
		h.fail(c, err, http.StatusConflict)
		return
	}
	c.JSON(http.StatusOK, engine.DetailOf(m))
}

// stopAlert returns PUT /api/v1/alerts/:id/stop.
func (h *Handler) stopAlert(c *gin.Context) {
	id := c.Param("id")
	if err := h.monitors.Stop(c.Request.Context(), id); err != nil {
		h.fail(c, err, http.StatusConflict)
		return
	}
	c.JSON(http.StatusOK, ActionResponse{MonitorID: id, Status: h.status(id, monitor.StatusStopped), Message: "Monitor stopped successfully"})
}

// startAlert returns PUT /api/v1/alerts/:id/start.
func (h *Handler) startAlert(c *gin.Context) {
	id := c.Param("id")
	if err := h.monitors.Start(c.Request.Context(), id); err != nil {
		h.fail(c, err, http.StatusBadRequest)
		return
	}
	c.JSON(http.StatusOK, ActionResponse{MonitorID: id, Status: h.status(id, monitor.StatusMonitoring), Message: "Monitor started successfully"})
}

// deleteAlert returns DELETE /api/v1/alerts/:id/delete.
func (h *Handler) deleteAlert(c *gin.Context) {
	id := c.Param("id")
	if err := h.monitors.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, err, http.StatusConflict)
		return
	}
	c.JSON(http.StatusOK, ActionResponse{MonitorID: id, Status: monitor.StatusDeleted, Message: "Monitor deleted successfully"})
}

// matchStatus returns GET /api/v1/matches/:id.
func (h *Handler) matchStatus(c *gin.Context) {
	snap, ok := h.fetch(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, snap.Summary())
}

// matchDetail returns GET /api/v1/matches/:id/detail.
func (h *Handler) matchDetail(c *gin.Context) {
	snap, ok := h.fetch(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, snap.Detail())
}

// matchActive returns GET /api/v1/matches/:id/active. A match without data
// is reported inactive.
func (h *Handler) matchActive(c *gin.Context) {
	id := c.Param("id")
	snap, err := h.matches.Fetch(c.Request.Context(), id)
	c.JSON(http.StatusOK, MatchActiveResponse{MatchID: id, IsActive: err == nil && !snap.Concluded})
}

// --- helpers ----------------------------------------------------------------

func (h *Handler) fetch(c *gin.Context) (*provider.Snapshot, bool) {
	id := c.Param("id")
	snap, err := h.matches.Fetch(c.Request.Context(), id)
	if err != nil {
		slog.Warn("api: match fetch failed", "target", id, "err", err)
		jsonErr(c, http.StatusNotFound, fmt.Sprintf("match %s not found or no data available", id))
		return nil, false
	}
	return snap, true
}

// status returns the monitor's current status, or fallback if it is gone.
func (h *Handler) status(id string, fallback monitor.Status) monitor.Status {
	if m, err := h.monitors.Get(id); err == nil {
		return m.Status
	}
	return fallback
}

// fail maps an engine error onto an HTTP status. transition is the code
// used for ErrInvalidTransition.
func (h *Handler) fail(c *gin.Context, err error, transition int) {
	switch {
	case errors.Is(err, engine.ErrNotFound):
		jsonErr(c, http.StatusNotFound, fmt.Sprintf("monitor %s not found", c.Param("id")))
	case errors.Is(err, engine.ErrTargetNotFound):
		jsonErr(c, http.StatusNotFound, err.Error())
	case errors.Is(err, engine.ErrInvalidTransition):
		jsonErr(c, transition, err.Error())
	case errors.Is(err, engine.ErrInvalidRequest):
		jsonErr(c, http.StatusBadRequest, err.Error())
	default:
		slog.Error("api: request failed", "path", c.FullPath(), "err", err)
		jsonErr(c, http.StatusInternalServerError, "internal error")
	}
}

func jsonErr(c *gin.Context, code int, msg string) {
	c.JSON(code, errorResponse{Error: msg})
}
