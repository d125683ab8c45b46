package health

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/cartelera-live/cartelera/internal/metrics"
	"github.com/cartelera-live/cartelera/internal/storage"
)

// Status classifies how the node is doing.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// ComponentStatus reports one subsystem.
type ComponentStatus struct {
	Name    string         `json:"name"`
	Status  Status         `json:"status"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Response is the full health report served at /health.
type Response struct {
	Status     Status             `json:"status"`
	Timestamp  time.Time          `json:"timestamp"`
	Version    string             `json:"version"`
	Uptime     string             `json:"uptime"`
	Components []*ComponentStatus `json:"components"`
}

// Checker aggregates per-subsystem probes into one report.
type Checker struct {
	db        *storage.DB
	log       *zap.Logger
	startTime time.Time
	version   string
	maxConns  int
}

func NewChecker(db *storage.DB, log *zap.Logger, version string, maxConns int) *Checker {
	return &Checker{
		db:        db,
		log:       log.Named("health"),
		startTime: time.Now(),
		version:   version,
		maxConns:  maxConns,
	}
}

// Check runs every probe and rolls up the overall status.
func (c *Checker) Check(ctx context.Context) *Response {
	components := []*ComponentStatus{
		c.checkDatabase(ctx),
		c.checkConnections(),
		c.checkMemory(),
	}

	overall := StatusHealthy
	for _, comp := range components {
		switch comp.Status {
		case StatusUnhealthy:
			overall = StatusUnhealthy
		case StatusDegraded:
			if overall == StatusHealthy {
				overall = StatusDegraded
			}
		}
	}

	return &Response{
		Status:     overall,
		Timestamp:  time.Now(),
		Version:    c.version,
		Uptime:     time.Since(c.startTime).Round(time.Second).String(),
		Components: components,
	}
}

func (c *Checker) checkDatabase(ctx context.Context) *ComponentStatus {
	comp := &ComponentStatus{Name: "database", Status: StatusHealthy}
	if c.db == nil {
		comp.Status = StatusUnhealthy
		comp.Message = "database not configured"
		return comp
	}
	if err := c.db.Ping(ctx); err != nil {
		comp.Status = StatusUnhealthy
		comp.Message = err.Error()
		return comp
	}
	stats := c.db.Stats()
	comp.Details = map[string]any{
		"total_conns":    stats.TotalConns(),
		"idle_conns":     stats.IdleConns(),
		"acquired_conns": stats.AcquiredConns(),
		"max_conns":      stats.MaxConns(),
	}
	if stats.MaxConns() > 0 && stats.AcquiredConns() >= stats.MaxConns() {
		comp.Status = StatusDegraded
		comp.Message = "connection pool exhausted"
	}
	return comp
}

func (c *Checker) checkConnections() *ComponentStatus {
	comp := &ComponentStatus{Name: "websocket_connections", Status: StatusHealthy}
	active := metrics.GetActiveConnectionsCount()
	comp.Details = map[string]any{
		"active": active,
		"max":    c.maxConns,
	}
	if c.maxConns > 0 {
		switch {
		case active >= int64(c.maxConns):
			comp.Status = StatusUnhealthy
			comp.Message = "connection limit reached"
		case active >= int64(c.maxConns)*9/10:
			comp.Status = StatusDegraded
			comp.Message = "approaching connection limit"
		}
	}
	return comp
}

func (c *Checker) checkMemory() *ComponentStatus {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	comp := &ComponentStatus{
		Name:   "memory",
		Status: StatusHealthy,
		Details: map[string]any{
			"alloc_mb":   m.Alloc / 1024 / 1024,
			"sys_mb":     m.Sys / 1024 / 1024,
			"goroutines": runtime.NumGoroutine(),
			"gc_cycles":  m.NumGC,
		},
	}
	return comp
}

// Handler serves the report as JSON. Unhealthy maps to 503 so load
// balancers can act on it; degraded still answers 200.
func (c *Checker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		resp := c.Check(ctx)
		status := http.StatusOK
		if resp.Status == StatusUnhealthy {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			c.log.Error("encoding health response failed", zap.Error(err))
		}
	})
}
