// Package admin exposes the AdminSurface: read endpoints to inspect queue
// stats, cache state, and backend health, and write endpoints to reconfigure
// a model's limits, reset its counters, and flush the scan cache. Every
// mutation is audited via eventsink after it is applied.
package admin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gopkg.in/yaml.v3"

	"github.com/sentrygate/gateway/internal/backend"
	"github.com/sentrygate/gateway/internal/concurrency"
	"github.com/sentrygate/gateway/internal/eventsink"
	"github.com/sentrygate/gateway/internal/scancache"
)

// Handlers bundles the dependencies the AdminSurface reports on or mutates.
type Handlers struct {
	Concurrency  *concurrency.Manager
	Cache        scancache.Backend
	Backends     *backend.Pool
	Sink         eventsink.Sink
	ScannerNames func() []string // input+output scanner names, for /admin/scanners
	StartedAt    time.Time
}

// New builds a Handlers bundle.
func New(mgr *concurrency.Manager, cache scancache.Backend, pool *backend.Pool, sink eventsink.Sink, scannerNames func() []string) *Handlers {
	return &Handlers{
		Concurrency:  mgr,
		Cache:        cache,
		Backends:     pool,
		Sink:         sink,
		ScannerNames: scannerNames,
		StartedAt:    time.Now(),
	}
}

// Register wires every AdminSurface route onto g.
func (h *Handlers) Register(g gin.IRouter) {
	g.GET("/health", h.Health)
	g.GET("/config", h.ConfigSummary)
	g.GET("/queue/stats", h.QueueStats)
	g.GET("/queue/memory", h.QueueMemory)
	g.POST("/admin/queue/reset", h.ResetQueue)
	g.POST("/admin/queue/update", h.UpdateQueue)
	g.POST("/admin/cache/clear", h.ClearCache)
	g.GET("/admin/scanners", h.ListScanners)
	g.GET("/admin/backends", h.ListBackends)
}

// Health reports basic liveness and uptime.
// GET /health
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime_sec": int(time.Since(h.StartedAt).Seconds()),
	})
}

// configSummary is the shape returned by GET /config, as either JSON or
// YAML depending on the format query parameter — operators diffing a
// running config against a sentrygate.yaml on disk want the same shape.
type configSummary struct {
	Backends     []string `json:"backends" yaml:"backends"`
	CacheEnabled bool     `json:"cache_enabled" yaml:"cache_enabled"`
	Scanners     []string `json:"scanners" yaml:"scanners"`
}

// ConfigSummary reports a safe view of the running configuration: backend
// names, whether a cache is configured, and scanner names; no limits and
// never secrets (backend URLs may carry auth in path/query in
// some deployments, so only target names are exposed here). Pass
// ?format=yaml to get the same shape rendered as YAML, matching the
// on-disk config format.
// GET /config[?format=yaml]
func (h *Handlers) ConfigSummary(c *gin.Context) {
	names := make([]string, 0)
	for _, s := range h.Backends.ListStatus() {
		names = append(names, s.Name)
	}
	summary := configSummary{
		Backends:     names,
		CacheEnabled: h.Cache != nil,
		Scanners:     h.ScannerNames(),
	}

	if c.Query("format") == "yaml" {
		out, err := yaml.Marshal(summary)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "message": err.Error()})
			return
		}
		c.Data(http.StatusOK, "application/yaml", out)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// QueueStats reports one model's admission stats, or every model's if the
// model query parameter is omitted.
// GET /queue/stats[?model=X]
func (h *Handlers) QueueStats(c *gin.Context) {
	if model := c.Query("model"); model != "" {
		c.JSON(http.StatusOK, h.Concurrency.Stats(model))
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": h.Concurrency.AllStats()})
}

// QueueMemory reports the host memory reading used to resolve "auto"
// parallel limits at startup.
// GET /queue/memory
func (h *Handlers) QueueMemory(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"available_mem_gb": concurrency.AvailableMemGB(),
	})
}

// resetRequest is the body of POST /admin/queue/reset.
type resetRequest struct {
	Model string `json:"model" binding:"required"`
}

// ResetQueue zeroes a model's processed/rejected counters without
// disturbing active work or configured limits.
// POST /admin/queue/reset
func (h *Handlers) ResetQueue(c *gin.Context) {
	var req resetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": err.Error()})
		return
	}

	h.Concurrency.Reset(req.Model)
	h.audit(c, "queue_reset", req.Model, nil)
	c.JSON(http.StatusOK, h.Concurrency.Stats(req.Model))
}

// updateRequest is the body of POST /admin/queue/update. ParallelLimit and
// QueueLimit are pointers so an absent field leaves that limit unchanged.
type updateRequest struct {
	Model         string `json:"model" binding:"required"`
	ParallelLimit *int   `json:"parallel_limit"`
	QueueLimit    *int   `json:"queue_limit"`
}

// UpdateQueue reconfigures a model's parallel/queue limits. Both limits are
// changed under one acquisition of the per-model mutex; the stats snapshot
// returned to the caller is read afterwards under a separate acquisition,
// so it may already reflect a later concurrent update.
// POST /admin/queue/update
func (h *Handlers) UpdateQueue(c *gin.Context) {
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": err.Error()})
		return
	}

	h.Concurrency.Reconfigure(req.Model, req.ParallelLimit, req.QueueLimit)
	h.audit(c, "queue_update", req.Model, gin.H{
		"parallel_limit": req.ParallelLimit,
		"queue_limit":    req.QueueLimit,
	})
	c.JSON(http.StatusOK, h.Concurrency.Stats(req.Model))
}

// ClearCache purges every cached scan verdict held by the in-process cache.
// With the external Redis backend, Clear is a no-op and nothing is purged.
// POST /admin/cache/clear
func (h *Handlers) ClearCache(c *gin.Context) {
	if h.Cache != nil {
		h.Cache.Clear()
	}
	h.audit(c, "cache_clear", "", nil)
	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}

// ListScanners reports the configured scanner names, input and output
// combined (expansion beyond the wire-level AdminSurface contract, useful
// for an operator checking what a deployment actually enforces).
// GET /admin/scanners
func (h *Handlers) ListScanners(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"scanners": h.ScannerNames()})
}

// ListBackends reports every upstream's circuit state and call counters.
// GET /admin/backends
func (h *Handlers) ListBackends(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"backends": h.Backends.ListStatus()})
}

func (h *Handlers) audit(c *gin.Context, action, model string, attrs gin.H) {
	if h.Sink == nil {
		return
	}
	merged := map[string]any{"action": action, "client_ip": c.ClientIP()}
	for k, v := range attrs {
		merged[k] = v
	}
	h.Sink.Emit(eventsink.Event{
		Kind:  eventsink.KindAdminMutation,
		Model: model,
		Attrs: merged,
	})
}
