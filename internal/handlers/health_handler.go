package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/RBarbieri13/decant/internal/common"
	"github.com/RBarbieri13/decant/internal/interfaces"
)

// Pinger is satisfied by the sqlite DB.
type Pinger interface {
	Ping(ctx context.Context) error
	MigrationsApplied() (bool, error)
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	logger  arbor.ILogger
	db      Pinger
	queue   interfaces.EnrichmentQueue
	started time.Time
}

func NewHealthHandler(logger arbor.ILogger, db Pinger, queue interfaces.EnrichmentQueue) *HealthHandler {
	return &HealthHandler{logger: logger, db: db, queue: queue, started: time.Now()}
}

// Health handles GET /health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	status := "healthy"
	checks := map[string]string{}

	if err := h.db.Ping(r.Context()); err != nil {
		status = "degraded"
		checks["database"] = err.Error()
	} else {
		checks["database"] = "ok"
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	WriteJSON(w, code, map[string]interface{}{
		"status":  status,
		"version": common.GetVersion(),
		"uptime":  time.Since(h.started).Round(time.Second).String(),
		"checks":  checks,
	})
}

// Live handles GET /health/live. Always succeeds while the process serves.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"status": "alive"})
}

// Ready handles GET /health/ready: database reachable, migrations applied,
// and the enrichment queue open.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	checks := map[string]string{}
	ready := true

	if err := h.db.Ping(r.Context()); err != nil {
		ready = false
		checks["database"] = err.Error()
	} else {
		checks["database"] = "ok"
	}

	if done, err := h.db.MigrationsApplied(); err != nil {
		ready = false
		checks["migrations"] = err.Error()
	} else if !done {
		ready = false
		checks["migrations"] = "pending"
	} else {
		checks["migrations"] = "ok"
	}

	if _, err := h.queue.Stats(r.Context()); err != nil {
		ready = false
		checks["queue"] = err.Error()
	} else {
		checks["queue"] = "ok"
	}

	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	WriteJSON(w, code, map[string]interface{}{
		"ready":  ready,
		"checks": checks,
	})
}
