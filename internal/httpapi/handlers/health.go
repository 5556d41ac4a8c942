package handlers

import (
	"context"
	"net/http"
	"time"

	"posprint/internal/httpkit"
)

const checkTimeout = 5 * time.Second

// Health performs a health check of the service.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := h.log.FromContext(ctx)

	health := map[string]any{
		"status":  "ok",
		"service": "posprint",
	}
	if h.version != "" {
		health["version"] = h.version
	}

	if r.URL.Query().Get("deep") == "true" {
		checks := h.deepHealthCheck(ctx)
		health["checks"] = checks

		for _, check := range checks {
			if check["status"] != "ok" {
				health["status"] = "degraded"
				log.Warn("health check degraded", "checks", checks)
				break
			}
		}
	}

	httpkit.WriteJSON(w, http.StatusOK, health)
}

// deepHealthCheck probes every configured dependency. Unconfigured ones
// are left out.
func (h *Handler) deepHealthCheck(ctx context.Context) map[string]map[string]any {
	checks := map[string]map[string]any{
		"printer": h.checkPrinter(ctx),
	}
	if h.journal != nil {
		checks["journal"] = h.checkJournal(ctx)
	}
	if h.rdb != nil {
		checks["redis"] = h.checkRedis(ctx)
	}
	if h.archiver != nil {
		checks["storage"] = h.checkStorage(ctx)
	}
	return checks
}

func (h *Handler) checkPrinter(ctx context.Context) map[string]any {
	start := time.Now()
	result := map[string]any{
		"status":  "ok",
		"backend": h.sink.Name(),
	}

	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	name, ok := h.sink.DefaultDeviceName(checkCtx)
	if !ok {
		result["status"] = "error"
		result["error"] = "no default printer"
	} else {
		result["device"] = name
		result["backlog_depth"] = h.sink.BacklogDepth(checkCtx)
	}

	stats := h.sched.Stats()
	result["pending"] = stats.Pending
	result["consecutive_failures"] = stats.ConsecutiveFailures

	result["latency_ms"] = time.Since(start).Milliseconds()
	return result
}

func (h *Handler) checkJournal(ctx context.Context) map[string]any {
	start := time.Now()
	result := map[string]any{
		"status": "ok",
	}

	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if err := h.journal.Ping(checkCtx); err != nil {
		result["status"] = "error"
		result["error"] = err.Error()
	}

	result["latency_ms"] = time.Since(start).Milliseconds()
	return result
}

func (h *Handler) checkRedis(ctx context.Context) map[string]any {
	start := time.Now()
	result := map[string]any{
		"status": "ok",
	}

	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if err := h.rdb.Ping(checkCtx).Err(); err != nil {
		result["status"] = "error"
		result["error"] = err.Error()
	}

	result["latency_ms"] = time.Since(start).Milliseconds()
	return result
}

// checkStorage reports the provider without writing to it.
func (h *Handler) checkStorage(_ context.Context) map[string]any {
	return map[string]any{
		"status":   "ok",
		"provider": h.archiver.Provider(),
	}
}
