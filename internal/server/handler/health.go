package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"
)

const probeTimeout = 2 * time.Second

// Pinger is a backing service the node depends on.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves liveness and readiness.
type HealthHandler struct {
	mode   string
	probes map[string]Pinger
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler reporting the run mode. probes
// are checked by Ready, keyed by the name shown in the response.
func NewHealthHandler(mode string, probes map[string]Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{mode: mode, probes: probes, logger: logHandler(logger, "health")}
}

// HealthCheck reports that the process is up.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"mode":      h.mode,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready pings every dependency and answers 503 if any is down.
// GET /api/ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(h.probes))
	for name := range h.probes {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	checks := make(map[string]string, len(names))
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		err := h.probes[name].Ping(ctx)
		cancel()
		if err != nil {
			status = http.StatusServiceUnavailable
			checks[name] = "down"
			h.logger.WarnContext(r.Context(), "readiness probe failed",
				slog.String("dependency", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		checks[name] = "up"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "degraded"
	}
	writeJSON(w, status, map[string]any{
		"status": state,
		"mode":   h.mode,
		"checks": checks,
	})
}
