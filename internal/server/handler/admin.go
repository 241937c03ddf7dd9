package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	s3blob "github.com/alanyoungcy/nftmarket/internal/blob/s3"
	"github.com/alanyoungcy/nftmarket/internal/domain"
)

// Snapshotter takes an on-demand state snapshot.
type Snapshotter interface {
	Take(ctx context.Context) (s3blob.SnapshotInfo, error)
}

// AdminHandler serves operator endpoints.
type AdminHandler struct {
	snapshots Snapshotter
	audit     domain.AuditStore
	logger    *slog.Logger
}

// NewAdminHandler creates an AdminHandler. snapshots is nil when snapshots
// are disabled and audit is nil when no database is configured; the
// matching routes then answer 503.
func NewAdminHandler(snapshots Snapshotter, audit domain.AuditStore, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{snapshots: snapshots, audit: audit, logger: logHandler(logger, "admin")}
}

// TriggerSnapshot exports the world state now.
// POST /api/admin/snapshot
func (h *AdminHandler) TriggerSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.snapshots == nil {
		writeError(w, http.StatusServiceUnavailable, domain.ErrUnavailable.Error())
		return
	}
	info, err := h.snapshots.Take(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "snapshot failed", err)
		return
	}
	h.logger.InfoContext(r.Context(), "snapshot triggered", slog.String("path", info.Path))
	writeJSON(w, http.StatusCreated, info)
}

type auditEntryResponse struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// AuditLog lists operator-relevant events, newest first.
// GET /api/admin/audit?limit=&offset=
func (h *AdminHandler) AuditLog(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeError(w, http.StatusServiceUnavailable, domain.ErrUnavailable.Error())
		return
	}
	entries, err := h.audit.List(r.Context(), parseListOpts(r))
	if err != nil {
		writeServiceError(w, r, h.logger, "list audit log", err)
		return
	}
	out := make([]auditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditEntryResponse{ID: e.ID, Event: e.Event, Detail: e.Detail, CreatedAt: e.CreatedAt})
	}
	writeJSON(w, http.StatusOK, out)
}
