package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/mexcsniper/internal/domain"
)

// AuditReader lists audit log entries.
type AuditReader interface {
	List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error)
}

// AdminHandler exposes read-only operator views.
type AdminHandler struct {
	settings func() any
	audit    AuditReader
	logger   *slog.Logger
}

// NewAdminHandler creates an AdminHandler. settings must return a value with
// secrets already redacted. audit may be nil when no audit store is
// configured.
func NewAdminHandler(settings func() any, audit AuditReader, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{settings: settings, audit: audit, logger: logHandler(logger, "admin")}
}

// GetSettings returns the running configuration.
// GET /api/admin/settings
func (h *AdminHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.settings())
}

type auditResponse struct {
	Entries []domain.AuditEntry `json:"entries"`
}

// ListAudit returns audit entries, newest first.
// GET /api/admin/audit?event=order_placed&owner=alice&since=&until=&limit=50&offset=0
func (h *AdminHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeError(w, http.StatusServiceUnavailable, "audit log requires postgres")
		return
	}
	opts := parseListOpts(r)
	q := r.URL.Query()
	opts.Event = strings.TrimSpace(q.Get("event"))
	opts.UserID = strings.TrimSpace(q.Get("owner"))

	for name, dst := range map[string]**time.Time{"since": &opts.Since, "until": &opts.Until} {
		t, err := parseTimeParam(r, name, time.Time{})
		if err != nil {
			writeServiceError(w, r, h.logger, "list audit", err)
			return
		}
		if !t.IsZero() {
			*dst = &t
		}
	}
	if opts.Since != nil && opts.Until != nil && opts.Until.Before(*opts.Since) {
		writeServiceError(w, r, h.logger, "list audit", domain.Invalid("until", "must not precede since"))
		return
	}

	entries, err := h.audit.List(r.Context(), opts)
	if err != nil {
		writeServiceError(w, r, h.logger, "list audit", err)
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, auditResponse{Entries: entries})
}
