package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/isfo/attestation-service/internal/export"
	"github.com/isfo/attestation-service/internal/model"
	"github.com/isfo/attestation-service/internal/security"
	"github.com/isfo/attestation-service/internal/services/loginaudit"
)

// LoginDashboard builds the security view over recent login attempts.
type LoginDashboard interface {
	Dashboard(ctx context.Context, f security.Filter) (*loginaudit.Dashboard, error)
}

// SecurityHandler serves the admin login audit dashboard.
type SecurityHandler struct {
	service  LoginDashboard
	location *time.Location
	logger   *zap.Logger
}

// NewSecurityHandler constructs a handler. Export timestamps use loc.
func NewSecurityHandler(service LoginDashboard, loc *time.Location, logger *zap.Logger) *SecurityHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &SecurityHandler{service: service, location: loc, logger: logger}
}

// Dashboard returns enriched attempts, statistics and suspicious emails.
// Query: search, date (YYYY-MM-DD), user_type (student|admin).
func (h *SecurityHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	f, ok := h.filter(w, r)
	if !ok {
		return
	}
	dash, err := h.service.Dashboard(r.Context(), f)
	if err != nil {
		writeServerError(w, r, h.logger, "security", err)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

// Export downloads the filtered attempts as a spreadsheet.
func (h *SecurityHandler) Export(w http.ResponseWriter, r *http.Request) {
	f, ok := h.filter(w, r)
	if !ok {
		return
	}
	dash, err := h.service.Dashboard(r.Context(), f)
	if err != nil {
		writeServerError(w, r, h.logger, "security", err)
		return
	}
	name := export.FileName("logs_connexion", export.FormatXLSX, dash.EvaluatedAt.In(h.location))
	writeDownload(w, r, h.logger, export.FormatXLSX, name, export.LoginAuditTable(dash.Entries, h.location))
}

func (h *SecurityHandler) filter(w http.ResponseWriter, r *http.Request) (security.Filter, bool) {
	q := r.URL.Query()
	f := security.Filter{Search: q.Get("search")}
	if d := q.Get("date"); d != "" {
		day, err := time.Parse("2006-01-02", d)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "date must be YYYY-MM-DD", nil)
			return f, false
		}
		f.Date = day
	}
	switch ut := model.UserType(q.Get("user_type")); ut {
	case "", "all":
	case model.UserTypeStudent, model.UserTypeAdmin:
		f.UserType = ut
	default:
		writeError(w, http.StatusBadRequest, "validation_failed", "user_type must be student or admin", nil)
		return f, false
	}
	return f, true
}
