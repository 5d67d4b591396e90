package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/isfo/attestation-service/internal/audit"
	"github.com/isfo/attestation-service/internal/export"
	authmiddleware "github.com/isfo/attestation-service/internal/httpapi/middleware"
	"github.com/isfo/attestation-service/internal/model"
	"github.com/isfo/attestation-service/internal/services/requests"
	"github.com/isfo/attestation-service/internal/store"
)

// RequestService is the attestation request workflow.
type RequestService interface {
	Submit(ctx context.Context, in requests.SubmitInput) (*requests.SubmitResult, error)
	Approve(ctx context.Context, id uuid.UUID, actor audit.Actor) (*model.AttestationRequest, error)
	Reject(ctx context.Context, id uuid.UUID, reason string, actor audit.Actor) (*model.AttestationRequest, error)
	Get(ctx context.Context, id uuid.UUID) (*model.AttestationRequest, error)
	List(ctx context.Context, f store.RequestFilter) ([]model.AttestationRequest, error)
	Delete(ctx context.Context, id uuid.UUID, actor audit.Actor) error
	Statistics(ctx context.Context) (requests.Statistics, error)
}

// RequestHandler serves request intake for students and review for admins.
type RequestHandler struct {
	service  RequestService
	location *time.Location
	logger   *zap.Logger
	now      func() time.Time
}

// NewRequestHandler constructs a handler. Export dates are rendered in loc.
func NewRequestHandler(service RequestService, loc *time.Location, logger *zap.Logger) *RequestHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &RequestHandler{service: service, location: loc, logger: logger, now: time.Now}
}

// Submit records a new request for the signed-in student.
func (h *RequestHandler) Submit(w http.ResponseWriter, r *http.Request) {
	claims, ok := authmiddleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing auth context", nil)
		return
	}
	studentID, err := claims.UserID()
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid user id in token", nil)
		return
	}
	var req submitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON payload", nil)
		return
	}
	res, err := h.service.Submit(r.Context(), requests.SubmitInput{
		StudentID: studentID,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		CIN:       req.CIN,
		Phone:     req.Phone,
		Group:     req.Group,
		Actor:     actor(r),
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	warnings := res.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"request":  res.Request,
		"warnings": warnings,
	})
}

// Mine lists the signed-in student's requests.
func (h *RequestHandler) Mine(w http.ResponseWriter, r *http.Request) {
	claims, ok := authmiddleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing auth context", nil)
		return
	}
	id, err := claims.UserID()
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid user id in token", nil)
		return
	}
	list, err := h.service.List(r.Context(), store.RequestFilter{StudentID: id})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": nonNil(list)})
}

// List returns requests filtered by status, group and search text.
func (h *RequestHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context(), requestFilter(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": nonNil(list)})
}

// Get returns one request.
func (h *RequestHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	req, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// Approve moves a pending request to approved.
func (h *RequestHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	req, err := h.service.Approve(r.Context(), id, actor(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// Reject moves a pending request to rejected with an optional reason.
func (h *RequestHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var body rejectRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON payload", nil)
			return
		}
	}
	req, err := h.service.Reject(r.Context(), id, body.Reason, actor(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// Delete removes a request.
func (h *RequestHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id, actor(r)); err != nil {
		h.handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Statistics returns the request counters.
func (h *RequestHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Statistics(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Export downloads the filtered requests.
func (h *RequestHandler) Export(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(queryDefault(r, "format", string(export.FormatXLSX)))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unsupported_format", err.Error(), nil)
		return
	}
	list, err := h.service.List(r.Context(), requestFilter(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeDownload(w, r, h.logger, format, export.FileName("demandes", format, h.now().In(h.location)),
		export.RequestsTable(list, h.location))
}

func (h *RequestHandler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr   *requests.ValidationError
		roster *requests.RosterMismatchError
	)
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid request fields", fieldDetails(verr.Fields))
	case errors.As(err, &roster):
		writeError(w, http.StatusUnprocessableEntity, "roster_mismatch", "student not found in roster", map[string]any{
			"suggestions": nonNil(roster.Suggestions),
		})
	case errors.Is(err, requests.ErrDuplicateCIN):
		writeError(w, http.StatusConflict, "duplicate_cin", "a request already exists for this cin", nil)
	case errors.Is(err, requests.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "request not found", nil)
	case errors.Is(err, requests.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", "request is no longer pending", nil)
	default:
		writeServerError(w, r, h.logger, "requests", err)
	}
}

func requestFilter(r *http.Request) store.RequestFilter {
	q := r.URL.Query()
	return store.RequestFilter{
		Search: q.Get("search"),
		Status: model.Status(q.Get("status")),
		Group:  q.Get("group"),
	}
}

func fieldDetails(fields map[string]string) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return map[string]any{"fields": out}
}

func nonNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}

type submitRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	CIN       string `json:"cin"`
	Phone     string `json:"phone"`
	Group     string `json:"student_group"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}
