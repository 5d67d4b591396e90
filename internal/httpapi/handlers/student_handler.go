package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/isfo/attestation-service/internal/audit"
	"github.com/isfo/attestation-service/internal/export"
	"github.com/isfo/attestation-service/internal/importer"
	"github.com/isfo/attestation-service/internal/model"
	"github.com/isfo/attestation-service/internal/services/students"
	"github.com/isfo/attestation-service/internal/store"
)

// StudentService administers the roster.
type StudentService interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Student, error)
	List(ctx context.Context, f store.StudentFilter) ([]model.Student, error)
	Create(ctx context.Context, in students.Input, actor audit.Actor) (*model.Student, error)
	Update(ctx context.Context, id uuid.UUID, in students.Input, actor audit.Actor) (*model.Student, error)
	SetPassword(ctx context.Context, id uuid.UUID, password string, actor audit.Actor) error
	Delete(ctx context.Context, id uuid.UUID, actor audit.Actor) error
	Import(ctx context.Context, r io.Reader, opts importer.Options, actor audit.Actor) (*students.ImportResult, error)
}

// StudentHandler exposes roster administration to admins.
type StudentHandler struct {
	service   StudentService
	maxUpload int64
	logger    *zap.Logger
	now       func() time.Time
}

// NewStudentHandler constructs a handler. Uploads above maxUpload bytes are
// refused.
func NewStudentHandler(service StudentService, maxUpload int64, logger *zap.Logger) *StudentHandler {
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}
	return &StudentHandler{service: service, maxUpload: maxUpload, logger: logger, now: time.Now}
}

// List returns students filtered by search text and group.
func (h *StudentHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context(), studentFilter(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"students": nonNil(list)})
}

// Get returns one student.
func (h *StudentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	st, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Create adds a student.
func (h *StudentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in students.Input
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON payload", nil)
		return
	}
	st, err := h.service.Create(r.Context(), in, actor(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

// Update overwrites a student.
func (h *StudentHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var in students.Input
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON payload", nil)
		return
	}
	st, err := h.service.Update(r.Context(), id, in, actor(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// SetPassword replaces a student's password.
func (h *StudentHandler) SetPassword(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req setPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON payload", nil)
		return
	}
	if err := h.service.SetPassword(r.Context(), id, req.Password, actor(r)); err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "password_updated"})
}

// Delete removes a student.
func (h *StudentHandler) Delete(w http.ResponseWriter, r *http.Request) {
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

// Import loads a roster file from the multipart field "file". The optional
// "layout" field selects standard or legacy columns, and "format" overrides
// the format derived from the file name.
func (h *StudentHandler) Import(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "expected a multipart upload under "+strconv.FormatInt(h.maxUpload, 10)+" bytes", nil)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing file field", nil)
		return
	}
	defer file.Close() //nolint:errcheck

	var format importer.Format
	if f := r.FormValue("format"); f != "" {
		format, err = importer.FormatFromName("upload." + f)
	} else {
		format, err = importer.FormatFromName(header.Filename)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "unsupported_format", err.Error(), nil)
		return
	}
	layout := importer.Layout(queryOrForm(r, "layout", string(importer.LayoutStandard)))
	if layout != importer.LayoutStandard && layout != importer.LayoutLegacy {
		writeError(w, http.StatusBadRequest, "invalid_request", "layout must be standard or legacy", nil)
		return
	}

	res, err := h.service.Import(r.Context(), file, importer.Options{Format: format, Layout: layout}, actor(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Export downloads the filtered roster.
func (h *StudentHandler) Export(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(queryDefault(r, "format", string(export.FormatXLSX)))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unsupported_format", err.Error(), nil)
		return
	}
	list, err := h.service.List(r.Context(), studentFilter(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeDownload(w, r, h.logger, format, export.FileName("etudiants", format, h.now()), export.StudentsTable(list))
}

func (h *StudentHandler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr   *students.ValidationError
		rowErr *importer.ValidationError
	)
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid student fields", fieldDetails(verr.Fields))
	case errors.As(err, &rowErr):
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", "import aborted, no row was written", map[string]any{
			"errors": rowErr.Rows,
		})
	case errors.Is(err, importer.ErrEmptyFile), errors.Is(err, importer.ErrUnsupportedFormat):
		writeError(w, http.StatusBadRequest, "invalid_file", err.Error(), nil)
	case errors.Is(err, students.ErrPasswordTooShort):
		writeError(w, http.StatusUnprocessableEntity, "weak_password", err.Error(), nil)
	case errors.Is(err, students.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "student not found", nil)
	case errors.Is(err, students.ErrConflict):
		writeError(w, http.StatusConflict, "student_exists", "cin, email or inscription number already used", nil)
	default:
		writeServerError(w, r, h.logger, "students", err)
	}
}

func studentFilter(r *http.Request) store.StudentFilter {
	q := r.URL.Query()
	f := store.StudentFilter{Search: q.Get("search"), Group: q.Get("group")}
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		f.Limit = n
	}
	return f
}

func queryOrForm(r *http.Request, key, def string) string {
	if v := r.FormValue(key); v != "" {
		return v
	}
	return def
}

type setPasswordRequest struct {
	Password string `json:"password"`
}
