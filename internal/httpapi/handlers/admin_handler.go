package handlers

import (
	"context"
	"net/http"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/isfo/attestation-service/internal/audit"
	"github.com/isfo/attestation-service/internal/model"
)

// StaffStore persists administrator accounts.
type StaffStore interface {
	Upsert(ctx context.Context, u *model.StaffUser) error
	GetByEmail(ctx context.Context, email string) (*model.StaffUser, error)
}

// ActivityLog lists recorded admin actions.
type ActivityLog interface {
	ListRecent(ctx context.Context, limit int) ([]model.AuditLog, error)
	Record(ctx context.Context, entry audit.Entry)
}

// PasswordHasher derives stored password hashes.
type PasswordHasher interface {
	Hash(password string) (string, error)
}

// AdminHandler serves staff account management and the activity trail.
type AdminHandler struct {
	staff       StaffStore
	activity    ActivityLog
	hasher      PasswordHasher
	minPassword int
	logger      *zap.Logger
}

// NewAdminHandler constructs a handler.
func NewAdminHandler(staff StaffStore, activity ActivityLog, hasher PasswordHasher, minPassword int, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		staff:       staff,
		activity:    activity,
		hasher:      hasher,
		minPassword: minPassword,
		logger:      logger,
	}
}

// SyncStaff creates an administrator or updates the one with that email.
// An empty password keeps the current one; a new account created without
// one can only sign in through Google.
func (h *AdminHandler) SyncStaff(w http.ResponseWriter, r *http.Request) {
	var req staffRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON payload", nil)
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid email", nil)
		return
	}
	if req.Password != "" && len([]rune(req.Password)) < h.minPassword {
		writeError(w, http.StatusUnprocessableEntity, "weak_password", "password must have at least "+strconv.Itoa(h.minPassword)+" characters", nil)
		return
	}

	now := time.Now().UTC()
	u := &model.StaffUser{
		ID:          uuid.New(),
		Email:       email,
		DisplayName: strings.TrimSpace(req.DisplayName),
		Active:      req.Active == nil || *req.Active,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.Password != "" {
		hash, err := h.hasher.Hash(req.Password)
		if err != nil {
			writeServerError(w, r, h.logger, "admin", err)
			return
		}
		u.PasswordHash = hash
	}
	if err := h.staff.Upsert(r.Context(), u); err != nil {
		writeServerError(w, r, h.logger, "admin", err)
		return
	}
	saved, err := h.staff.GetByEmail(r.Context(), email)
	if err != nil {
		writeServerError(w, r, h.logger, "admin", err)
		return
	}
	h.activity.Record(r.Context(), actor(r).Entry("staff.sync", "staff_user", saved.ID.String(), map[string]any{
		"email":  saved.Email,
		"active": saved.Active,
	}))
	writeJSON(w, http.StatusOK, saved)
}

// Activity lists the most recent admin actions. Query: limit (default 50).
func (h *AdminHandler) Activity(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit > 500 {
		limit = 500
	}
	logs, err := h.activity.ListRecent(r.Context(), limit)
	if err != nil {
		writeServerError(w, r, h.logger, "admin", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": nonNil(logs)})
}

type staffRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
	Active      *bool  `json:"active"`
}
