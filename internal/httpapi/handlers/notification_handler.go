package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/isfo/attestation-service/internal/notify"
	"github.com/isfo/attestation-service/internal/services/verification"
)

// CodeSender issues emailed verification codes.
type CodeSender interface {
	Send(ctx context.Context, email string) (time.Time, error)
}

// StatusSender emails approval and rejection notices.
type StatusSender interface {
	SendStatus(ctx context.Context, n notify.StatusNotice) error
}

// NotificationHandler exposes the two email functions.
type NotificationHandler struct {
	codes  CodeSender
	status StatusSender
	logger *zap.Logger
}

// NewNotificationHandler constructs a handler.
func NewNotificationHandler(codes CodeSender, status StatusSender, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{codes: codes, status: status, logger: logger}
}

// SendVerification emails a sign-in code to a known student.
func (h *NotificationHandler) SendVerification(w http.ResponseWriter, r *http.Request) {
	var req verificationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON payload", nil)
		return
	}
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "email is required", nil)
		return
	}
	expires, err := h.codes.Send(r.Context(), req.Email)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"message":    "verification code sent",
		"expires_at": expires,
	})
}

// SendStatus emails the outcome of a request.
func (h *NotificationHandler) SendStatus(w http.ResponseWriter, r *http.Request) {
	var req notify.StatusNotice
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON payload", nil)
		return
	}
	if err := h.status.SendStatus(r.Context(), req); err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "notification sent"})
}

func (h *NotificationHandler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, verification.ErrStudentNotFound):
		writeError(w, http.StatusNotFound, "not_found", "no student uses this email", nil)
	case errors.Is(err, notify.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, "validation_failed", "status must be approved or rejected", nil)
	case errors.Is(err, notify.ErrRequestNotFound):
		writeError(w, http.StatusNotFound, "not_found", "request not found", nil)
	case errors.Is(err, notify.ErrNoRecipient):
		writeError(w, http.StatusUnprocessableEntity, "no_recipient", "request has no student email", nil)
	case errors.Is(err, verification.ErrDelivery):
		h.logger.Warn("email delivery failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "delivery_failed", "email could not be sent", nil)
	default:
		writeServerError(w, r, h.logger, "notifications", err)
	}
}

type verificationRequest struct {
	Email string `json:"email"`
}
