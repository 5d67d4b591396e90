package handlers

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/isfo/attestation-service/internal/audit"
	authmiddleware "github.com/isfo/attestation-service/internal/httpapi/middleware"
	"github.com/isfo/attestation-service/internal/services/loginaudit"
)

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close() //nolint:errcheck
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func userAgent(r *http.Request) string {
	return r.Header.Get("User-Agent")
}

// clientInfo collects the login audit context. City and country come from
// the edge proxy headers.
func clientInfo(r *http.Request) loginaudit.Client {
	return loginaudit.Client{
		IPAddress: clientIP(r),
		City:      r.Header.Get("X-Geo-City"),
		Country:   r.Header.Get("CF-IPCountry"),
		UserAgent: userAgent(r),
	}
}

// actor attributes an audit entry to the authenticated caller.
func actor(r *http.Request) audit.Actor {
	a := audit.Actor{IPAddress: clientIP(r), UserAgent: userAgent(r)}
	if claims, ok := authmiddleware.ClaimsFromContext(r.Context()); ok {
		if id, err := claims.UserID(); err == nil {
			a.ID = &id
		}
	}
	return a
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid "+name, nil)
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string, message string, details map[string]any) {
	writeJSON(w, status, map[string]any{
		"error":   message,
		"code":    code,
		"details": details,
	})
}

func writeServerError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, scope string, err error) {
	reqID := middleware.GetReqID(r.Context())
	logger.Error(scope+" handler error", zap.String("request_id", reqID), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "server_error", "internal server error", map[string]any{"request_id": reqID})
}
