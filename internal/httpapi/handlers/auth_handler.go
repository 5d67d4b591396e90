package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	authmiddleware "github.com/isfo/attestation-service/internal/httpapi/middleware"
	"github.com/isfo/attestation-service/internal/services/auth"
	"github.com/isfo/attestation-service/internal/services/loginaudit"
	"github.com/isfo/attestation-service/internal/services/verification"
)

// AuthService describes the auth layer capabilities used by HTTP handlers.
type AuthService interface {
	StaffLogin(ctx context.Context, in auth.LoginInput) (*auth.AuthResult, error)
	StudentLogin(ctx context.Context, in auth.LoginInput) (*auth.AuthResult, error)
	StartGoogleOAuth(ctx context.Context, in auth.OAuthStartInput) (string, error)
	CompleteGoogleOAuth(ctx context.Context, in auth.OAuthCallbackInput) (*auth.AuthResult, error)
}

// CodeVerifier accepts emailed verification codes.
type CodeVerifier interface {
	Verify(ctx context.Context, email, code string, client loginaudit.Client) (*auth.AuthResult, error)
}

// AuthHandler exposes HTTP endpoints for authentication flows.
type AuthHandler struct {
	service  AuthService
	verifier CodeVerifier
	logger   *zap.Logger
}

// NewAuthHandler constructs a handler.
func NewAuthHandler(service AuthService, verifier CodeVerifier, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		service:  service,
		verifier: verifier,
		logger:   logger,
	}
}

// StaffLogin authenticates an administrator.
func (h *AuthHandler) StaffLogin(w http.ResponseWriter, r *http.Request) {
	h.login(w, r, h.service.StaffLogin)
}

// StudentLogin authenticates a student by password.
func (h *AuthHandler) StudentLogin(w http.ResponseWriter, r *http.Request) {
	h.login(w, r, h.service.StudentLogin)
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request, fn func(context.Context, auth.LoginInput) (*auth.AuthResult, error)) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON payload", nil)
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "email and password are required", nil)
		return
	}

	result, err := fn(r.Context(), auth.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		Client:   clientInfo(r),
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuthResponse(result))
}

// VerifyCode signs a student in with an emailed code.
func (h *AuthHandler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req verifyCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON payload", nil)
		return
	}
	result, err := h.verifier.Verify(r.Context(), req.Email, req.Code, clientInfo(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuthResponse(result))
}

// GoogleOAuthStart returns the consent URL for staff Google sign-in.
func (h *AuthHandler) GoogleOAuthStart(w http.ResponseWriter, r *http.Request) {
	var req oauthStartRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON payload", nil)
			return
		}
	}
	authURL, err := h.service.StartGoogleOAuth(r.Context(), auth.OAuthStartInput{
		RedirectURI: req.RedirectURI,
		Client:      clientInfo(r),
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"authorization_url": authURL})
}

// GoogleOAuthCallback completes staff Google sign-in. When the flow carried
// a redirect URI the token is handed back in its fragment.
func (h *AuthHandler) GoogleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		writeError(w, http.StatusBadRequest, "oauth_denied", e, nil)
		return
	}
	result, err := h.service.CompleteGoogleOAuth(r.Context(), auth.OAuthCallbackInput{
		Code:   q.Get("code"),
		State:  q.Get("state"),
		Client: clientInfo(r),
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if result.RedirectURI != "" {
		frag := url.Values{}
		frag.Set("access_token", result.AccessToken)
		frag.Set("token_type", "Bearer")
		frag.Set("expires_in", expiresIn(result.ExpiresAt))
		http.Redirect(w, r, result.RedirectURI+"#"+frag.Encode(), http.StatusFound)
		return
	}
	writeJSON(w, http.StatusOK, toAuthResponse(result))
}

// Me returns the identity carried by the access token.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := authmiddleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing auth context", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":         claims.Subject,
		"email":      claims.Email,
		"name":       claims.Name,
		"role":       claims.Role,
		"expires_at": claims.ExpiresAt,
	})
}

func (h *AuthHandler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password", nil)
	case errors.Is(err, verification.ErrInvalidCode):
		writeError(w, http.StatusUnauthorized, "invalid_code", "invalid or expired code", nil)
	case errors.Is(err, auth.ErrProviderNotEnabled):
		writeError(w, http.StatusNotFound, "provider_disabled", "google sign-in is not enabled", nil)
	case errors.Is(err, auth.ErrOAuthStateInvalid):
		writeError(w, http.StatusBadRequest, "invalid_state", "oauth state invalid or expired", nil)
	case errors.Is(err, auth.ErrAccountNotAllowed):
		writeError(w, http.StatusForbidden, "account_not_allowed", "account is not allowed to sign in", nil)
	default:
		writeServerError(w, r, h.logger, "auth", err)
	}
}

func toAuthResponse(result *auth.AuthResult) map[string]any {
	return map[string]any{
		"access_token": result.AccessToken,
		"token_type":   "Bearer",
		"expires_in":   int(time.Until(result.ExpiresAt).Seconds()),
		"user": map[string]any{
			"id":    result.UserID,
			"email": result.Email,
			"name":  result.Name,
			"role":  result.Role,
		},
	}
}

func expiresIn(at time.Time) string {
	return strconv.Itoa(int(time.Until(at).Seconds()))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type verifyCodeRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type oauthStartRequest struct {
	RedirectURI string `json:"redirect_uri"`
}
