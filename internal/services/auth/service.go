package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/isfo/attestation-service/internal/audit"
	"github.com/isfo/attestation-service/internal/model"
	"github.com/isfo/attestation-service/internal/oauth/state"
	googleprovider "github.com/isfo/attestation-service/internal/providers/google"
	"github.com/isfo/attestation-service/internal/services/loginaudit"
	"github.com/isfo/attestation-service/internal/store"
	"github.com/isfo/attestation-service/internal/token"
)

var (
	// ErrInvalidCredentials returned when login fails.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrProviderNotEnabled indicates the requested OAuth provider is disabled.
	ErrProviderNotEnabled = errors.New("oauth provider not enabled")
	// ErrOAuthStateInvalid indicates malformed or expired state payload.
	ErrOAuthStateInvalid = errors.New("oauth state invalid")
	// ErrAccountNotAllowed indicates a Google account outside the staff
	// domains, or one with no matching active staff user.
	ErrAccountNotAllowed = errors.New("account not allowed")
)

const oauthStateTTL = 10 * time.Minute

// StaffRepository is the subset of staff storage used for sign-in.
type StaffRepository interface {
	GetByEmail(ctx context.Context, email string) (*model.StaffUser, error)
	TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

// StudentRepository is the subset of roster storage used for sign-in.
type StudentRepository interface {
	GetByEmail(ctx context.Context, email string) (*model.Student, error)
}

// TokenIssuer mints and verifies access tokens.
type TokenIssuer interface {
	MintAccessToken(input token.AccessTokenInput) (string, time.Time, error)
	Parse(tokenString string) (*token.Claims, error)
}

// PasswordVerifier checks a password against a stored hash.
type PasswordVerifier interface {
	Compare(hash, password string) error
}

// GoogleProvider performs the staff Google OAuth exchange.
type GoogleProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	FetchProfile(ctx context.Context, token *oauth2.Token) (*googleprovider.Profile, error)
	Allowed(profile *googleprovider.Profile) error
}

// AttemptRecorder appends login audit rows.
type AttemptRecorder interface {
	Record(ctx context.Context, a loginaudit.Attempt)
}

// Service encapsulates staff and student sign-in flows.
type Service struct {
	staff       StaffRepository
	students    StudentRepository
	tokens      TokenIssuer
	hasher      PasswordVerifier
	attempts    AttemptRecorder
	auditor     *audit.Logger
	google      GoogleProvider
	stateSecret string
	logger      *zap.Logger
	now         func() time.Time
}

// Dependencies aggregates constructor inputs. Google stays nil when the
// provider is disabled.
type Dependencies struct {
	Staff            StaffRepository
	Students         StudentRepository
	Tokens           TokenIssuer
	Hasher           PasswordVerifier
	Attempts         AttemptRecorder
	Auditor          *audit.Logger
	Google           GoogleProvider
	OAuthStateSecret string
	Logger           *zap.Logger
}

// New initialises the auth service.
func New(deps Dependencies) *Service {
	return &Service{
		staff:       deps.Staff,
		students:    deps.Students,
		tokens:      deps.Tokens,
		hasher:      deps.Hasher,
		attempts:    deps.Attempts,
		auditor:     deps.Auditor,
		google:      deps.Google,
		stateSecret: deps.OAuthStateSecret,
		logger:      deps.Logger,
		now:         time.Now,
	}
}

// LoginInput captures a password sign-in.
type LoginInput struct {
	Email    string
	Password string
	Client   loginaudit.Client
}

// OAuthStartInput defines payload for initiating Google sign-in.
type OAuthStartInput struct {
	RedirectURI string
	Client      loginaudit.Client
}

// OAuthCallbackInput defines provider callback payload.
type OAuthCallbackInput struct {
	Code   string
	State  string
	Client loginaudit.Client
}

// AuthResult returned to caller.
type AuthResult struct {
	AccessToken string
	ExpiresAt   time.Time
	Role        model.UserType
	UserID      uuid.UUID
	Email       string
	Name        string
	// RedirectURI echoes the URI carried in the OAuth state, if any.
	RedirectURI string
}

// StaffLogin authenticates an administrator by email and password.
func (s *Service) StaffLogin(ctx context.Context, in LoginInput) (*AuthResult, error) {
	email := normalizeEmail(in.Email)
	u, err := s.staff.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.recordAttempt(ctx, email, model.UserTypeAdmin, false, in.Client)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("query staff user: %w", err)
	}
	if !u.Active || u.PasswordHash == "" {
		s.recordAttempt(ctx, email, model.UserTypeAdmin, false, in.Client)
		return nil, ErrInvalidCredentials
	}
	if err := s.hasher.Compare(u.PasswordHash, in.Password); err != nil {
		s.recordAttempt(ctx, email, model.UserTypeAdmin, false, in.Client)
		return nil, ErrInvalidCredentials
	}

	s.recordAttempt(ctx, email, model.UserTypeAdmin, true, in.Client)
	return s.issueStaff(ctx, u, "auth.staff.login", in.Client)
}

// StudentLogin authenticates a student by email and password.
func (s *Service) StudentLogin(ctx context.Context, in LoginInput) (*AuthResult, error) {
	email := normalizeEmail(in.Email)
	st, err := s.students.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.recordAttempt(ctx, email, model.UserTypeStudent, false, in.Client)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("query student: %w", err)
	}
	if st.PasswordHash == "" {
		s.recordAttempt(ctx, email, model.UserTypeStudent, false, in.Client)
		return nil, ErrInvalidCredentials
	}
	if err := s.hasher.Compare(st.PasswordHash, in.Password); err != nil {
		s.recordAttempt(ctx, email, model.UserTypeStudent, false, in.Client)
		return nil, ErrInvalidCredentials
	}

	s.recordAttempt(ctx, email, model.UserTypeStudent, true, in.Client)
	return s.IssueStudent(st)
}

// IssueStudent mints a student access token.
func (s *Service) IssueStudent(st *model.Student) (*AuthResult, error) {
	access, exp, err := s.tokens.MintAccessToken(token.AccessTokenInput{
		UserID: st.ID,
		Role:   model.UserTypeStudent,
		Email:  st.Email,
		Name:   st.FullName(),
	})
	if err != nil {
		return nil, fmt.Errorf("mint student token: %w", err)
	}
	return &AuthResult{
		AccessToken: access,
		ExpiresAt:   exp,
		Role:        model.UserTypeStudent,
		UserID:      st.ID,
		Email:       st.Email,
		Name:        st.FullName(),
	}, nil
}

// StartGoogleOAuth returns the Google consent URL carrying a signed state.
func (s *Service) StartGoogleOAuth(ctx context.Context, in OAuthStartInput) (string, error) {
	if s.google == nil {
		return "", ErrProviderNotEnabled
	}

	payload := state.Payload{
		RedirectURI: in.RedirectURI,
		Nonce:       randomNonce(),
	}
	stateToken, err := state.Encode(s.stateSecret, payload, oauthStateTTL)
	if err != nil {
		return "", fmt.Errorf("encode oauth state: %w", err)
	}

	s.auditor.Record(ctx, audit.Entry{
		Action:     "auth.oauth.google.start",
		Resource:   "oauth_state",
		ResourceID: payload.Nonce,
		IPAddress:  in.Client.IPAddress,
		UserAgent:  in.Client.UserAgent,
	})

	return s.google.AuthCodeURL(stateToken), nil
}

// CompleteGoogleOAuth finishes staff Google sign-in. The Google account
// must be allowed by the provider and match an existing active staff user.
func (s *Service) CompleteGoogleOAuth(ctx context.Context, in OAuthCallbackInput) (*AuthResult, error) {
	if s.google == nil {
		return nil, ErrProviderNotEnabled
	}
	if in.Code == "" || in.State == "" {
		return nil, ErrOAuthStateInvalid
	}

	payload, err := state.Decode(s.stateSecret, in.State)
	if err != nil {
		return nil, ErrOAuthStateInvalid
	}

	tokenResp, err := s.google.Exchange(ctx, in.Code)
	if err != nil {
		return nil, err
	}
	profile, err := s.google.FetchProfile(ctx, tokenResp)
	if err != nil {
		return nil, err
	}

	email := normalizeEmail(profile.Email)
	if err := s.google.Allowed(profile); err != nil {
		s.recordAttempt(ctx, email, model.UserTypeAdmin, false, in.Client)
		return nil, fmt.Errorf("%w: %v", ErrAccountNotAllowed, err)
	}

	u, err := s.staff.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.recordAttempt(ctx, email, model.UserTypeAdmin, false, in.Client)
			return nil, fmt.Errorf("%w: no staff user for %s", ErrAccountNotAllowed, email)
		}
		return nil, fmt.Errorf("query staff user: %w", err)
	}
	if !u.Active {
		s.recordAttempt(ctx, email, model.UserTypeAdmin, false, in.Client)
		return nil, fmt.Errorf("%w: staff user inactive", ErrAccountNotAllowed)
	}

	s.recordAttempt(ctx, email, model.UserTypeAdmin, true, in.Client)
	result, err := s.issueStaff(ctx, u, "auth.oauth.google.success", in.Client)
	if err != nil {
		return nil, err
	}
	result.RedirectURI = payload.RedirectURI
	return result, nil
}

// ValidateAccessToken ensures the JWT is valid.
func (s *Service) ValidateAccessToken(tokenStr string) (*token.Claims, error) {
	return s.tokens.Parse(tokenStr)
}

func (s *Service) issueStaff(ctx context.Context, u *model.StaffUser, action string, client loginaudit.Client) (*AuthResult, error) {
	access, exp, err := s.tokens.MintAccessToken(token.AccessTokenInput{
		UserID: u.ID,
		Role:   model.UserTypeAdmin,
		Email:  u.Email,
		Name:   u.DisplayName,
	})
	if err != nil {
		return nil, fmt.Errorf("mint staff token: %w", err)
	}

	if err := s.staff.TouchLastLogin(ctx, u.ID, s.now().UTC()); err != nil {
		s.logger.Warn("failed to update last login", zap.Error(err))
	}
	s.auditor.Record(ctx, audit.Entry{
		ActorID:    &u.ID,
		Action:     action,
		Resource:   "staff_user",
		ResourceID: u.ID.String(),
		IPAddress:  client.IPAddress,
		UserAgent:  client.UserAgent,
	})

	return &AuthResult{
		AccessToken: access,
		ExpiresAt:   exp,
		Role:        model.UserTypeAdmin,
		UserID:      u.ID,
		Email:       u.Email,
		Name:        u.DisplayName,
	}, nil
}

func (s *Service) recordAttempt(ctx context.Context, email string, userType model.UserType, success bool, client loginaudit.Client) {
	s.attempts.Record(ctx, loginaudit.Attempt{
		Email:    email,
		UserType: userType,
		Success:  success,
		Client:   client,
	})
}

func randomNonce() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return uuid.New().String()
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
