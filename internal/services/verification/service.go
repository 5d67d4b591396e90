// Package verification implements passwordless student sign-in with emailed
// six-digit codes.
package verification

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/isfo/attestation-service/internal/model"
	"github.com/isfo/attestation-service/internal/services/auth"
	"github.com/isfo/attestation-service/internal/services/loginaudit"
	"github.com/isfo/attestation-service/internal/store"
)

var (
	// ErrStudentNotFound indicates no student uses the email.
	ErrStudentNotFound = errors.New("student not found")
	// ErrInvalidCode indicates a wrong, used or expired code.
	ErrInvalidCode = errors.New("invalid or expired code")
	// ErrDelivery indicates the code could not be emailed.
	ErrDelivery = errors.New("verification email not delivered")
)

// DefaultTTL is how long a code stays valid.
const DefaultTTL = 10 * time.Minute

var codePattern = regexp.MustCompile(`^[0-9]{6}$`)

// CodeRepository stores issued codes.
type CodeRepository interface {
	Create(ctx context.Context, c *model.VerificationCode) error
	Consume(ctx context.Context, email, code string, at time.Time) (*model.VerificationCode, error)
}

// StudentRepository looks students up by email.
type StudentRepository interface {
	GetByEmail(ctx context.Context, email string) (*model.Student, error)
}

// CodeMailer delivers a code to a student.
type CodeMailer interface {
	SendVerification(ctx context.Context, st *model.Student, code string) error
}

// TokenIssuer mints the student session once a code is accepted.
type TokenIssuer interface {
	IssueStudent(st *model.Student) (*auth.AuthResult, error)
}

// AttemptRecorder appends login audit rows.
type AttemptRecorder interface {
	Record(ctx context.Context, a loginaudit.Attempt)
}

// Service issues and checks verification codes.
type Service struct {
	codes    CodeRepository
	students StudentRepository
	mailer   CodeMailer
	issuer   TokenIssuer
	attempts AttemptRecorder
	ttl      time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// Dependencies aggregates constructor inputs.
type Dependencies struct {
	Codes    CodeRepository
	Students StudentRepository
	Mailer   CodeMailer
	Issuer   TokenIssuer
	Attempts AttemptRecorder
	TTL      time.Duration
	Logger   *zap.Logger
}

// New initialises the verification service.
func New(deps Dependencies) *Service {
	ttl := deps.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		codes:    deps.Codes,
		students: deps.Students,
		mailer:   deps.Mailer,
		issuer:   deps.Issuer,
		attempts: deps.Attempts,
		ttl:      ttl,
		logger:   deps.Logger,
		now:      time.Now,
	}
}

// Send generates a code for the student owning email, stores it and emails
// it. It returns the code's expiry.
func (s *Service) Send(ctx context.Context, email string) (time.Time, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	st, err := s.students.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return time.Time{}, ErrStudentNotFound
		}
		return time.Time{}, fmt.Errorf("query student: %w", err)
	}

	code, err := newCode()
	if err != nil {
		return time.Time{}, err
	}
	now := s.now().UTC()
	vc := &model.VerificationCode{
		ID:        uuid.New(),
		Email:     st.Email,
		Code:      code,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}
	if err := s.codes.Create(ctx, vc); err != nil {
		return time.Time{}, err
	}
	if err := s.mailer.SendVerification(ctx, st, code); err != nil {
		s.logger.Warn("verification email failed", zap.String("email", st.Email), zap.Error(err))
		return time.Time{}, fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	return vc.ExpiresAt, nil
}

// Verify consumes a code and signs the student in.
func (s *Service) Verify(ctx context.Context, email, code string, client loginaudit.Client) (*auth.AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	code = strings.TrimSpace(code)
	fail := func() (*auth.AuthResult, error) {
		s.record(ctx, email, false, client)
		return nil, ErrInvalidCode
	}
	if !codePattern.MatchString(code) {
		return fail()
	}

	if _, err := s.codes.Consume(ctx, email, code, s.now().UTC()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fail()
		}
		return nil, fmt.Errorf("consume code: %w", err)
	}
	st, err := s.students.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fail()
		}
		return nil, fmt.Errorf("query student: %w", err)
	}

	s.record(ctx, email, true, client)
	return s.issuer.IssueStudent(st)
}

func (s *Service) record(ctx context.Context, email string, success bool, client loginaudit.Client) {
	s.attempts.Record(ctx, loginaudit.Attempt{
		Email:    email,
		UserType: model.UserTypeStudent,
		Success:  success,
		Client:   client,
	})
}

var codeSpan = big.NewInt(900000)

// newCode draws a uniform code in 100000..999999.
func newCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpan)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
