package verification

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/isfo/attestation-service/internal/model"
	"github.com/isfo/attestation-service/internal/services/auth"
	"github.com/isfo/attestation-service/internal/services/loginaudit"
	"github.com/isfo/attestation-service/internal/store"
)

type memCodes struct {
	mu    sync.Mutex
	codes []*model.VerificationCode
}

func (m *memCodes) Create(_ context.Context, c *model.VerificationCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.codes = append(m.codes, &cp)
	return nil
}

func (m *memCodes) Consume(_ context.Context, email, code string, at time.Time) (*model.VerificationCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.codes) - 1; i >= 0; i-- {
		c := m.codes[i]
		if c.Email == email && c.Code == code && c.UsedAt == nil && c.ExpiresAt.After(at) {
			c.UsedAt = &at
			cp := *c
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

type oneStudent struct{ st model.Student }

func (o oneStudent) GetByEmail(_ context.Context, email string) (*model.Student, error) {
	if email != o.st.Email {
		return nil, store.ErrNotFound
	}
	st := o.st
	return &st, nil
}

type capturingMailer struct {
	last string
	err  error
}

func (c *capturingMailer) SendVerification(_ context.Context, _ *model.Student, code string) error {
	c.last = code
	return c.err
}

type stubIssuer struct{}

func (stubIssuer) IssueStudent(st *model.Student) (*auth.AuthResult, error) {
	return &auth.AuthResult{AccessToken: "tok-" + st.ID.String(), Role: model.UserTypeStudent, UserID: st.ID}, nil
}

type attemptLog struct{ attempts []loginaudit.Attempt }

func (a *attemptLog) Record(_ context.Context, at loginaudit.Attempt) {
	a.attempts = append(a.attempts, at)
}

type fixture struct {
	svc      *Service
	codes    *memCodes
	mailer   *capturingMailer
	attempts *attemptLog
	student  model.Student
	clock    *time.Time
}

func newFixture() *fixture {
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	f := &fixture{
		codes:    &memCodes{},
		mailer:   &capturingMailer{},
		attempts: &attemptLog{},
		student:  model.Student{ID: uuid.New(), Email: "2001@ofppt-edu.ma", FirstName: "Karim"},
		clock:    &now,
	}
	f.svc = New(Dependencies{
		Codes:    f.codes,
		Students: oneStudent{f.student},
		Mailer:   f.mailer,
		Issuer:   stubIssuer{},
		Attempts: f.attempts,
		Logger:   zap.NewNop(),
	})
	f.svc.now = func() time.Time { return *f.clock }
	return f
}

func TestSendAndVerify(t *testing.T) {
	t.Parallel()
	f := newFixture()

	exp, err := f.svc.Send(context.Background(), " 2001@OFPPT-edu.ma ")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if want := f.clock.Add(DefaultTTL); !exp.Equal(want) {
		t.Errorf("expiry = %v, want %v", exp, want)
	}
	n, err := strconv.Atoi(f.mailer.last)
	if err != nil || n < 100000 || n > 999999 {
		t.Fatalf("code = %q", f.mailer.last)
	}

	res, err := f.svc.Verify(context.Background(), f.student.Email, f.mailer.last, loginaudit.Client{IPAddress: "41.2.3.4"})
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if res.UserID != f.student.ID {
		t.Errorf("UserID = %v", res.UserID)
	}
	if _, err := f.svc.Verify(context.Background(), f.student.Email, f.mailer.last, loginaudit.Client{}); !errors.Is(err, ErrInvalidCode) {
		t.Errorf("reused code error = %v", err)
	}

	if len(f.attempts.attempts) != 2 || !f.attempts.attempts[0].Success || f.attempts.attempts[1].Success {
		t.Errorf("attempts = %+v", f.attempts.attempts)
	}
	if f.attempts.attempts[0].Client.IPAddress != "41.2.3.4" {
		t.Errorf("client not recorded: %+v", f.attempts.attempts[0])
	}
}

func TestVerifyExpired(t *testing.T) {
	t.Parallel()
	f := newFixture()

	if _, err := f.svc.Send(context.Background(), f.student.Email); err != nil {
		t.Fatal(err)
	}
	*f.clock = f.clock.Add(DefaultTTL + time.Second)
	if _, err := f.svc.Verify(context.Background(), f.student.Email, f.mailer.last, loginaudit.Client{}); !errors.Is(err, ErrInvalidCode) {
		t.Errorf("Verify(expired) error = %v", err)
	}
}

func TestVerifyMalformedCode(t *testing.T) {
	t.Parallel()
	f := newFixture()

	for _, code := range []string{"", "12345", "abcdef", "1234567"} {
		if _, err := f.svc.Verify(context.Background(), f.student.Email, code, loginaudit.Client{}); !errors.Is(err, ErrInvalidCode) {
			t.Errorf("Verify(%q) error = %v", code, err)
		}
	}
	if len(f.attempts.attempts) != 4 {
		t.Errorf("attempts = %d, want 4", len(f.attempts.attempts))
	}
}

func TestSendUnknownStudent(t *testing.T) {
	t.Parallel()
	f := newFixture()

	if _, err := f.svc.Send(context.Background(), "nobody@ofppt-edu.ma"); !errors.Is(err, ErrStudentNotFound) {
		t.Errorf("Send() error = %v", err)
	}
	if len(f.codes.codes) != 0 {
		t.Errorf("codes stored = %d", len(f.codes.codes))
	}
}

func TestSendDeliveryFailure(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.mailer.err = errors.New("provider down")

	if _, err := f.svc.Send(context.Background(), f.student.Email); !errors.Is(err, ErrDelivery) {
		t.Errorf("Send() error = %v", err)
	}
}
