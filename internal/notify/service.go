package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/isfo/attestation-service/internal/config"
	"github.com/isfo/attestation-service/internal/metrics"
	"github.com/isfo/attestation-service/internal/model"
	"github.com/isfo/attestation-service/internal/store"
)

var (
	// ErrInvalidStatus indicates a notice for a non-terminal status.
	ErrInvalidStatus = errors.New("notification status invalid")
	// ErrRequestNotFound indicates the notice targets an unknown request.
	ErrRequestNotFound = errors.New("attestation request not found")
	// ErrNoRecipient indicates the request has no linked student email.
	ErrNoRecipient = errors.New("no recipient for notification")
)

const kindStatusNotice = "status_notice"

// StatusNotice asks for an approval or rejection email.
type StatusNotice struct {
	RequestID       uuid.UUID    `json:"requestId"`
	Status          model.Status `json:"status"`
	RejectionReason string       `json:"rejectionReason,omitempty"`
}

// RequestReader loads attestation requests.
type RequestReader interface {
	Get(ctx context.Context, id uuid.UUID) (*model.AttestationRequest, error)
}

// StudentReader loads roster entries.
type StudentReader interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Student, error)
}

// Sender delivers an email.
type Sender interface {
	Send(ctx context.Context, e Email) error
}

// Service renders notifications, sends them, and moves status notices
// through the queue.
type Service struct {
	requests RequestReader
	students StudentReader
	mailer   Sender
	queue    Queue
	footer   string
	codeTTL  time.Duration
	location *time.Location
	logger   *zap.Logger
}

// Dependencies aggregates constructor inputs.
type Dependencies struct {
	Requests RequestReader
	Students StudentReader
	Mailer   Sender
	Queue    Queue
	Config   config.MailConfig
	Logger   *zap.Logger
}

// New initialises the notification service.
func New(deps Dependencies) *Service {
	loc, err := time.LoadLocation(deps.Config.Location)
	if err != nil {
		deps.Logger.Warn("unknown mail location, using UTC",
			zap.String("location", deps.Config.Location), zap.Error(err))
		loc = time.UTC
	}
	ttl := deps.Config.CodeTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Service{
		requests: deps.Requests,
		students: deps.Students,
		mailer:   deps.Mailer,
		queue:    deps.Queue,
		footer:   deps.Config.Footer,
		codeTTL:  ttl,
		location: loc,
		logger:   deps.Logger,
	}
}

// SendVerification emails a verification code to the student.
func (s *Service) SendVerification(ctx context.Context, st *model.Student, code string) error {
	email, err := RenderVerification(st.Email, VerificationData{
		FirstName:        st.FirstName,
		LastName:         st.LastName,
		Code:             code,
		ExpiresInMinutes: int(s.codeTTL / time.Minute),
		Footer:           s.footer,
	})
	if err != nil {
		return err
	}
	if err := s.mailer.Send(ctx, email); err != nil {
		return fmt.Errorf("send verification email: %w", err)
	}
	return nil
}

// SendStatus emails the approval or rejection notice for a request.
func (s *Service) SendStatus(ctx context.Context, n StatusNotice) error {
	if !n.Status.Terminal() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, n.Status)
	}
	req, err := s.requests.Get(ctx, n.RequestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrRequestNotFound
		}
		return fmt.Errorf("load request: %w", err)
	}
	if req.StudentID == nil {
		return ErrNoRecipient
	}
	st, err := s.students.Get(ctx, *req.StudentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNoRecipient
		}
		return fmt.Errorf("load student: %w", err)
	}
	if st.Email == "" {
		return ErrNoRecipient
	}

	reason := n.RejectionReason
	if reason == "" {
		reason = req.RejectionReason
	}
	number := ""
	if req.AttestationNumber != nil {
		number = strconv.FormatInt(*req.AttestationNumber, 10)
	}
	email, err := RenderStatus(st.Email, n.Status, StatusData{
		FirstName:         req.FirstName,
		LastName:          req.LastName,
		CIN:               req.CIN,
		Group:             req.Group,
		RequestedOn:       req.CreatedAt.In(s.location).Format("02/01/2006"),
		AttestationNumber: number,
		Reason:            reason,
		Footer:            s.footer,
	})
	if err != nil {
		return err
	}
	if err := s.mailer.Send(ctx, email); err != nil {
		return fmt.Errorf("send status email: %w", err)
	}
	return nil
}

// Enqueue publishes a status notice for asynchronous delivery.
func (s *Service) Enqueue(ctx context.Context, n StatusNotice) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notice: %w", err)
	}
	err = s.queue.Publish(ctx, Envelope{Kind: kindStatusNotice, Payload: body, QueuedAt: time.Now().UTC()})
	metrics.Notifications.WithLabelValues("enqueue", metrics.Outcome(err == nil)).Inc()
	if err != nil {
		return fmt.Errorf("publish notice: %w", err)
	}
	return nil
}

// Run consumes the queue and delivers each notice once, until ctx is
// cancelled. Delivery failures are logged and the notice is dropped.
func (s *Service) Run(ctx context.Context) error {
	messages, err := s.queue.Consume(ctx)
	if err != nil {
		return fmt.Errorf("queue consume init: %w", err)
	}

	s.logger.Info("notification dispatcher started")
	for env := range messages {
		if env.Kind != kindStatusNotice {
			s.logger.Warn("dropping unknown notification", zap.String("kind", env.Kind))
			continue
		}
		var n StatusNotice
		if err := json.Unmarshal(env.Payload, &n); err != nil {
			s.logger.Warn("dropping malformed notification", zap.Error(err))
			metrics.Notifications.WithLabelValues("deliver", "failure").Inc()
			continue
		}
		err := s.SendStatus(ctx, n)
		metrics.Notifications.WithLabelValues("deliver", metrics.Outcome(err == nil)).Inc()
		if err != nil {
			s.logger.Warn("status notification failed",
				zap.String("request_id", n.RequestID.String()),
				zap.String("status", string(n.Status)),
				zap.Duration("queued_for", time.Since(env.QueuedAt)),
				zap.Error(err),
			)
		}
	}
	s.logger.Info("notification dispatcher stopped")
	return nil
}
