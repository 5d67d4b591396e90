// Package requests implements attestation request intake and the
// pending → approved | rejected workflow.
package requests

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/isfo/attestation-service/internal/audit"
	"github.com/isfo/attestation-service/internal/metrics"
	"github.com/isfo/attestation-service/internal/model"
	"github.com/isfo/attestation-service/internal/notify"
	"github.com/isfo/attestation-service/internal/roster"
	"github.com/isfo/attestation-service/internal/store"
)

var (
	// ErrValidation wraps field validation failures.
	ErrValidation = errors.New("validation failed")
	// ErrRosterMismatch indicates the submitter is not on the roster.
	ErrRosterMismatch = errors.New("student not found in roster")
	// ErrDuplicateCIN indicates a request already exists for the cin.
	ErrDuplicateCIN = errors.New("request already exists for cin")
	// ErrNotFound indicates an unknown request id.
	ErrNotFound = errors.New("request not found")
	// ErrInvalidTransition indicates the request is no longer pending.
	ErrInvalidTransition = errors.New("request is not pending")
)

// WarningDuplicateName flags a request whose name matches an earlier one.
const WarningDuplicateName = "duplicate_name"

var (
	cinPattern   = regexp.MustCompile(`^[A-Za-z0-9]{1,20}$`)
	phonePattern = regexp.MustCompile(`^[0-9 +\-()]{6,20}$`)
)

// ValidationError lists invalid fields with a message each.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %d field(s)", ErrValidation, len(e.Fields))
}

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// RosterMismatchError carries "did you mean" suggestions.
type RosterMismatchError struct {
	Suggestions []roster.Suggestion
}

func (e *RosterMismatchError) Error() string { return ErrRosterMismatch.Error() }

// Is matches ErrRosterMismatch.
func (e *RosterMismatchError) Is(target error) bool { return target == ErrRosterMismatch }

// Repository is the request storage used by the workflow.
type Repository interface {
	Insert(ctx context.Context, req *model.AttestationRequest) (bool, error)
	ExistsByName(ctx context.Context, firstName, lastName string) (bool, error)
	Get(ctx context.Context, id uuid.UUID) (*model.AttestationRequest, error)
	List(ctx context.Context, f store.RequestFilter) ([]model.AttestationRequest, error)
	Transition(ctx context.Context, id uuid.UUID, to model.Status, reason string, at time.Time) (*model.AttestationRequest, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// RosterSource provides the authorized roster.
type RosterSource interface {
	Roster(ctx context.Context) ([]model.Student, error)
}

// Notifier enqueues status notices.
type Notifier interface {
	Enqueue(ctx context.Context, n notify.StatusNotice) error
}

// Service implements intake and the status workflow.
type Service struct {
	repo     Repository
	roster   RosterSource
	notifier Notifier
	auditor  *audit.Logger
	logger   *zap.Logger
	now      func() time.Time
}

// Dependencies aggregates constructor inputs.
type Dependencies struct {
	Repository Repository
	Roster     RosterSource
	Notifier   Notifier
	Auditor    *audit.Logger
	Logger     *zap.Logger
}

// New initialises the request service.
func New(deps Dependencies) *Service {
	return &Service{
		repo:     deps.Repository,
		roster:   deps.Roster,
		notifier: deps.Notifier,
		auditor:  deps.Auditor,
		logger:   deps.Logger,
		now:      time.Now,
	}
}

// SubmitInput is a student's request form. StudentID is the signed-in
// student; the typed name, group and cin must resolve to that roster entry.
type SubmitInput struct {
	StudentID uuid.UUID
	FirstName string
	LastName  string
	CIN       string
	Phone     string
	Group     string
	Actor     audit.Actor
}

// SubmitResult is the created request plus non-blocking warnings.
type SubmitResult struct {
	Request  *model.AttestationRequest
	Warnings []string
}

func (in *SubmitInput) normalize() {
	in.FirstName = strings.Join(strings.Fields(in.FirstName), " ")
	in.LastName = strings.Join(strings.Fields(in.LastName), " ")
	in.CIN = strings.ToUpper(strings.TrimSpace(in.CIN))
	in.Phone = strings.TrimSpace(in.Phone)
	in.Group = strings.TrimSpace(in.Group)
}

func (in SubmitInput) validate() error {
	fields := map[string]string{}
	required := map[string]string{
		"first_name":    in.FirstName,
		"last_name":     in.LastName,
		"cin":           in.CIN,
		"phone":         in.Phone,
		"student_group": in.Group,
	}
	for name, v := range required {
		if v == "" {
			fields[name] = "required"
		}
	}
	if in.CIN != "" && !cinPattern.MatchString(in.CIN) {
		fields["cin"] = "must be 1-20 letters or digits"
	}
	if in.Phone != "" && !phonePattern.MatchString(in.Phone) {
		fields["phone"] = "must be 6-20 digits, spaces or + - ( )"
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Submit validates the form, gates it on the roster and inserts a pending
// request. A cin that already has a request is rejected; a repeated name
// only adds a warning.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	in.normalize()
	if err := in.validate(); err != nil {
		metrics.RequestsSubmitted.WithLabelValues("invalid").Inc()
		return nil, err
	}

	entries, err := s.roster.Roster(ctx)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	candidate := roster.Candidate{FirstName: in.FirstName, LastName: in.LastName, Group: in.Group}
	match := roster.Check(entries, candidate)
	if !match.Matched {
		metrics.RequestsSubmitted.WithLabelValues("roster_mismatch").Inc()
		return nil, &RosterMismatchError{Suggestions: match.Suggestions}
	}
	if !ownsEntry(match.Student, in) {
		metrics.RequestsSubmitted.WithLabelValues("roster_mismatch").Inc()
		s.logger.Warn("submission does not match the signed-in student",
			zap.String("student_id", in.StudentID.String()),
			zap.String("matched_id", match.Student.ID.String()),
		)
		return nil, &RosterMismatchError{}
	}

	var warnings []string
	dup, err := s.repo.ExistsByName(ctx, in.FirstName, in.LastName)
	if err != nil {
		s.logger.Warn("duplicate name check failed", zap.Error(err))
	} else if dup {
		warnings = append(warnings, WarningDuplicateName)
	}

	now := s.now().UTC()
	studentID := in.StudentID
	req := &model.AttestationRequest{
		ID:            uuid.New(),
		StudentID:     &studentID,
		FirstName:     in.FirstName,
		LastName:      in.LastName,
		CIN:           in.CIN,
		Phone:         in.Phone,
		Group:         match.Student.Group,
		Status:        model.StatusPending,
		YearRequested: now.Year(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	inserted, err := s.repo.Insert(ctx, req)
	if err != nil {
		return nil, err
	}
	if !inserted {
		metrics.RequestsSubmitted.WithLabelValues("duplicate_cin").Inc()
		return nil, ErrDuplicateCIN
	}
	metrics.RequestsSubmitted.WithLabelValues("created").Inc()

	s.auditor.Record(ctx, in.Actor.Entry("request.submit", "attestation_request", req.ID.String(), map[string]any{
		"cin":      req.CIN,
		"warnings": warnings,
	}))
	return &SubmitResult{Request: req, Warnings: warnings}, nil
}

// ownsEntry reports whether the matched roster entry is the caller's own. A
// roster cin, when recorded, must equal the submitted one.
func ownsEntry(entry *model.Student, in SubmitInput) bool {
	if in.StudentID == uuid.Nil || entry.ID != in.StudentID {
		return false
	}
	return entry.CIN == "" || strings.EqualFold(entry.CIN, in.CIN)
}

// Approve moves a pending request to approved.
func (s *Service) Approve(ctx context.Context, id uuid.UUID, actor audit.Actor) (*model.AttestationRequest, error) {
	return s.transition(ctx, id, model.StatusApproved, "", actor)
}

// Reject moves a pending request to rejected with an optional reason.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, reason string, actor audit.Actor) (*model.AttestationRequest, error) {
	return s.transition(ctx, id, model.StatusRejected, strings.TrimSpace(reason), actor)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to model.Status, reason string, actor audit.Actor) (*model.AttestationRequest, error) {
	req, err := s.repo.Transition(ctx, id, to, reason, s.now().UTC())
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, ErrNotFound
	case errors.Is(err, store.ErrStaleStatus):
		return nil, ErrInvalidTransition
	case err != nil:
		return nil, fmt.Errorf("transition request: %w", err)
	}
	metrics.StatusTransitions.WithLabelValues(string(to)).Inc()

	fields := map[string]any{"status": string(to)}
	if reason != "" {
		fields["reason"] = reason
	}
	if req.AttestationNumber != nil {
		fields["attestation_number"] = *req.AttestationNumber
	}
	s.auditor.Record(ctx, actor.Entry("request."+string(to), "attestation_request", id.String(), fields))

	// The status is already persisted; notification problems are only logged.
	if err := s.notifier.Enqueue(ctx, notify.StatusNotice{
		RequestID:       req.ID,
		Status:          to,
		RejectionReason: reason,
	}); err != nil {
		s.logger.Warn("failed to enqueue status notification",
			zap.String("request_id", id.String()),
			zap.Error(err),
		)
	}
	return req, nil
}

// Get loads a request.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.AttestationRequest, error) {
	req, err := s.repo.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	return req, err
}

// List returns requests newest first.
func (s *Service) List(ctx context.Context, f store.RequestFilter) ([]model.AttestationRequest, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, &ValidationError{Fields: map[string]string{"status": "must be pending, approved or rejected"}}
	}
	return s.repo.List(ctx, f)
}

// Delete removes a request.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, actor audit.Actor) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	s.auditor.Record(ctx, actor.Entry("request.delete", "attestation_request", id.String(), nil))
	return nil
}

// Statistics summarises every stored request.
func (s *Service) Statistics(ctx context.Context) (Statistics, error) {
	all, err := s.repo.List(ctx, store.RequestFilter{})
	if err != nil {
		return Statistics{}, err
	}
	return ComputeStatistics(all, s.now().UTC()), nil
}
