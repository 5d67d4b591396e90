// Package loginaudit records sign-in attempts and assembles the security
// dashboard from the most recent attempts.
package loginaudit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/isfo/attestation-service/internal/metrics"
	"github.com/isfo/attestation-service/internal/model"
	"github.com/isfo/attestation-service/internal/security"
)

// DefaultWindowRows is the hard cap on rows the dashboard scans.
const DefaultWindowRows = 500

// Client describes where an attempt came from.
type Client struct {
	IPAddress string
	City      string
	Country   string
	UserAgent string
}

// Attempt is one sign-in outcome to record.
type Attempt struct {
	Email    string
	UserType model.UserType
	Success  bool
	Client   Client
}

// Repository is the append-only attempt log.
type Repository interface {
	Append(ctx context.Context, rec *model.LoginAudit) error
	Latest(ctx context.Context, limit int) ([]model.LoginAudit, error)
}

// StudentNames resolves student names by email.
type StudentNames interface {
	NamesByEmail(ctx context.Context, emails []string) (map[string][2]string, error)
}

// StaffNames resolves administrator display names by email.
type StaffNames interface {
	DisplayNamesByEmail(ctx context.Context, emails []string) (map[string]string, error)
}

// Service records attempts and builds the dashboard.
type Service struct {
	repo       Repository
	students   StudentNames
	staff      StaffNames
	windowRows int
	logger     *zap.Logger
	now        func() time.Time
}

// Dependencies aggregates constructor inputs.
type Dependencies struct {
	Repository Repository
	Students   StudentNames
	Staff      StaffNames
	WindowRows int
	Logger     *zap.Logger
	Now        func() time.Time
}

// New initialises the service.
func New(deps Dependencies) *Service {
	rows := deps.WindowRows
	if rows <= 0 {
		rows = DefaultWindowRows
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:       deps.Repository,
		students:   deps.Students,
		staff:      deps.Staff,
		windowRows: rows,
		logger:     deps.Logger,
		now:        now,
	}
}

// Record appends the attempt. Failures are logged and never surface.
func (s *Service) Record(ctx context.Context, a Attempt) {
	metrics.LoginAttempts.WithLabelValues(string(a.UserType), metrics.Outcome(a.Success)).Inc()

	at := s.now().UTC()
	rec := &model.LoginAudit{
		ID:         uuid.New(),
		Email:      strings.ToLower(strings.TrimSpace(a.Email)),
		UserType:   a.UserType,
		IPAddress:  a.Client.IPAddress,
		City:       a.Client.City,
		Country:    a.Client.Country,
		DeviceInfo: security.DeviceInfo(a.Client.UserAgent),
		UserAgent:  a.Client.UserAgent,
		Success:    a.Success,
		Timestamp:  at,
		CreatedAt:  at,
	}
	if err := s.repo.Append(ctx, rec); err != nil {
		s.logger.Warn("failed to record login attempt",
			zap.String("email", rec.Email),
			zap.String("user_type", string(rec.UserType)),
			zap.Error(err),
		)
	}
}

// Dashboard is the security view over the scanned window.
type Dashboard struct {
	Entries     []security.Entry              `json:"logs"`
	Stats       security.Stats                `json:"stats"`
	Suspicious  []security.SuspiciousActivity `json:"suspicious_activities"`
	EvaluatedAt time.Time                     `json:"evaluated_at"`
}

// Dashboard loads the latest attempts, enriches them with names and runs
// the anomaly detector. The filter narrows Entries only; statistics and
// suspicious activity always cover the full window.
func (s *Service) Dashboard(ctx context.Context, f security.Filter) (*Dashboard, error) {
	records, err := s.repo.Latest(ctx, s.windowRows)
	if err != nil {
		return nil, fmt.Errorf("load login audit: %w", err)
	}

	now := s.now().UTC()
	suspicious := security.DetectSuspicious(records, now)
	entries := security.Enrich(records, s.studentNames(ctx, records), s.staffNames(ctx, records))

	return &Dashboard{
		Entries:     f.Apply(entries),
		Stats:       security.ComputeStats(records, suspicious),
		Suspicious:  suspicious,
		EvaluatedAt: now,
	}, nil
}

func (s *Service) studentNames(ctx context.Context, records []model.LoginAudit) map[string][2]string {
	emails, _ := security.EmailsByType(records)
	names, err := s.students.NamesByEmail(ctx, emails)
	if err != nil {
		s.logger.Warn("failed to resolve student names", zap.Error(err))
		return nil
	}
	return names
}

func (s *Service) staffNames(ctx context.Context, records []model.LoginAudit) map[string]string {
	_, emails := security.EmailsByType(records)
	names, err := s.staff.DisplayNamesByEmail(ctx, emails)
	if err != nil {
		s.logger.Warn("failed to resolve staff names", zap.Error(err))
		return nil
	}
	return names
}
