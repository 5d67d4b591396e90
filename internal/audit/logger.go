package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/isfo/attestation-service/internal/model"
)

// Entry represents a structured audit event.
type Entry struct {
	ActorID    *uuid.UUID
	Action     string
	Resource   string
	ResourceID string
	IPAddress  string
	UserAgent  string
	Context    map[string]any
	OccurredAt time.Time
}

// Repository persists and lists audit rows.
type Repository interface {
	Insert(ctx context.Context, e *model.AuditLog) error
	Recent(ctx context.Context, limit int) ([]model.AuditLog, error)
}

// Logger writes audit entries into the database.
type Logger struct {
	repo   Repository
	logger *zap.Logger
}

// New constructs a Logger.
func New(repo Repository, logger *zap.Logger) *Logger {
	return &Logger{repo: repo, logger: logger}
}

// Record persists an audit entry, logging failures but not interrupting flows.
// A nil Logger discards entries.
func (l *Logger) Record(ctx context.Context, entry Entry) {
	if l == nil || entry.Action == "" {
		return
	}
	row := &model.AuditLog{
		ID:         uuid.New(),
		ActorID:    entry.ActorID,
		Action:     entry.Action,
		Resource:   entry.Resource,
		ResourceID: entry.ResourceID,
		IPAddress:  entry.IPAddress,
		UserAgent:  entry.UserAgent,
		Context:    entry.Context,
		OccurredAt: timeOrDefault(entry.OccurredAt),
	}
	if err := l.repo.Insert(ctx, row); err != nil {
		l.logger.Warn("failed to persist audit log",
			zap.String("action", entry.Action),
			zap.Error(err),
		)
	}
}

// ListRecent retrieves most recent entries for the admin activity view.
func (l *Logger) ListRecent(ctx context.Context, limit int) ([]model.AuditLog, error) {
	if limit <= 0 {
		limit = 50
	}
	return l.repo.Recent(ctx, limit)
}

func timeOrDefault(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

// Actor identifies who performed an administrative action.
type Actor struct {
	ID        *uuid.UUID
	IPAddress string
	UserAgent string
}

// Entry builds an audit entry attributed to the actor.
func (a Actor) Entry(action, resource, resourceID string, fields map[string]any) Entry {
	return Entry{
		ActorID:    a.ID,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		IPAddress:  a.IPAddress,
		UserAgent:  a.UserAgent,
		Context:    fields,
	}
}
