package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/isfo/attestation-service/internal/model"
)

const auditLogsTable = "audit_logs"

var auditLogColumns = []string{
	"id", "actor_id", "action", "resource_type", "resource_id",
	"ip_address", "user_agent", "context", "occurred_at",
}

// AuditLogs stores the administrative action trail.
type AuditLogs struct {
	drv dialect.Driver
}

// Insert writes one entry.
func (r *AuditLogs) Insert(ctx context.Context, e *model.AuditLog) error {
	var payload any
	if e.Context != nil {
		raw, err := json.Marshal(e.Context)
		if err != nil {
			return fmt.Errorf("encode audit context: %w", err)
		}
		payload = raw
	}
	q := builder().Insert(auditLogsTable).
		Columns(auditLogColumns...).
		Values(
			e.ID, nullUUID(e.ActorID), e.Action, nullString(e.Resource), nullString(e.ResourceID),
			nullString(e.IPAddress), nullString(e.UserAgent), payload, e.OccurredAt,
		)
	if _, err := exec(ctx, r.drv, q); err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// Recent returns the newest entries first.
func (r *AuditLogs) Recent(ctx context.Context, limit int) ([]model.AuditLog, error) {
	q := builder().Select(auditLogColumns...).
		From(entsql.Table(auditLogsTable)).
		OrderBy(entsql.Desc("occurred_at")).
		Limit(limit)

	var out []model.AuditLog
	err := queryRows(ctx, r.drv, q, func(rows entsql.ColumnScanner) error {
		var e model.AuditLog
		var actor uuid.NullUUID
		var resource, resourceID, ip, userAgent sql.NullString
		var raw []byte
		if err := rows.Scan(&e.ID, &actor, &e.Action, &resource, &resourceID, &ip, &userAgent, &raw, &e.OccurredAt); err != nil {
			return err
		}
		e.ActorID = uuidPtr(actor)
		e.Resource = resource.String
		e.ResourceID = resourceID.String
		e.IPAddress = ip.String
		e.UserAgent = userAgent.String
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &e.Context); err != nil {
				return fmt.Errorf("decode audit context: %w", err)
			}
		}
		out = append(out, e)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	return out, nil
}
