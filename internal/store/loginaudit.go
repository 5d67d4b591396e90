package store

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/isfo/attestation-service/internal/model"
)

const loginAuditTable = "login_audit"

var loginAuditColumns = []string{
	"id", "user_email", "user_type", "ip_address", "city", "country",
	"device_info", "user_agent", "success", "login_timestamp", "created_at",
}

// LoginAudit is the append-only sign-in attempt log. It exposes no update or
// delete.
type LoginAudit struct {
	drv dialect.Driver
}

// Append writes one attempt.
func (r *LoginAudit) Append(ctx context.Context, rec *model.LoginAudit) error {
	q := builder().Insert(loginAuditTable).
		Columns(loginAuditColumns...).
		Values(
			rec.ID, rec.Email, string(rec.UserType), rec.IPAddress, rec.City, rec.Country,
			rec.DeviceInfo, rec.UserAgent, rec.Success, rec.Timestamp, rec.CreatedAt,
		)
	if _, err := exec(ctx, r.drv, q); err != nil {
		return fmt.Errorf("append login audit: %w", err)
	}
	return nil
}

// Latest returns up to limit rows, newest first.
func (r *LoginAudit) Latest(ctx context.Context, limit int) ([]model.LoginAudit, error) {
	q := builder().Select(loginAuditColumns...).
		From(entsql.Table(loginAuditTable)).
		OrderBy(entsql.Desc("login_timestamp")).
		Limit(limit)

	out := make([]model.LoginAudit, 0, limit)
	err := queryRows(ctx, r.drv, q, func(rows entsql.ColumnScanner) error {
		var (
			rec      model.LoginAudit
			userType string
		)
		if err := rows.Scan(
			&rec.ID, &rec.Email, &userType, &rec.IPAddress, &rec.City, &rec.Country,
			&rec.DeviceInfo, &rec.UserAgent, &rec.Success, &rec.Timestamp, &rec.CreatedAt,
		); err != nil {
			return err
		}
		rec.UserType = model.UserType(userType)
		out = append(out, rec)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list login audit: %w", err)
	}
	return out, nil
}
