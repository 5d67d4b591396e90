package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/isfo/attestation-service/internal/model"
)

const verificationTable = "verification_codes"

// VerificationCodes stores emailed one-time codes.
type VerificationCodes struct {
	drv dialect.Driver
}

// Create stores a new code.
func (r *VerificationCodes) Create(ctx context.Context, c *model.VerificationCode) error {
	q := builder().Insert(verificationTable).
		Columns("id", "email", "code", "expires_at", "created_at").
		Values(c.ID, c.Email, c.Code, c.ExpiresAt, c.CreatedAt)
	if _, err := exec(ctx, r.drv, q); err != nil {
		return fmt.Errorf("create verification code: %w", err)
	}
	return nil
}

// Consume marks the newest unused, unexpired code matching email and code as
// used at the given instant. It returns ErrNotFound when none qualifies.
func (r *VerificationCodes) Consume(ctx context.Context, email, code string, at time.Time) (*model.VerificationCode, error) {
	newest := builder().Select("id").
		From(entsql.Table(verificationTable)).
		Where(entsql.And(
			entsql.EqualFold("email", email),
			entsql.EQ("code", code),
			entsql.IsNull("used_at"),
			entsql.GT("expires_at", at),
		)).
		OrderBy(entsql.Desc("created_at")).
		Limit(1)

	q := builder().Update(verificationTable).
		Set("used_at", at).
		Where(entsql.In("id", newest)).
		Returning("id", "email", "code", "expires_at", "used_at", "created_at")

	var out model.VerificationCode
	err := queryOne(ctx, r.drv, q, func(rows entsql.ColumnScanner) error {
		var used sql.NullTime
		if err := rows.Scan(&out.ID, &out.Email, &out.Code, &out.ExpiresAt, &used, &out.CreatedAt); err != nil {
			return err
		}
		if used.Valid {
			t := used.Time
			out.UsedAt = &t
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
