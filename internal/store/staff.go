package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/isfo/attestation-service/internal/model"
)

const staffTable = "staff_users"

var staffColumns = []string{
	"id", "email", "display_name", "password_hash", "active",
	"last_login_at", "created_at", "updated_at",
}

// Staff is the administrator account repository.
type Staff struct {
	drv dialect.Driver
}

// GetByEmail loads an administrator by email, case-insensitively.
func (r *Staff) GetByEmail(ctx context.Context, email string) (*model.StaffUser, error) {
	q := builder().Select(staffColumns...).
		From(entsql.Table(staffTable)).
		Where(entsql.EqualFold("email", strings.TrimSpace(email))).
		Limit(1)
	var out model.StaffUser
	err := queryOne(ctx, r.drv, q, func(rows entsql.ColumnScanner) error {
		var (
			hash      sql.NullString
			lastLogin sql.NullTime
		)
		if err := rows.Scan(
			&out.ID, &out.Email, &out.DisplayName, &hash, &out.Active,
			&lastLogin, &out.CreatedAt, &out.UpdatedAt,
		); err != nil {
			return err
		}
		out.PasswordHash = hash.String
		if lastLogin.Valid {
			t := lastLogin.Time
			out.LastLoginAt = &t
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DisplayNamesByEmail maps lowercased email to display name.
func (r *Staff) DisplayNamesByEmail(ctx context.Context, emails []string) (map[string]string, error) {
	out := make(map[string]string, len(emails))
	if len(emails) == 0 {
		return out, nil
	}
	args := make([]any, 0, len(emails))
	for _, e := range emails {
		args = append(args, strings.ToLower(e))
	}
	q := builder().Select("email", "display_name").
		From(entsql.Table(staffTable)).
		Where(entsql.P(func(b *entsql.Builder) {
			b.WriteString("LOWER(").Ident("email").WriteString(") IN (").Args(args...).WriteString(")")
		}))
	err := queryRows(ctx, r.drv, q, func(rows entsql.ColumnScanner) error {
		var email, name string
		if err := rows.Scan(&email, &name); err != nil {
			return err
		}
		out[strings.ToLower(email)] = name
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("staff names by email: %w", err)
	}
	return out, nil
}

// Upsert creates the administrator or refreshes its name, password and
// active flag when the email already exists. An empty password hash keeps
// the stored one.
func (r *Staff) Upsert(ctx context.Context, u *model.StaffUser) error {
	q := builder().Insert(staffTable).
		Columns("id", "email", "display_name", "password_hash", "active", "created_at", "updated_at").
		Values(u.ID, strings.ToLower(u.Email), u.DisplayName, nullString(u.PasswordHash), u.Active, u.CreatedAt, u.UpdatedAt).
		OnConflict(
			entsql.ConflictColumns("email"),
			entsql.ResolveWith(func(s *entsql.UpdateSet) {
				s.SetExcluded("display_name")
				s.Set("password_hash", entsql.Expr("COALESCE(EXCLUDED.password_hash, "+staffTable+".password_hash)"))
				s.SetExcluded("active")
				s.SetExcluded("updated_at")
			}),
		)
	if _, err := exec(ctx, r.drv, q); err != nil {
		return fmt.Errorf("upsert staff user: %w", err)
	}
	return nil
}

// TouchLastLogin records a successful sign-in.
func (r *Staff) TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	q := builder().Update(staffTable).
		Set("last_login_at", at).
		Where(entsql.EQ("id", id))
	if _, err := exec(ctx, r.drv, q); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}
