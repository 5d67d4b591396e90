// Package store holds the repositories over PostgreSQL. Statements are built
// with ent's SQL builder and executed through the ent dialect driver.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/sqlgraph"
	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no row matches the lookup.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when a unique constraint rejects a write.
	ErrConflict = errors.New("store: unique constraint violated")
	// ErrStaleStatus is returned when a conditional status update matched no row
	// because the row left the expected state.
	ErrStaleStatus = errors.New("store: status changed concurrently")
)

// Store groups the repositories sharing one driver.
type Store struct {
	Students     *Students
	Requests     *Requests
	LoginAudit   *LoginAudit
	Verification *VerificationCodes
	Staff        *Staff
	AuditLogs    *AuditLogs
}

// New builds every repository over drv.
func New(drv dialect.Driver) *Store {
	return &Store{
		Students:     &Students{drv: drv},
		Requests:     &Requests{drv: drv},
		LoginAudit:   &LoginAudit{drv: drv},
		Verification: &VerificationCodes{drv: drv},
		Staff:        &Staff{drv: drv},
		AuditLogs:    &AuditLogs{drv: drv},
	}
}

func builder() *entsql.DialectBuilder {
	return entsql.Dialect(dialect.Postgres)
}

type querier interface {
	Query() (string, []any)
}

// queryRows runs q and hands each row to scan.
func queryRows(ctx context.Context, drv dialect.Driver, q querier, scan func(entsql.ColumnScanner) error) error {
	query, args := q.Query()
	var rows entsql.Rows
	if err := drv.Query(ctx, query, args, &rows); err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// queryOne runs q and scans the first row, returning ErrNotFound when empty.
func queryOne(ctx context.Context, drv dialect.Driver, q querier, scan func(entsql.ColumnScanner) error) error {
	found := false
	err := queryRows(ctx, drv, q, func(rows entsql.ColumnScanner) error {
		if found {
			return nil
		}
		found = true
		return scan(rows)
	})
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	return nil
}

// exec runs q and returns the number of affected rows.
func exec(ctx context.Context, drv dialect.Driver, q querier) (int64, error) {
	query, args := q.Query()
	var res sql.Result
	if err := drv.Exec(ctx, query, args, &res); err != nil {
		if sqlgraph.IsUniqueConstraintError(err) {
			return 0, fmt.Errorf("%w: %v", ErrConflict, err)
		}
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func uuidPtr(n uuid.NullUUID) *uuid.UUID {
	if !n.Valid {
		return nil
	}
	id := n.UUID
	return &id
}
