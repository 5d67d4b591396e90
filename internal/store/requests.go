package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/sqlgraph"
	"github.com/google/uuid"

	"github.com/isfo/attestation-service/internal/model"
)

const requestsTable = "attestation_requests"

var requestColumns = []string{
	"id", "student_id", "first_name", "last_name", "cin", "phone",
	"student_group", "status", "rejection_reason", "attestation_number",
	"year_requested", "created_at", "updated_at",
}

// RequestFilter narrows List results.
type RequestFilter struct {
	Search    string
	Status    model.Status
	Group     string
	StudentID uuid.UUID
}

// Requests is the attestation request repository.
type Requests struct {
	drv dialect.Driver
}

func scanRequest(rows entsql.ColumnScanner) (model.AttestationRequest, error) {
	var (
		r         model.AttestationRequest
		studentID uuid.NullUUID
		status    string
		reason    sql.NullString
		number    sql.NullInt64
	)
	err := rows.Scan(
		&r.ID, &studentID, &r.FirstName, &r.LastName, &r.CIN, &r.Phone,
		&r.Group, &status, &reason, &number,
		&r.YearRequested, &r.CreatedAt, &r.UpdatedAt,
	)
	r.StudentID = uuidPtr(studentID)
	r.Status = model.Status(status)
	r.RejectionReason = reason.String
	if number.Valid {
		n := number.Int64
		r.AttestationNumber = &n
	}
	return r, err
}

// Insert writes a new request unless one with the same cin exists.
// It reports false without error when the cin is already taken.
func (r *Requests) Insert(ctx context.Context, req *model.AttestationRequest) (bool, error) {
	q := builder().Insert(requestsTable).
		Columns(requestColumns...).
		Values(
			req.ID, nullUUID(req.StudentID), req.FirstName, req.LastName, req.CIN, req.Phone,
			req.Group, string(req.Status), nullString(req.RejectionReason), nil,
			req.YearRequested, req.CreatedAt, req.UpdatedAt,
		).
		OnConflict(entsql.ConflictColumns("cin"), entsql.DoNothing()).
		Returning("id")

	inserted := false
	err := queryRows(ctx, r.drv, q, func(rows entsql.ColumnScanner) error {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return err
		}
		inserted = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("insert request: %w", err)
	}
	return inserted, nil
}

// Get loads a request by id.
func (r *Requests) Get(ctx context.Context, id uuid.UUID) (*model.AttestationRequest, error) {
	q := builder().Select(requestColumns...).
		From(entsql.Table(requestsTable)).
		Where(entsql.EQ("id", id)).
		Limit(1)
	var out model.AttestationRequest
	err := queryOne(ctx, r.drv, q, func(rows entsql.ColumnScanner) error {
		var err error
		out, err = scanRequest(rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ExistsByName reports whether a request with the same first and last name
// exists, ignoring case.
func (r *Requests) ExistsByName(ctx context.Context, firstName, lastName string) (bool, error) {
	q := builder().Select("id").
		From(entsql.Table(requestsTable)).
		Where(entsql.And(
			entsql.EqualFold("first_name", firstName),
			entsql.EqualFold("last_name", lastName),
		)).
		Limit(1)
	err := queryOne(ctx, r.drv, q, func(rows entsql.ColumnScanner) error {
		var id uuid.UUID
		return rows.Scan(&id)
	})
	switch {
	case errors.Is(err, ErrNotFound):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("lookup request by name: %w", err)
	}
	return true, nil
}

// List returns requests newest first.
func (r *Requests) List(ctx context.Context, f RequestFilter) ([]model.AttestationRequest, error) {
	q := builder().Select(requestColumns...).From(entsql.Table(requestsTable))
	var preds []*entsql.Predicate
	if s := strings.TrimSpace(f.Search); s != "" {
		preds = append(preds, entsql.Or(
			entsql.ContainsFold("first_name", s),
			entsql.ContainsFold("last_name", s),
			entsql.ContainsFold("cin", s),
			entsql.ContainsFold("phone", s),
		))
	}
	if f.Status != "" {
		preds = append(preds, entsql.EQ("status", string(f.Status)))
	}
	if g := strings.TrimSpace(f.Group); g != "" {
		preds = append(preds, entsql.EqualFold("student_group", g))
	}
	if f.StudentID != uuid.Nil {
		preds = append(preds, entsql.EQ("student_id", f.StudentID))
	}
	if len(preds) > 0 {
		q.Where(entsql.And(preds...))
	}
	q.OrderBy(entsql.Desc("created_at"))

	var out []model.AttestationRequest
	err := queryRows(ctx, r.drv, q, func(rows entsql.ColumnScanner) error {
		req, err := scanRequest(rows)
		if err != nil {
			return err
		}
		out = append(out, req)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return out, nil
}

// Transition moves a pending request to the target status in one statement.
// Approval assigns the next attestation number. ErrStaleStatus is returned
// when the request exists but is no longer pending.
func (r *Requests) Transition(ctx context.Context, id uuid.UUID, to model.Status, reason string, at time.Time) (*model.AttestationRequest, error) {
	const attempts = 3
	for i := 0; ; i++ {
		out, err := r.transition(ctx, id, to, reason, at)
		if err != nil && sqlgraph.IsUniqueConstraintError(err) && i < attempts-1 {
			// Two approvals raced for the same number.
			continue
		}
		return out, err
	}
}

func (r *Requests) transition(ctx context.Context, id uuid.UUID, to model.Status, reason string, at time.Time) (*model.AttestationRequest, error) {
	q := builder().Update(requestsTable).
		Set("status", string(to)).
		Set("updated_at", at).
		Where(entsql.And(
			entsql.EQ("id", id),
			entsql.EQ("status", string(model.StatusPending)),
		)).
		Returning(requestColumns...)
	switch to {
	case model.StatusApproved:
		q.SetNull("rejection_reason").
			Set("attestation_number", entsql.Expr(
				`(SELECT COALESCE(MAX("attestation_number"), 0) + 1 FROM "attestation_requests")`,
			))
	case model.StatusRejected:
		if reason != "" {
			q.Set("rejection_reason", reason)
		}
	}

	var out model.AttestationRequest
	err := queryOne(ctx, r.drv, q, func(rows entsql.ColumnScanner) error {
		var err error
		out, err = scanRequest(rows)
		return err
	})
	if errors.Is(err, ErrNotFound) {
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrStaleStatus
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes a request.
func (r *Requests) Delete(ctx context.Context, id uuid.UUID) error {
	n, err := exec(ctx, r.drv, builder().Delete(requestsTable).Where(entsql.EQ("id", id)))
	if err != nil {
		return fmt.Errorf("delete request: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
