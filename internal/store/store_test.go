package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"entgo.io/ent/dialect"
	"github.com/google/uuid"

	"github.com/isfo/attestation-service/internal/model"
)

var errCaptured = errors.New("captured")

// recordingDriver captures statements and fails every call.
type recordingDriver struct {
	queries []string
	args    [][]any
}

func (d *recordingDriver) Exec(_ context.Context, query string, args, _ any) error {
	d.record(query, args)
	return errCaptured
}

func (d *recordingDriver) Query(_ context.Context, query string, args, _ any) error {
	d.record(query, args)
	return errCaptured
}

func (d *recordingDriver) record(query string, args any) {
	d.queries = append(d.queries, query)
	argv, _ := args.([]any)
	d.args = append(d.args, argv)
}

func (d *recordingDriver) Tx(context.Context) (dialect.Tx, error) { return nil, errCaptured }
func (d *recordingDriver) Close() error                           { return nil }
func (d *recordingDriver) Dialect() string                        { return dialect.Postgres }

func TestRequestInsertIsConditionalOnCIN(t *testing.T) {
	t.Parallel()

	drv := &recordingDriver{}
	repo := &Requests{drv: drv}
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	_, err := repo.Insert(context.Background(), &model.AttestationRequest{
		ID: uuid.New(), FirstName: "Karim", LastName: "Idrissi", CIN: "AB123",
		Phone: "0600000000", Group: "DEV101", Status: model.StatusPending,
		YearRequested: 2025, CreatedAt: now, UpdatedAt: now,
	})
	if !errors.Is(err, errCaptured) {
		t.Fatalf("Insert() error = %v, want captured", err)
	}
	if len(drv.queries) != 1 {
		t.Fatalf("statements = %d, want 1", len(drv.queries))
	}
	q := drv.queries[0]
	for _, want := range []string{`INSERT INTO "attestation_requests"`, `ON CONFLICT ("cin") DO NOTHING`, `RETURNING "id"`} {
		if !strings.Contains(q, want) {
			t.Errorf("query %q missing %q", q, want)
		}
	}
}

func TestRequestTransitionGuardsPending(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		to   model.Status
		want []string
	}{
		{
			name: "approve assigns number",
			to:   model.StatusApproved,
			want: []string{`"attestation_number" = (SELECT COALESCE(MAX("attestation_number"), 0) + 1`, `"rejection_reason" = NULL`},
		},
		{
			name: "reject keeps reason",
			to:   model.StatusRejected,
			want: []string{`"rejection_reason" = $`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			drv := &recordingDriver{}
			repo := &Requests{drv: drv}
			_, err := repo.Transition(context.Background(), uuid.New(), tt.to, "incomplete", time.Now())
			if !errors.Is(err, errCaptured) {
				t.Fatalf("Transition() error = %v, want captured", err)
			}
			q := drv.queries[0]
			if !strings.HasPrefix(q, `UPDATE "attestation_requests" SET`) {
				t.Errorf("query = %q, want UPDATE", q)
			}
			if !strings.Contains(q, `"status" = $`) || !strings.Contains(q, " WHERE ") {
				t.Errorf("query %q has no status guard", q)
			}
			for _, w := range tt.want {
				if !strings.Contains(q, w) {
					t.Errorf("query %q missing %q", q, w)
				}
			}
			found := false
			for _, a := range drv.args[0] {
				if a == string(model.StatusPending) {
					found = true
				}
			}
			if !found {
				t.Errorf("args %v do not include pending guard", drv.args[0])
			}
		})
	}
}

func TestLoginAuditLatestOrdersNewestFirst(t *testing.T) {
	t.Parallel()

	drv := &recordingDriver{}
	repo := &LoginAudit{drv: drv}
	if _, err := repo.Latest(context.Background(), 500); !errors.Is(err, errCaptured) {
		t.Fatalf("Latest() error = %v, want captured", err)
	}
	q := drv.queries[0]
	for _, want := range []string{`FROM "login_audit"`, `ORDER BY "login_timestamp" DESC`, "LIMIT 500"} {
		if !strings.Contains(q, want) {
			t.Errorf("query %q missing %q", q, want)
		}
	}
}

func TestVerificationConsumeTargetsNewestUnused(t *testing.T) {
	t.Parallel()

	drv := &recordingDriver{}
	repo := &VerificationCodes{drv: drv}
	if _, err := repo.Consume(context.Background(), "a@b.c", "123456", time.Now()); !errors.Is(err, errCaptured) {
		t.Fatalf("Consume() error = %v, want captured", err)
	}
	q := drv.queries[0]
	for _, want := range []string{`UPDATE "verification_codes" SET "used_at"`, `"used_at" IS NULL`, `ORDER BY "created_at" DESC`, "LIMIT 1"} {
		if !strings.Contains(q, want) {
			t.Errorf("query %q missing %q", q, want)
		}
	}
}
