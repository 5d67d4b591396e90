package loginaudit

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/isfo/attestation-service/internal/model"
	"github.com/isfo/attestation-service/internal/security"
)

var now = time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)

type fakeRepo struct {
	rows      []model.LoginAudit
	appendErr error
	limit     int
}

func (f *fakeRepo) Append(_ context.Context, rec *model.LoginAudit) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.rows = append([]model.LoginAudit{*rec}, f.rows...)
	return nil
}

func (f *fakeRepo) Latest(_ context.Context, limit int) ([]model.LoginAudit, error) {
	f.limit = limit
	if len(f.rows) > limit {
		return f.rows[:limit], nil
	}
	return f.rows, nil
}

type fakeNames struct {
	students map[string][2]string
	staff    map[string]string
	err      error
}

func (f fakeNames) NamesByEmail(context.Context, []string) (map[string][2]string, error) {
	return f.students, f.err
}

func (f fakeNames) DisplayNamesByEmail(context.Context, []string) (map[string]string, error) {
	return f.staff, f.err
}

func newService(repo *fakeRepo, names fakeNames, rows int) *Service {
	return New(Dependencies{
		Repository: repo,
		Students:   names,
		Staff:      names,
		WindowRows: rows,
		Logger:     zap.NewNop(),
		Now:        func() time.Time { return now },
	})
}

func TestRecordNormalizesAndDerivesDevice(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{}
	svc := newService(repo, fakeNames{}, 0)
	svc.Record(context.Background(), Attempt{
		Email:    "  Karim@OFPPT-edu.ma ",
		UserType: model.UserTypeStudent,
		Client: Client{
			IPAddress: "41.2.3.4",
			Country:   "MA",
			UserAgent: "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
		},
	})
	if len(repo.rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(repo.rows))
	}
	got := repo.rows[0]
	if got.Email != "karim@ofppt-edu.ma" {
		t.Errorf("Email = %q", got.Email)
	}
	if got.Success || !got.Timestamp.Equal(now) || got.Country != "MA" {
		t.Errorf("row = %+v", got)
	}
	if got.DeviceInfo == "" || got.DeviceInfo == "Inconnu" {
		t.Errorf("DeviceInfo = %q, want parsed browser", got.DeviceInfo)
	}
}

func TestRecordSwallowsErrors(t *testing.T) {
	t.Parallel()

	svc := newService(&fakeRepo{appendErr: errors.New("db down")}, fakeNames{}, 0)
	svc.Record(context.Background(), Attempt{Email: "a@b.c", UserType: model.UserTypeAdmin})
}

func TestDashboard(t *testing.T) {
	t.Parallel()

	var rows []model.LoginAudit
	for i := 0; i < 3; i++ {
		rows = append(rows, model.LoginAudit{
			Email: "karim@ofppt-edu.ma", UserType: model.UserTypeStudent,
			IPAddress: "41.2.3.4", Timestamp: now.Add(-time.Duration(i+1) * time.Hour),
		})
	}
	rows = append(rows, model.LoginAudit{
		Email: "admin@isfo.ma", UserType: model.UserTypeAdmin, Success: true,
		IPAddress: "10.0.0.1", Timestamp: now.Add(-5 * time.Hour),
	})
	repo := &fakeRepo{rows: rows}
	svc := newService(repo, fakeNames{
		students: map[string][2]string{"karim@ofppt-edu.ma": {"Karim", "Idrissi"}},
		staff:    map[string]string{"admin@isfo.ma": "DR IBRAHIM"},
	}, 0)

	d, err := svc.Dashboard(context.Background(), security.Filter{UserType: model.UserTypeAdmin})
	if err != nil {
		t.Fatalf("Dashboard() error = %v", err)
	}
	if repo.limit != DefaultWindowRows {
		t.Errorf("scanned %d rows, want %d", repo.limit, DefaultWindowRows)
	}
	if want := (security.Stats{Total: 4, Successful: 1, Failed: 3, Suspicious: 1}); d.Stats != want {
		t.Errorf("Stats = %+v, want %+v", d.Stats, want)
	}
	if len(d.Suspicious) != 1 || d.Suspicious[0].Email != "karim@ofppt-edu.ma" {
		t.Errorf("Suspicious = %+v", d.Suspicious)
	}
	if len(d.Entries) != 1 || d.Entries[0].StaffName != "DR IBRAHIM" {
		t.Errorf("Entries = %+v", d.Entries)
	}
}

func TestDashboardHonorsWindowCap(t *testing.T) {
	t.Parallel()

	var rows []model.LoginAudit
	rows = append(rows, model.LoginAudit{Email: "a@x.ma", Timestamp: now.Add(-time.Minute)})
	rows = append(rows, model.LoginAudit{Email: "a@x.ma", Timestamp: now.Add(-2 * time.Minute)})
	// Beyond a two-row window these failures are invisible.
	rows = append(rows, model.LoginAudit{Email: "a@x.ma", Timestamp: now.Add(-3 * time.Minute)})

	svc := newService(&fakeRepo{rows: rows}, fakeNames{err: errors.New("lookup failed")}, 2)
	d, err := svc.Dashboard(context.Background(), security.Filter{})
	if err != nil {
		t.Fatalf("Dashboard() error = %v", err)
	}
	if len(d.Suspicious) != 0 || d.Stats.Total != 2 {
		t.Errorf("Dashboard() = %+v, want 2 rows and nothing flagged", d)
	}
}
