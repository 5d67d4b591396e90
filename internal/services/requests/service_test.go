package requests

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/isfo/attestation-service/internal/audit"
	"github.com/isfo/attestation-service/internal/model"
	"github.com/isfo/attestation-service/internal/notify"
	"github.com/isfo/attestation-service/internal/store"
)

var fixedNow = time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

// memRepo mirrors the conditional semantics of the SQL repository.
type memRepo struct {
	mu      sync.Mutex
	rows    map[uuid.UUID]*model.AttestationRequest
	nextNum int64
}

func newMemRepo() *memRepo {
	return &memRepo{rows: map[uuid.UUID]*model.AttestationRequest{}}
}

func (m *memRepo) Insert(_ context.Context, req *model.AttestationRequest) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.CIN == req.CIN {
			return false, nil
		}
	}
	cp := *req
	m.rows[req.ID] = &cp
	return true, nil
}

func (m *memRepo) ExistsByName(_ context.Context, first, last string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if strings.EqualFold(r.FirstName, first) && strings.EqualFold(r.LastName, last) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) Get(_ context.Context, id uuid.UUID) (*model.AttestationRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memRepo) List(context.Context, store.RequestFilter) ([]model.AttestationRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.AttestationRequest
	for _, r := range m.rows {
		out = append(out, *r)
	}
	return out, nil
}

func (m *memRepo) Transition(_ context.Context, id uuid.UUID, to model.Status, reason string, at time.Time) (*model.AttestationRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if r.Status != model.StatusPending {
		return nil, store.ErrStaleStatus
	}
	r.Status, r.UpdatedAt = to, at
	if to == model.StatusApproved {
		m.nextNum++
		n := m.nextNum
		r.AttestationNumber = &n
	} else {
		r.RejectionReason = reason
	}
	cp := *r
	return &cp, nil
}

func (m *memRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.rows, id)
	return nil
}

type staticRoster []model.Student

func (r staticRoster) Roster(context.Context) ([]model.Student, error) { return r, nil }

type recordingNotifier struct {
	mu      sync.Mutex
	notices []notify.StatusNotice
	err     error
}

func (n *recordingNotifier) Enqueue(_ context.Context, sn notify.StatusNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, sn)
	return n.err
}

var (
	karimID = uuid.MustParse("0b0c3a34-1f4e-4a55-9d8c-5d1c2c0f0001")
	salmaID = uuid.MustParse("0b0c3a34-1f4e-4a55-9d8c-5d1c2c0f0002")
)

func newService(repo *memRepo, n *recordingNotifier) *Service {
	svc := New(Dependencies{
		Repository: repo,
		Roster: staticRoster{
			{ID: karimID, FirstName: "Karim", LastName: "Idrissi", Group: "DEV101"},
			{ID: salmaID, FirstName: "Salma", LastName: "Bennani", CIN: "EE445566", Group: "DEV102"},
		},
		Notifier: n,
		Logger:   zap.NewNop(),
	})
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func validInput() SubmitInput {
	return SubmitInput{StudentID: karimID, FirstName: "karim", LastName: "idrissi", CIN: "ab123456", Phone: "+212 600-000000", Group: "DEV101"}
}

func TestSubmitCaseInsensitiveRosterMatch(t *testing.T) {
	t.Parallel()

	svc := newService(newMemRepo(), &recordingNotifier{})
	res, err := svc.Submit(context.Background(), validInput())
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	req := res.Request
	if req.Status != model.StatusPending {
		t.Errorf("Status = %q, want pending", req.Status)
	}
	if req.StudentID == nil || *req.StudentID != karimID {
		t.Errorf("StudentID = %v, want %v", req.StudentID, karimID)
	}
	if req.CIN != "AB123456" || req.YearRequested != 2025 || len(res.Warnings) != 0 {
		t.Errorf("result = %+v, warnings %v", req, res.Warnings)
	}
}

func TestSubmitValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		edit  func(*SubmitInput)
		field string
	}{
		{name: "blank first name", edit: func(in *SubmitInput) { in.FirstName = "   " }, field: "first_name"},
		{name: "cin symbols", edit: func(in *SubmitInput) { in.CIN = "AB-12" }, field: "cin"},
		{name: "cin too long", edit: func(in *SubmitInput) { in.CIN = strings.Repeat("A", 21) }, field: "cin"},
		{name: "phone letters", edit: func(in *SubmitInput) { in.Phone = "06abc123" }, field: "phone"},
		{name: "phone short", edit: func(in *SubmitInput) { in.Phone = "0612" }, field: "phone"},
		{name: "missing group", edit: func(in *SubmitInput) { in.Group = "" }, field: "student_group"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			in := validInput()
			tt.edit(&in)
			_, err := newService(newMemRepo(), &recordingNotifier{}).Submit(context.Background(), in)
			var verr *ValidationError
			if !errors.As(err, &verr) || !errors.Is(err, ErrValidation) {
				t.Fatalf("Submit() error = %v, want ValidationError", err)
			}
			if _, ok := verr.Fields[tt.field]; !ok {
				t.Errorf("Fields = %v, want %s", verr.Fields, tt.field)
			}
		})
	}
}

func TestSubmitRosterMismatchSuggests(t *testing.T) {
	t.Parallel()

	in := validInput()
	in.LastName = "Idrisi"
	_, err := newService(newMemRepo(), &recordingNotifier{}).Submit(context.Background(), in)
	var mismatch *RosterMismatchError
	if !errors.As(err, &mismatch) || !errors.Is(err, ErrRosterMismatch) {
		t.Fatalf("Submit() error = %v, want roster mismatch", err)
	}
	if len(mismatch.Suggestions) == 0 || mismatch.Suggestions[0].FullName != "Karim Idrissi" {
		t.Errorf("Suggestions = %+v", mismatch.Suggestions)
	}

	// Right name, wrong group is still refused.
	in = validInput()
	in.Group = "DEV102"
	if _, err := newService(newMemRepo(), &recordingNotifier{}).Submit(context.Background(), in); !errors.Is(err, ErrRosterMismatch) {
		t.Errorf("Submit(wrong group) error = %v", err)
	}
}

func TestSubmitOnlyForOwnRosterEntry(t *testing.T) {
	t.Parallel()

	salma := SubmitInput{StudentID: salmaID, FirstName: "Salma", LastName: "Bennani", CIN: "ee445566", Phone: "0611223344", Group: "DEV102"}
	tests := []struct {
		name string
		edit func(*SubmitInput)
	}{
		{name: "another student's identity", edit: func(in *SubmitInput) { in.StudentID = uuid.New() }},
		{name: "signed-in student files as a classmate", edit: func(in *SubmitInput) { in.StudentID = karimID }},
		{name: "no signed-in student", edit: func(in *SubmitInput) { in.StudentID = uuid.Nil }},
		{name: "cin differs from roster", edit: func(in *SubmitInput) { in.CIN = "ZZ000001" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			repo := newMemRepo()
			in := salma
			tt.edit(&in)
			_, err := newService(repo, &recordingNotifier{}).Submit(context.Background(), in)
			var mismatch *RosterMismatchError
			if !errors.As(err, &mismatch) {
				t.Fatalf("Submit() error = %v, want roster mismatch", err)
			}
			if len(mismatch.Suggestions) != 0 {
				t.Errorf("Suggestions = %+v, want none for another student's entry", mismatch.Suggestions)
			}
			if len(repo.rows) != 0 {
				t.Errorf("stored %d requests, want none", len(repo.rows))
			}
		})
	}

	res, err := newService(newMemRepo(), &recordingNotifier{}).Submit(context.Background(), salma)
	if err != nil {
		t.Fatalf("Submit(own entry) error = %v", err)
	}
	if res.Request.StudentID == nil || *res.Request.StudentID != salmaID {
		t.Errorf("StudentID = %v, want %v", res.Request.StudentID, salmaID)
	}
}

func TestSubmitDuplicates(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	svc := newService(repo, &recordingNotifier{})
	if _, err := svc.Submit(context.Background(), validInput()); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Submit(context.Background(), validInput()); !errors.Is(err, ErrDuplicateCIN) {
		t.Errorf("Submit(same cin) error = %v, want ErrDuplicateCIN", err)
	}

	in := validInput()
	in.CIN = "CD999"
	res, err := svc.Submit(context.Background(), in)
	if err != nil {
		t.Fatalf("Submit(same name) error = %v", err)
	}
	if len(res.Warnings) != 1 || res.Warnings[0] != WarningDuplicateName {
		t.Errorf("Warnings = %v, want [%s]", res.Warnings, WarningDuplicateName)
	}
}

func TestApproveAssignsNumberAndNotifies(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	n := &recordingNotifier{}
	svc := newService(repo, n)
	res, err := svc.Submit(context.Background(), validInput())
	if err != nil {
		t.Fatal(err)
	}

	got, err := svc.Approve(context.Background(), res.Request.ID, audit.Actor{})
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if got.Status != model.StatusApproved || got.AttestationNumber == nil || *got.AttestationNumber != 1 {
		t.Errorf("approved = %+v", got)
	}
	if len(n.notices) != 1 || n.notices[0].Status != model.StatusApproved {
		t.Errorf("notices = %+v", n.notices)
	}

	// Terminal states never go back.
	if _, err := svc.Reject(context.Background(), res.Request.ID, "late", audit.Actor{}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Reject(approved) error = %v, want ErrInvalidTransition", err)
	}
	stored, _ := svc.Get(context.Background(), res.Request.ID)
	if stored.Status != model.StatusApproved {
		t.Errorf("stored status = %q, want approved", stored.Status)
	}
}

func TestRejectKeepsStatusWhenNotifyFails(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	svc := newService(repo, &recordingNotifier{err: errors.New("redis down")})
	res, err := svc.Submit(context.Background(), validInput())
	if err != nil {
		t.Fatal(err)
	}
	got, err := svc.Reject(context.Background(), res.Request.ID, "  dossier incomplet ", audit.Actor{})
	if err != nil {
		t.Fatalf("Reject() error = %v", err)
	}
	if got.Status != model.StatusRejected || got.RejectionReason != "dossier incomplet" {
		t.Errorf("rejected = %+v", got)
	}
}

func TestTransitionUnknownAndConcurrent(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	svc := newService(repo, &recordingNotifier{})
	if _, err := svc.Approve(context.Background(), uuid.New(), audit.Actor{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Approve(unknown) error = %v, want ErrNotFound", err)
	}

	res, err := svc.Submit(context.Background(), validInput())
	if err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(approve bool) {
			defer wg.Done()
			var err error
			if approve {
				_, err = svc.Approve(context.Background(), res.Request.ID, audit.Actor{})
			} else {
				_, err = svc.Reject(context.Background(), res.Request.ID, "", audit.Actor{})
			}
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i%2 == 0)
	}
	wg.Wait()
	if wins != 1 {
		t.Errorf("%d transitions won, want exactly 1", wins)
	}
}

func TestDelete(t *testing.T) {
	t.Parallel()

	svc := newService(newMemRepo(), &recordingNotifier{})
	if err := svc.Delete(context.Background(), uuid.New(), audit.Actor{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete(unknown) error = %v", err)
	}
	res, _ := svc.Submit(context.Background(), validInput())
	if err := svc.Delete(context.Background(), res.Request.ID, audit.Actor{}); err != nil {
		t.Errorf("Delete() error = %v", err)
	}
}

func TestListRejectsUnknownStatus(t *testing.T) {
	t.Parallel()

	svc := newService(newMemRepo(), &recordingNotifier{})
	if _, err := svc.List(context.Background(), store.RequestFilter{Status: "archived"}); !errors.Is(err, ErrValidation) {
		t.Errorf("List() error = %v, want ErrValidation", err)
	}
}

func TestComputeStatistics(t *testing.T) {
	t.Parallel()

	reqs := []model.AttestationRequest{
		{Status: model.StatusPending, Group: "DEV101", CreatedAt: fixedNow.Add(-time.Hour)},
		{Status: model.StatusApproved, Group: "DEV101", CreatedAt: fixedNow.Add(-48 * time.Hour)},
		{Status: model.StatusApproved, Group: "DEV102", CreatedAt: fixedNow.Add(-96 * time.Hour)},
		{Status: model.StatusRejected, Group: "DEV102", CreatedAt: fixedNow.AddDate(0, 0, -10)},
	}
	got := ComputeStatistics(reqs, fixedNow)
	if got.Total != 4 || got.Pending != 1 || got.Approved != 2 || got.Rejected != 1 {
		t.Errorf("counts = %+v", got)
	}
	if got.Today != 1 || got.ThisWeek != 3 {
		t.Errorf("Today = %d, ThisWeek = %d; want 1, 3", got.Today, got.ThisWeek)
	}
	// Only the request from 2025-06-02 is in June.
	if got.ThisMonth != 1 {
		t.Errorf("ThisMonth = %d, want 1", got.ThisMonth)
	}
	if got.AvgProcessingDays != 3 {
		t.Errorf("AvgProcessingDays = %v, want 3", got.AvgProcessingDays)
	}
	if got.ByGroup["DEV101"] != 2 || got.ByGroup["DEV102"] != 2 {
		t.Errorf("ByGroup = %v", got.ByGroup)
	}
}
