// Package students manages the authorized roster: manual edits, password
// resets, bulk import and export.
package students

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/isfo/attestation-service/internal/audit"
	"github.com/isfo/attestation-service/internal/export"
	"github.com/isfo/attestation-service/internal/importer"
	"github.com/isfo/attestation-service/internal/metrics"
	"github.com/isfo/attestation-service/internal/model"
	"github.com/isfo/attestation-service/internal/store"
)

var (
	// ErrNotFound indicates an unknown student id.
	ErrNotFound = errors.New("student not found")
	// ErrConflict indicates the cin, email or inscription number is taken.
	ErrConflict = errors.New("student already exists")
	// ErrValidation wraps field validation failures.
	ErrValidation = errors.New("validation failed")
	// ErrPasswordTooShort indicates a password under the configured minimum.
	ErrPasswordTooShort = errors.New("password too short")
)

// ValidationError lists invalid fields with a message each.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %d field(s)", ErrValidation, len(e.Fields))
}

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Repository is the roster storage.
type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Student, error)
	List(ctx context.Context, f store.StudentFilter) ([]model.Student, error)
	ExistingKeys(ctx context.Context) (cins, emails map[string]struct{}, err error)
	Create(ctx context.Context, s *model.Student) error
	CreateIfAbsent(ctx context.Context, s *model.Student) (bool, error)
	Update(ctx context.Context, s *model.Student) error
	SetPasswordHash(ctx context.Context, id uuid.UUID, hash string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// PasswordHasher derives stored password hashes.
type PasswordHasher interface {
	Hash(password string) (string, error)
}

// Service administers students.
type Service struct {
	repo        Repository
	hasher      PasswordHasher
	auditor     *audit.Logger
	logger      *zap.Logger
	emailDomain string
	minPassword int
	hashWorkers int
	now         func() time.Time
}

// Dependencies aggregates constructor inputs. HashWorkers bounds concurrent
// password hashing during import.
type Dependencies struct {
	Repository        Repository
	Hasher            PasswordHasher
	Auditor           *audit.Logger
	Logger            *zap.Logger
	EmailDomain       string
	PasswordMinLength int
	HashWorkers       int
}

// New initialises the student service.
func New(deps Dependencies) *Service {
	workers := deps.HashWorkers
	if workers <= 0 {
		workers = 4
	}
	return &Service{
		repo:        deps.Repository,
		hasher:      deps.Hasher,
		auditor:     deps.Auditor,
		logger:      deps.Logger,
		emailDomain: deps.EmailDomain,
		minPassword: deps.PasswordMinLength,
		hashWorkers: workers,
		now:         time.Now,
	}
}

// Input is the editable part of a student.
type Input struct {
	FirstName         string `json:"first_name"`
	LastName          string `json:"last_name"`
	CIN               string `json:"cin"`
	Email             string `json:"email"`
	BirthDate         string `json:"birth_date"`
	FormationLevel    string `json:"formation_level"`
	Speciality        string `json:"speciality"`
	Group             string `json:"student_group"`
	InscriptionNumber string `json:"inscription_number"`
	FormationType     string `json:"formation_type"`
	FormationMode     string `json:"formation_mode"`
	FormationYear     string `json:"formation_year"`
}

func (s *Service) build(in Input) (model.Student, error) {
	st := model.Student{
		FirstName:         strings.Join(strings.Fields(in.FirstName), " "),
		LastName:          strings.Join(strings.Fields(in.LastName), " "),
		CIN:               strings.ToUpper(strings.TrimSpace(in.CIN)),
		Email:             strings.ToLower(strings.TrimSpace(in.Email)),
		FormationLevel:    strings.TrimSpace(in.FormationLevel),
		Speciality:        strings.TrimSpace(in.Speciality),
		Group:             strings.TrimSpace(in.Group),
		InscriptionNumber: strings.TrimSpace(in.InscriptionNumber),
		FormationType:     strings.TrimSpace(in.FormationType),
		FormationMode:     strings.TrimSpace(in.FormationMode),
		FormationYear:     strings.TrimSpace(in.FormationYear),
	}
	if st.FormationType == "" {
		st.FormationType = importer.DefaultFormationType
	}
	if st.FormationMode == "" {
		st.FormationMode = importer.DefaultFormationMode
	}
	if st.Email == "" && st.InscriptionNumber != "" {
		st.Email = importer.GeneratedEmail(st.InscriptionNumber, s.emailDomain)
	}

	fields := map[string]string{}
	required := map[string]string{
		"first_name":         st.FirstName,
		"last_name":          st.LastName,
		"cin":                st.CIN,
		"formation_level":    st.FormationLevel,
		"speciality":         st.Speciality,
		"student_group":      st.Group,
		"inscription_number": st.InscriptionNumber,
		"formation_year":     st.FormationYear,
	}
	for name, v := range required {
		if v == "" {
			fields[name] = "required"
		}
	}
	if date, ok := importer.ParseDate(in.BirthDate); ok {
		st.BirthDate = date
	} else {
		fields["birth_date"] = "expected YYYY-MM-DD or DD/MM/YYYY"
	}
	if st.Email != "" && !strings.Contains(st.Email, "@") {
		fields["email"] = "invalid email"
	}
	if len(fields) > 0 {
		return st, &ValidationError{Fields: fields}
	}
	return st, nil
}

// Get loads a student.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Student, error) {
	st, err := s.repo.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	return st, err
}

// List returns students matching the filter.
func (s *Service) List(ctx context.Context, f store.StudentFilter) ([]model.Student, error) {
	return s.repo.List(ctx, f)
}

// Create adds a student. The initial password is the inscription number.
func (s *Service) Create(ctx context.Context, in Input, actor audit.Actor) (*model.Student, error) {
	st, err := s.build(in)
	if err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(st.InscriptionNumber)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := s.now().UTC()
	st.ID = uuid.New()
	st.PasswordHash = hash
	st.CreatedAt, st.UpdatedAt = now, now
	if err := s.repo.Create(ctx, &st); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrConflict
		}
		return nil, err
	}
	s.auditor.Record(ctx, actor.Entry("student.create", "student", st.ID.String(), map[string]any{"cin": st.CIN}))
	return &st, nil
}

// Update overwrites a student's editable fields.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in Input, actor audit.Actor) (*model.Student, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	st, err := s.build(in)
	if err != nil {
		return nil, err
	}
	st.ID = id
	st.CreatedAt = current.CreatedAt
	st.UpdatedAt = s.now().UTC()
	switch err := s.repo.Update(ctx, &st); {
	case errors.Is(err, store.ErrNotFound):
		return nil, ErrNotFound
	case errors.Is(err, store.ErrConflict):
		return nil, ErrConflict
	case err != nil:
		return nil, err
	}
	s.auditor.Record(ctx, actor.Entry("student.update", "student", id.String(), nil))
	return &st, nil
}

// SetPassword replaces a student's password.
func (s *Service) SetPassword(ctx context.Context, id uuid.UUID, password string, actor audit.Actor) error {
	if len([]rune(password)) < s.minPassword {
		return fmt.Errorf("%w: minimum %d characters", ErrPasswordTooShort, s.minPassword)
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.repo.SetPasswordHash(ctx, id, hash); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	s.auditor.Record(ctx, actor.Entry("student.password", "student", id.String(), nil))
	return nil
}

// Delete removes a student. Requests keep their copy of the name.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, actor audit.Actor) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	s.auditor.Record(ctx, actor.Entry("student.delete", "student", id.String(), nil))
	return nil
}

// ImportResult summarises an import.
type ImportResult struct {
	Added   int                 `json:"added"`
	Skipped int                 `json:"skipped"`
	Errors  []importer.RowError `json:"errors"`
}

// Import parses a roster file and inserts the students not yet known.
// Any invalid row aborts the import before the first write; the returned
// error is then an *importer.ValidationError.
func (s *Service) Import(ctx context.Context, r io.Reader, opts importer.Options, actor audit.Actor) (*ImportResult, error) {
	if opts.EmailDomain == "" {
		opts.EmailDomain = s.emailDomain
	}
	rows, err := importer.Parse(r, opts)
	if err != nil {
		return nil, err
	}

	cins, emails, err := s.repo.ExistingKeys(ctx)
	if err != nil {
		return nil, err
	}
	res := &ImportResult{Errors: []importer.RowError{}}
	var fresh []importer.Row
	for _, row := range rows {
		cin := strings.ToUpper(row.Student.CIN)
		email := strings.ToLower(row.Student.Email)
		_, cinTaken := cins[cin]
		_, emailTaken := emails[email]
		if cinTaken || emailTaken {
			res.Skipped++
			continue
		}
		cins[cin] = struct{}{}
		emails[email] = struct{}{}
		fresh = append(fresh, row)
	}

	hashes := make([]string, len(fresh))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.hashWorkers)
	for i := range fresh {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			h, err := s.hasher.Hash(fresh[i].Student.InscriptionNumber)
			if err != nil {
				return fmt.Errorf("hash password for line %d: %w", fresh[i].Line, err)
			}
			hashes[i] = h
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	for i, row := range fresh {
		st := row.Student
		st.ID = uuid.New()
		st.PasswordHash = hashes[i]
		st.CreatedAt, st.UpdatedAt = now, now
		added, err := s.repo.CreateIfAbsent(ctx, &st)
		if err != nil {
			res.Errors = append(res.Errors, importer.RowError{Line: row.Line, Message: err.Error()})
			s.logger.Warn("import row failed", zap.Int("line", row.Line), zap.Error(err))
			continue
		}
		if added {
			res.Added++
		} else {
			res.Skipped++
		}
	}

	metrics.ImportedStudents.WithLabelValues("added").Add(float64(res.Added))
	metrics.ImportedStudents.WithLabelValues("skipped").Add(float64(res.Skipped))
	s.auditor.Record(ctx, actor.Entry("student.import", "student", "", map[string]any{
		"format":  string(opts.Format),
		"layout":  string(opts.Layout),
		"added":   res.Added,
		"skipped": res.Skipped,
		"errors":  len(res.Errors),
	}))
	s.logger.Info("students imported",
		zap.Int("added", res.Added),
		zap.Int("skipped", res.Skipped),
		zap.Int("errors", len(res.Errors)),
	)
	return res, nil
}

// Export writes the filtered roster in the import column order.
func (s *Service) Export(ctx context.Context, w io.Writer, f export.Format, filter store.StudentFilter) error {
	list, err := s.repo.List(ctx, filter)
	if err != nil {
		return err
	}
	return export.Write(w, f, export.StudentsTable(list))
}
