package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/isfo/attestation-service/internal/model"
)

const studentsTable = "students"

var studentColumns = []string{
	"id", "first_name", "last_name", "cin", "email", "birth_date",
	"formation_level", "speciality", "student_group", "inscription_number",
	"formation_type", "formation_mode", "formation_year", "password_hash",
	"created_at", "updated_at",
}

// StudentFilter narrows List results.
type StudentFilter struct {
	Search string
	Group  string
	Limit  int
}

// Students is the roster repository.
type Students struct {
	drv dialect.Driver
}

func scanStudent(rows entsql.ColumnScanner) (model.Student, error) {
	var (
		s    model.Student
		hash sql.NullString
	)
	err := rows.Scan(
		&s.ID, &s.FirstName, &s.LastName, &s.CIN, &s.Email, &s.BirthDate,
		&s.FormationLevel, &s.Speciality, &s.Group, &s.InscriptionNumber,
		&s.FormationType, &s.FormationMode, &s.FormationYear, &hash,
		&s.CreatedAt, &s.UpdatedAt,
	)
	s.PasswordHash = hash.String
	return s, err
}

func (r *Students) selectAll() *entsql.Selector {
	return builder().Select(studentColumns...).From(entsql.Table(studentsTable))
}

// Get loads a student by id.
func (r *Students) Get(ctx context.Context, id uuid.UUID) (*model.Student, error) {
	return r.one(ctx, r.selectAll().Where(entsql.EQ("id", id)))
}

// GetByEmail loads a student by email, case-insensitively.
func (r *Students) GetByEmail(ctx context.Context, email string) (*model.Student, error) {
	return r.one(ctx, r.selectAll().Where(entsql.EqualFold("email", strings.TrimSpace(email))))
}

func (r *Students) one(ctx context.Context, q *entsql.Selector) (*model.Student, error) {
	var out model.Student
	err := queryOne(ctx, r.drv, q.Limit(1), func(rows entsql.ColumnScanner) error {
		var err error
		out, err = scanStudent(rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// List returns students ordered by group then name.
func (r *Students) List(ctx context.Context, f StudentFilter) ([]model.Student, error) {
	q := r.selectAll()
	var preds []*entsql.Predicate
	if s := strings.TrimSpace(f.Search); s != "" {
		preds = append(preds, entsql.Or(
			entsql.ContainsFold("first_name", s),
			entsql.ContainsFold("last_name", s),
			entsql.ContainsFold("cin", s),
			entsql.ContainsFold("email", s),
			entsql.ContainsFold("inscription_number", s),
		))
	}
	if g := strings.TrimSpace(f.Group); g != "" {
		preds = append(preds, entsql.EqualFold("student_group", g))
	}
	if len(preds) > 0 {
		q.Where(entsql.And(preds...))
	}
	q.OrderBy("student_group", "last_name", "first_name")
	if f.Limit > 0 {
		q.Limit(f.Limit)
	}

	var out []model.Student
	err := queryRows(ctx, r.drv, q, func(rows entsql.ColumnScanner) error {
		s, err := scanStudent(rows)
		if err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	return out, nil
}

// Roster returns the name and group of every student.
func (r *Students) Roster(ctx context.Context) ([]model.Student, error) {
	q := builder().Select("id", "first_name", "last_name", "student_group").
		From(entsql.Table(studentsTable))
	var out []model.Student
	err := queryRows(ctx, r.drv, q, func(rows entsql.ColumnScanner) error {
		var s model.Student
		if err := rows.Scan(&s.ID, &s.FirstName, &s.LastName, &s.Group); err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	return out, nil
}

// NamesByEmail maps lowercased email to {first, last} for the given emails.
func (r *Students) NamesByEmail(ctx context.Context, emails []string) (map[string][2]string, error) {
	out := make(map[string][2]string, len(emails))
	if len(emails) == 0 {
		return out, nil
	}
	args := make([]any, 0, len(emails))
	for _, e := range emails {
		args = append(args, strings.ToLower(e))
	}
	q := builder().Select("email", "first_name", "last_name").
		From(entsql.Table(studentsTable)).
		Where(entsql.P(func(b *entsql.Builder) {
			b.WriteString("LOWER(").Ident("email").WriteString(") IN (").Args(args...).WriteString(")")
		}))
	err := queryRows(ctx, r.drv, q, func(rows entsql.ColumnScanner) error {
		var email, first, last string
		if err := rows.Scan(&email, &first, &last); err != nil {
			return err
		}
		out[strings.ToLower(email)] = [2]string{first, last}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("student names by email: %w", err)
	}
	return out, nil
}

// ExistingKeys loads every stored cin (upper-cased) and email (lower-cased).
func (r *Students) ExistingKeys(ctx context.Context) (cins, emails map[string]struct{}, err error) {
	cins = map[string]struct{}{}
	emails = map[string]struct{}{}
	q := builder().Select("cin", "email").From(entsql.Table(studentsTable))
	err = queryRows(ctx, r.drv, q, func(rows entsql.ColumnScanner) error {
		var cin, email string
		if err := rows.Scan(&cin, &email); err != nil {
			return err
		}
		cins[strings.ToUpper(cin)] = struct{}{}
		emails[strings.ToLower(email)] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("load student keys: %w", err)
	}
	return cins, emails, nil
}

func studentInsert(s *model.Student) *entsql.InsertBuilder {
	return builder().Insert(studentsTable).
		Columns(studentColumns...).
		Values(
			s.ID, s.FirstName, s.LastName, s.CIN, s.Email, s.BirthDate,
			s.FormationLevel, s.Speciality, s.Group, s.InscriptionNumber,
			s.FormationType, s.FormationMode, s.FormationYear, nullString(s.PasswordHash),
			s.CreatedAt, s.UpdatedAt,
		)
}

// Create inserts a student. A unique violation yields ErrConflict.
func (r *Students) Create(ctx context.Context, s *model.Student) error {
	if _, err := exec(ctx, r.drv, studentInsert(s)); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// CreateIfAbsent inserts a student unless any unique column already exists.
// It reports whether the row was written.
func (r *Students) CreateIfAbsent(ctx context.Context, s *model.Student) (bool, error) {
	n, err := exec(ctx, r.drv, studentInsert(s).OnConflict(entsql.DoNothing()))
	if err != nil {
		return false, fmt.Errorf("insert student: %w", err)
	}
	return n == 1, nil
}

// Update overwrites the editable columns of a student.
func (r *Students) Update(ctx context.Context, s *model.Student) error {
	q := builder().Update(studentsTable).
		Set("first_name", s.FirstName).
		Set("last_name", s.LastName).
		Set("cin", s.CIN).
		Set("email", s.Email).
		Set("birth_date", s.BirthDate).
		Set("formation_level", s.FormationLevel).
		Set("speciality", s.Speciality).
		Set("student_group", s.Group).
		Set("inscription_number", s.InscriptionNumber).
		Set("formation_type", s.FormationType).
		Set("formation_mode", s.FormationMode).
		Set("formation_year", s.FormationYear).
		Set("updated_at", s.UpdatedAt).
		Where(entsql.EQ("id", s.ID))
	n, err := exec(ctx, r.drv, q)
	if err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetPasswordHash replaces the stored password hash.
func (r *Students) SetPasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	q := builder().Update(studentsTable).
		Set("password_hash", hash).
		Where(entsql.EQ("id", id))
	n, err := exec(ctx, r.drv, q)
	if err != nil {
		return fmt.Errorf("set student password: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a student.
func (r *Students) Delete(ctx context.Context, id uuid.UUID) error {
	n, err := exec(ctx, r.drv, builder().Delete(studentsTable).Where(entsql.EQ("id", id)))
	if err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
