package attendance

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"rollcall/internal/reconcile"
)

const uniqueViolation = "23505"

const recordQuery = `
	SELECT a.id, a.student_id, a.subject_id, a.status, to_char(a.attendance_date, 'YYYY-MM-DD'),
	       a.marked_at, a.marked_by, a.created_at, a.updated_at,
	       COALESCE(NULLIF(u.name, ''), u.username), s.name
	FROM attendance a
	JOIN users u ON u.id = a.student_id
	JOIN subjects s ON s.id = a.subject_id`

// Repository persists attendance data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// ListSubjects returns all subjects ordered by name.
func (r *Repository) ListSubjects(ctx context.Context) ([]reconcile.Subject, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, COALESCE(code, '') FROM subjects ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []reconcile.Subject{}
	for rows.Next() {
		var s reconcile.Subject
		if err := rows.Scan(&s.ID, &s.Name, &s.Code); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// GetSubject returns a single subject by id.
func (r *Repository) GetSubject(ctx context.Context, id string) (reconcile.Subject, error) {
	if !validID(id) {
		return reconcile.Subject{}, ErrSubjectNotFound
	}
	var s reconcile.Subject
	err := r.db.QueryRowContext(ctx, `SELECT id, name, COALESCE(code, '') FROM subjects WHERE id = $1`, id).
		Scan(&s.ID, &s.Name, &s.Code)
	if errors.Is(err, sql.ErrNoRows) {
		return reconcile.Subject{}, ErrSubjectNotFound
	}
	return s, err
}

// CreateSubject inserts a subject; an empty code is stored as NULL.
func (r *Repository) CreateSubject(ctx context.Context, name, code string) (reconcile.Subject, error) {
	s := reconcile.Subject{ID: uuid.NewString(), Name: name, Code: code}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO subjects (id, name, code) VALUES ($1, $2, NULLIF($3, ''))
	`, s.ID, s.Name, s.Code)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return reconcile.Subject{}, ErrSubjectExists
		}
		return reconcile.Subject{}, err
	}
	return s, nil
}

// ListStudents returns every user with the STUDENT role.
func (r *Repository) ListStudents(ctx context.Context) ([]reconcile.Student, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, COALESCE(NULLIF(name, ''), username)
		FROM users WHERE role = 'STUDENT'
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []reconcile.Student{}
	for rows.Next() {
		var s reconcile.Student
		if err := rows.Scan(&s.ID, &s.Name); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// UserRole returns the role of a user, or "" when the user does not exist.
func (r *Repository) UserRole(ctx context.Context, id string) (string, error) {
	if !validID(id) {
		return "", nil
	}
	var role string
	err := r.db.QueryRowContext(ctx, `SELECT role FROM users WHERE id = $1`, id).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return role, err
}

// UpsertMark writes the mark for (student, subject, day), replacing an earlier one.
func (r *Repository) UpsertMark(ctx context.Context, in MarkInput, day string, markedAt *time.Time) (Record, error) {
	id := uuid.NewString()
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance (id, student_id, subject_id, status, attendance_date, marked_at, marked_by)
		VALUES ($1, $2, $3, $4, $5::date, $6, $7)
		ON CONFLICT (student_id, subject_id, attendance_date) DO UPDATE SET
			status = EXCLUDED.status,
			marked_at = EXCLUDED.marked_at,
			marked_by = EXCLUDED.marked_by,
			updated_at = NOW()
		RETURNING id
	`, id, in.StudentID, in.SubjectID, string(in.Status), day, markedAt, in.TeacherID)
	if err := row.Scan(&id); err != nil {
		return Record{}, err
	}
	return r.scanRecord(r.db.QueryRowContext(ctx, recordQuery+` WHERE a.id = $1`, id))
}

// ListByStudent returns a student's marks in chronological order, optionally bounded by day.
func (r *Repository) ListByStudent(ctx context.Context, studentID, from, to string) ([]Record, error) {
	if !validID(studentID) {
		return []Record{}, nil
	}
	args := []any{studentID}
	clauses := []string{"a.student_id = $1"}
	if from != "" {
		args = append(args, from)
		clauses = append(clauses, "a.attendance_date >= $"+strconv.Itoa(len(args))+"::date")
	}
	if to != "" {
		args = append(args, to)
		clauses = append(clauses, "a.attendance_date <= $"+strconv.Itoa(len(args))+"::date")
	}
	query := recordQuery + " WHERE " + strings.Join(clauses, " AND ") +
		" ORDER BY a.attendance_date, a.updated_at"
	return r.queryRecords(ctx, query, args...)
}

// ListByDate returns all marks for a day in update order.
func (r *Repository) ListByDate(ctx context.Context, day string) ([]Record, error) {
	return r.queryRecords(ctx, recordQuery+` WHERE a.attendance_date = $1::date ORDER BY a.updated_at`, day)
}

// PresentCountsBySubject counts PRESENT marks per subject id for a day.
func (r *Repository) PresentCountsBySubject(ctx context.Context, day string) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT subject_id, COUNT(*)
		FROM attendance
		WHERE attendance_date = $1::date AND status = 'PRESENT'
		GROUP BY subject_id
	`, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		res[id] = n
	}
	return res, rows.Err()
}

// Totals returns the student count, subject count and distinct present students for a day.
func (r *Repository) Totals(ctx context.Context, day string) (students, subjects, present int, err error) {
	err = r.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users WHERE role = 'STUDENT'),
			(SELECT COUNT(*) FROM subjects),
			(SELECT COUNT(DISTINCT student_id) FROM attendance
			 WHERE attendance_date = $1::date AND status = 'PRESENT')
	`, day).Scan(&students, &subjects, &present)
	return students, subjects, present, err
}

// ExpirePresence flips PRESENT marks made at or before cutoff back to ABSENT.
func (r *Repository) ExpirePresence(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE attendance
		SET status = 'ABSENT', marked_at = NULL, updated_at = NOW()
		WHERE status = 'PRESENT' AND marked_at IS NOT NULL AND marked_at <= $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *Repository) queryRecords(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []Record{}
	for rows.Next() {
		rec, err := r.scanRecord(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *Repository) scanRecord(row scanner) (Record, error) {
	var rec Record
	var status string
	err := row.Scan(&rec.ID, &rec.StudentID, &rec.SubjectID, &status, &rec.Date,
		&rec.MarkedAt, &rec.MarkedBy, &rec.CreatedAt, &rec.UpdatedAt,
		&rec.StudentName, &rec.SubjectName)
	if err != nil {
		return Record{}, err
	}
	rec.Status = reconcile.Status(status)
	return rec, nil
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
