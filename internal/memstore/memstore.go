// Package memstore keeps users, subjects and marks in process memory.
// It backs STORE_BACKEND=memory for local runs and the HTTP tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/reconcile"
)

type refreshToken struct {
	userID  string
	expires time.Time
	revoked bool
}

// Store implements auth.Store and attendance.Store.
type Store struct {
	mu       sync.RWMutex
	users    map[string]auth.User
	subjects map[string]reconcile.Subject
	records  []attendance.Record
	tokens   map[string]*refreshToken
	now      func() time.Time
}

var (
	_ auth.Store       = (*Store)(nil)
	_ attendance.Store = (*Store)(nil)
)

// New returns an empty store using now for timestamps (time.Now when nil).
func New(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		users:    map[string]auth.User{},
		subjects: map[string]reconcile.Subject{},
		tokens:   map[string]*refreshToken{},
		now:      now,
	}
}

// CreateUser stores u under a new id.
func (s *Store) CreateUser(_ context.Context, u auth.User) (auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Username == u.Username {
			return auth.User{}, auth.ErrUserExists
		}
	}
	u.ID = uuid.NewString()
	u.CreatedAt = s.now()
	s.users[u.ID] = u
	return u, nil
}

// UserByUsername looks a user up by login name.
func (s *Store) UserByUsername(_ context.Context, username string) (auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return auth.User{}, auth.ErrUserNotFound
}

// UserByID looks a user up by id.
func (s *Store) UserByID(_ context.Context, id string) (auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return auth.User{}, auth.ErrUserNotFound
	}
	return u, nil
}

// ListByRole returns users holding role, ordered by username.
func (s *Store) ListByRole(_ context.Context, role auth.Role) ([]auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []auth.User{}
	for _, u := range s.users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

// SaveRefreshToken remembers a refresh token.
func (s *Store) SaveRefreshToken(_ context.Context, userID, token string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = &refreshToken{userID: userID, expires: expiresAt}
	return nil
}

// ConsumeRefreshToken revokes token and reports whether it was live.
func (s *Store) ConsumeRefreshToken(_ context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[token]
	if !ok || t.revoked || !s.now().Before(t.expires) {
		return false, nil
	}
	t.revoked = true
	return true, nil
}

// ListSubjects returns all subjects ordered by name.
func (s *Store) ListSubjects(context.Context) ([]reconcile.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]reconcile.Subject, 0, len(s.subjects))
	for _, sub := range s.subjects {
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// GetSubject returns a subject by id.
func (s *Store) GetSubject(_ context.Context, id string) (reconcile.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subjects[id]
	if !ok {
		return reconcile.Subject{}, attendance.ErrSubjectNotFound
	}
	return sub, nil
}

// CreateSubject stores a subject with unique name and (non-empty) code.
func (s *Store) CreateSubject(_ context.Context, name, code string) (reconcile.Subject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subjects {
		if sub.Name == name || (code != "" && sub.Code == code) {
			return reconcile.Subject{}, attendance.ErrSubjectExists
		}
	}
	sub := reconcile.Subject{ID: uuid.NewString(), Name: name, Code: code}
	s.subjects[sub.ID] = sub
	return sub, nil
}

// ListStudents returns students ordered by username.
func (s *Store) ListStudents(context.Context) ([]reconcile.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]auth.User, 0, len(s.users))
	for _, u := range s.users {
		if u.Role == auth.RoleStudent {
			users = append(users, u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	out := make([]reconcile.Student, len(users))
	for i, u := range users {
		out[i] = reconcile.Student{ID: u.ID, Name: u.DisplayName()}
	}
	return out, nil
}

// UserRole returns a user's role or "" when unknown.
func (s *Store) UserRole(_ context.Context, id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return string(s.users[id].Role), nil
}

// UpsertMark replaces the (student, subject, day) mark or appends a new one.
// Records stay in update order like the SQL queries return them.
func (s *Store) UpsertMark(_ context.Context, in attendance.MarkInput, day string, markedAt *time.Time) (attendance.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	rec := attendance.Record{Event: reconcile.Event{
		ID:        uuid.NewString(),
		StudentID: in.StudentID,
		SubjectID: in.SubjectID,
		Date:      day,
		CreatedAt: &now,
	}}
	for i, r := range s.records {
		if r.StudentID == in.StudentID && r.SubjectID == in.SubjectID && r.Date == day {
			rec = r
			s.records = append(s.records[:i], s.records[i+1:]...)
			break
		}
	}
	rec.Status = in.Status
	rec.MarkedAt = markedAt
	rec.MarkedBy = in.TeacherID
	rec.UpdatedAt = &now
	rec.StudentName = s.users[in.StudentID].DisplayName()
	rec.SubjectName = s.subjects[in.SubjectID].Name
	s.records = append(s.records, rec)
	return rec, nil
}

// ListByStudent returns a student's marks by day, optionally bounded.
func (s *Store) ListByStudent(_ context.Context, studentID, from, to string) ([]attendance.Record, error) {
	return s.filter(func(r attendance.Record) bool {
		return r.StudentID == studentID &&
			(from == "" || r.Date >= from) &&
			(to == "" || r.Date <= to)
	}, true), nil
}

// ListByDate returns all marks for day in update order.
func (s *Store) ListByDate(_ context.Context, day string) ([]attendance.Record, error) {
	return s.filter(func(r attendance.Record) bool { return r.Date == day }, false), nil
}

func (s *Store) filter(keep func(attendance.Record) bool, byDay bool) []attendance.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []attendance.Record{}
	for _, r := range s.records {
		if keep(r) {
			out = append(out, r)
		}
	}
	if byDay {
		sort.SliceStable(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	}
	return out
}

// PresentCountsBySubject counts PRESENT marks per subject id for day.
func (s *Store) PresentCountsBySubject(_ context.Context, day string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := map[string]int{}
	for _, r := range s.records {
		if r.Date == day && r.Status == reconcile.Present {
			out[r.SubjectID]++
		}
	}
	return out, nil
}

// Totals returns student and subject counts and distinct present students for day.
func (s *Store) Totals(_ context.Context, day string) (students, subjects, present int, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Role == auth.RoleStudent {
			students++
		}
	}
	seen := map[string]bool{}
	for _, r := range s.records {
		if r.Date == day && r.Status == reconcile.Present && !seen[r.StudentID] {
			seen[r.StudentID] = true
			present++
		}
	}
	return students, len(s.subjects), present, nil
}

// ExpirePresence resets PRESENT marks made at or before cutoff.
func (s *Store) ExpirePresence(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var n int64
	for i := range s.records {
		r := &s.records[i]
		if r.Status == reconcile.Present && r.MarkedAt != nil && !r.MarkedAt.After(cutoff) {
			r.Status = reconcile.Absent
			r.MarkedAt = nil
			r.UpdatedAt = &now
			n++
		}
	}
	return n, nil
}
