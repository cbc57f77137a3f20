package attendance

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"rollcall/internal/queue"
	"rollcall/internal/reconcile"
)

type fakeUser struct {
	name string
	role string
}

type fakeStore struct {
	mu       sync.Mutex
	subjects []reconcile.Subject
	users    map[string]fakeUser
	userIDs  []string
	records  []Record
	seq      int
	totals   int // Totals calls
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: map[string]fakeUser{}}
}

func (f *fakeStore) addUser(id, name, role string) {
	f.users[id] = fakeUser{name: name, role: role}
	f.userIDs = append(f.userIDs, id)
}

func (f *fakeStore) ListSubjects(context.Context) ([]reconcile.Subject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]reconcile.Subject{}, f.subjects...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeStore) GetSubject(_ context.Context, id string) (reconcile.Subject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.subjects {
		if s.ID == id {
			return s, nil
		}
	}
	return reconcile.Subject{}, ErrSubjectNotFound
}

func (f *fakeStore) CreateSubject(_ context.Context, name, code string) (reconcile.Subject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.subjects {
		if s.Name == name || (code != "" && s.Code == code) {
			return reconcile.Subject{}, ErrSubjectExists
		}
	}
	f.seq++
	s := reconcile.Subject{ID: "sub-" + strconv.Itoa(f.seq), Name: name, Code: code}
	f.subjects = append(f.subjects, s)
	return s, nil
}

func (f *fakeStore) ListStudents(context.Context) ([]reconcile.Student, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []reconcile.Student{}
	for _, id := range f.userIDs {
		if u := f.users[id]; u.role == "STUDENT" {
			out = append(out, reconcile.Student{ID: id, Name: u.name})
		}
	}
	return out, nil
}

func (f *fakeStore) UserRole(_ context.Context, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[id].role, nil
}

func (f *fakeStore) UpsertMark(_ context.Context, in MarkInput, day string, markedAt *time.Time) (Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	for i, r := range f.records {
		if r.StudentID == in.StudentID && r.SubjectID == in.SubjectID && r.Date == day {
			r.Status, r.MarkedAt, r.MarkedBy, r.UpdatedAt = in.Status, markedAt, in.TeacherID, &now
			// move to the end to mimic ORDER BY updated_at
			f.records = append(append(f.records[:i:i], f.records[i+1:]...), r)
			return r, nil
		}
	}
	f.seq++
	rec := Record{Event: reconcile.Event{
		ID:        "rec-" + strconv.Itoa(f.seq),
		StudentID: in.StudentID,
		SubjectID: in.SubjectID,
		Status:    in.Status,
		Date:      day,
		MarkedAt:  markedAt,
		MarkedBy:  in.TeacherID,
		CreatedAt: &now,
		UpdatedAt: &now,
	}}
	f.records = append(f.records, rec)
	return rec, nil
}

func (f *fakeStore) ListByStudent(_ context.Context, studentID, from, to string) ([]Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []Record{}
	for _, r := range f.records {
		if r.StudentID != studentID || (from != "" && r.Date < from) || (to != "" && r.Date > to) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeStore) ListByDate(_ context.Context, day string) ([]Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []Record{}
	for _, r := range f.records {
		if r.Date == day {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) PresentCountsBySubject(_ context.Context, day string) (map[string]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]int{}
	for _, r := range f.records {
		if r.Date == day && r.Status == reconcile.Present {
			out[r.SubjectID]++
		}
	}
	return out, nil
}

func (f *fakeStore) Totals(_ context.Context, day string) (int, int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.totals++
	students := 0
	for _, u := range f.users {
		if u.role == "STUDENT" {
			students++
		}
	}
	present := map[string]bool{}
	for _, r := range f.records {
		if r.Date == day && r.Status == reconcile.Present {
			present[r.StudentID] = true
		}
	}
	return students, len(f.subjects), len(present), nil
}

func (f *fakeStore) ExpirePresence(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for i, r := range f.records {
		if r.Status == reconcile.Present && r.MarkedAt != nil && !r.MarkedAt.After(cutoff) {
			f.records[i].Status = reconcile.Absent
			f.records[i].MarkedAt = nil
			n++
		}
	}
	return n, nil
}

type fakeCache struct {
	mu          sync.Mutex
	data        map[string]Summary
	invalidated []string
}

func newFakeCache() *fakeCache { return &fakeCache{data: map[string]Summary{}} }

func (c *fakeCache) Get(_ context.Context, day string) (Summary, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.data[day]
	return s, ok, nil
}

func (c *fakeCache) Set(_ context.Context, s Summary) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[s.Day] = s
	return nil
}

func (c *fakeCache) Invalidate(_ context.Context, day string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, day)
	c.invalidated = append(c.invalidated, day)
	return nil
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []queue.Message
}

func (p *fakePublisher) Publish(_ context.Context, msg queue.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return nil
}
