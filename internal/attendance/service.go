package attendance

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"rollcall/internal/metrics"
	"rollcall/internal/queue"
	"rollcall/internal/reconcile"
)

// Store is the persistence the service needs; *Repository implements it.
type Store interface {
	ListSubjects(ctx context.Context) ([]reconcile.Subject, error)
	GetSubject(ctx context.Context, id string) (reconcile.Subject, error)
	CreateSubject(ctx context.Context, name, code string) (reconcile.Subject, error)
	ListStudents(ctx context.Context) ([]reconcile.Student, error)
	UserRole(ctx context.Context, id string) (string, error)
	UpsertMark(ctx context.Context, in MarkInput, day string, markedAt *time.Time) (Record, error)
	ListByStudent(ctx context.Context, studentID, from, to string) ([]Record, error)
	ListByDate(ctx context.Context, day string) ([]Record, error)
	PresentCountsBySubject(ctx context.Context, day string) (map[string]int, error)
	Totals(ctx context.Context, day string) (students, subjects, present int, err error)
	ExpirePresence(ctx context.Context, cutoff time.Time) (int64, error)
}

// Publisher is the subset of queue.Queue the service writes to.
type Publisher interface {
	Publish(ctx context.Context, msg queue.Message) error
}

// Service coordinates marking, reconciliation and reporting.
type Service struct {
	store      Store
	cache      SummaryCache // optional
	pub        Publisher    // optional
	clock      reconcile.Clock
	reconciler *reconcile.Reconciler
}

// NewService creates a service backed by a store. cache and pub may be nil.
func NewService(store Store, clock reconcile.Clock, cache SummaryCache, pub Publisher) *Service {
	if clock == nil {
		clock = reconcile.SystemClock(nil)
	}
	return &Service{
		store:      store,
		cache:      cache,
		pub:        pub,
		clock:      clock,
		reconciler: reconcile.New(clock),
	}
}

// Today returns the service's current calendar day.
func (s *Service) Today() string {
	return s.clock.Now().Format(reconcile.DateLayout)
}

// ListSubjects returns all subjects ordered by name.
func (s *Service) ListSubjects(ctx context.Context) ([]reconcile.Subject, error) {
	return s.store.ListSubjects(ctx)
}

// GetSubject returns one subject.
func (s *Service) GetSubject(ctx context.Context, id string) (reconcile.Subject, error) {
	return s.store.GetSubject(ctx, id)
}

// CreateSubject validates and stores a new subject.
func (s *Service) CreateSubject(ctx context.Context, name, code string) (reconcile.Subject, error) {
	name, code = strings.TrimSpace(name), strings.TrimSpace(code)
	if name == "" {
		return reconcile.Subject{}, ErrNameRequired
	}
	sub, err := s.store.CreateSubject(ctx, name, code)
	if err != nil {
		return reconcile.Subject{}, err
	}
	s.invalidate(ctx, s.Today())
	return sub, nil
}

// ListStudents returns the student roster.
func (s *Service) ListStudents(ctx context.Context) ([]reconcile.Student, error) {
	return s.store.ListStudents(ctx)
}

// Mark records today's status for a student in a subject. A PRESENT mark is
// stamped with the current time; an ABSENT mark clears it.
func (s *Service) Mark(ctx context.Context, in MarkInput) (Record, error) {
	return s.MarkAt(ctx, in, s.clock.Now())
}

// MarkAt records a mark as if it were made at now, on now's calendar day in
// the service clock's zone. It backs demo seeding and imports of past days.
func (s *Service) MarkAt(ctx context.Context, in MarkInput, now time.Time) (Record, error) {
	if !in.Status.Valid() {
		return Record{}, reconcile.ErrInvalidStatus
	}
	if err := s.requireRole(ctx, in.StudentID, "STUDENT", ErrStudentNotFound); err != nil {
		return Record{}, err
	}
	if err := s.requireRole(ctx, in.TeacherID, "TEACHER", ErrTeacherNotFound); err != nil {
		return Record{}, err
	}
	if _, err := s.store.GetSubject(ctx, in.SubjectID); err != nil {
		return Record{}, err
	}

	now = now.In(s.clock.Now().Location())
	day := now.Format(reconcile.DateLayout)
	var markedAt *time.Time
	if in.Status == reconcile.Present {
		markedAt = &now
	}
	rec, err := s.store.UpsertMark(ctx, in, day, markedAt)
	if err != nil {
		return Record{}, err
	}
	metrics.AttendanceMarks.WithLabelValues(string(rec.Status)).Inc()

	s.invalidate(ctx, day)
	s.publish(ctx, Marked{
		RecordID:  rec.ID,
		StudentID: rec.StudentID,
		SubjectID: rec.SubjectID,
		Status:    rec.Status,
		Day:       day,
	})
	return rec, nil
}

func (s *Service) requireRole(ctx context.Context, id, role string, notFound error) error {
	got, err := s.store.UserRole(ctx, id)
	if err != nil {
		return err
	}
	if got != role {
		return notFound
	}
	return nil
}

// StudentAttendance lists a student's raw marks, optionally bounded by from/to (YYYY-MM-DD).
func (s *Service) StudentAttendance(ctx context.Context, studentID, from, to string) ([]Record, error) {
	for _, d := range []string{from, to} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(reconcile.DateLayout, d); err != nil {
			return nil, ErrInvalidDateRange
		}
	}
	// fixed-width dates compare lexically
	if from != "" && to != "" && from > to {
		return nil, ErrInvalidDateRange
	}
	return s.store.ListByStudent(ctx, studentID, from, to)
}

// TodayAttendance lists every mark made today.
func (s *Service) TodayAttendance(ctx context.Context) ([]Record, error) {
	return s.AttendanceOn(ctx, s.Today())
}

// AttendanceOn lists every mark made on day (YYYY-MM-DD).
func (s *Service) AttendanceOn(ctx context.Context, day string) ([]Record, error) {
	if _, err := time.Parse(reconcile.DateLayout, day); err != nil {
		return nil, ErrInvalidDateRange
	}
	return s.store.ListByDate(ctx, day)
}

// StudentDashboard reconciles every subject against the student's marks.
// Stats cover all subjects; q only shapes the returned rows.
func (s *Service) StudentDashboard(ctx context.Context, studentID string, q reconcile.TableQuery) (View, error) {
	if err := s.requireRole(ctx, studentID, "STUDENT", ErrStudentNotFound); err != nil {
		return View{}, err
	}

	var subjects []reconcile.Subject
	var records []Record
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		subjects, err = s.store.ListSubjects(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		records, err = s.store.ListByStudent(gctx, studentID, "", "")
		return err
	})
	if err := g.Wait(); err != nil {
		return View{}, err
	}

	rows := s.reconciler.Reconcile(subjects, Events(records))
	metrics.Reconciliations.WithLabelValues("student").Inc()
	return newView(rows, q), nil
}

// SubjectRoster reconciles the student roster against today's marks for one subject.
func (s *Service) SubjectRoster(ctx context.Context, subjectID string, q reconcile.TableQuery) (View, error) {
	var subject reconcile.Subject
	var students []reconcile.Student
	var records []Record
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		subject, err = s.store.GetSubject(gctx, subjectID)
		return err
	})
	g.Go(func() error {
		var err error
		students, err = s.store.ListStudents(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		records, err = s.store.ListByDate(gctx, s.Today())
		return err
	})
	if err := g.Wait(); err != nil {
		return View{}, err
	}

	rows := s.reconciler.ReconcileRoster(students, subject, Events(records))
	metrics.Reconciliations.WithLabelValues("roster").Inc()
	return newView(rows, q), nil
}

// SubjectCounts returns today's PRESENT count per subject name, zero for unmarked subjects.
func (s *Service) SubjectCounts(ctx context.Context) (map[string]int, error) {
	return s.subjectCounts(ctx, s.Today())
}

func (s *Service) subjectCounts(ctx context.Context, day string) (map[string]int, error) {
	subjects, err := s.store.ListSubjects(ctx)
	if err != nil {
		return nil, err
	}
	byID, err := s.store.PresentCountsBySubject(ctx, day)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(subjects))
	for _, sub := range subjects {
		out[sub.Name] = byID[sub.ID]
	}
	return out, nil
}

// Summary returns today's dashboard overview, served from cache when possible.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	day := s.Today()
	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, day)
		if err != nil {
			log.Printf("summary cache get: %v", err)
		} else if ok {
			return cached, nil
		}
	}

	students, subjects, present, err := s.store.Totals(ctx, day)
	if err != nil {
		return Summary{}, err
	}
	perSubject, err := s.subjectCounts(ctx, day)
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{
		Day:           day,
		TotalStudents: students,
		TotalSubjects: subjects,
		PresentTotal:  present,
		AbsentTotal:   max(0, students-present),
		PerSubject:    perSubject,
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, sum); err != nil {
			log.Printf("summary cache set: %v", err)
		}
	}
	return sum, nil
}

// ExpirePresence resets PRESENT marks older than maxAge to ABSENT.
func (s *Service) ExpirePresence(ctx context.Context, maxAge time.Duration) (int64, error) {
	n, err := s.store.ExpirePresence(ctx, s.clock.Now().Add(-maxAge))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.PresenceExpired.Add(float64(n))
		s.invalidate(ctx, s.Today())
	}
	return n, nil
}

// InvalidateSummary drops the cached summary for day.
func (s *Service) InvalidateSummary(ctx context.Context, day string) {
	s.invalidate(ctx, day)
}

func (s *Service) invalidate(ctx context.Context, day string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, day); err != nil {
		log.Printf("summary cache invalidate %s: %v", day, err)
	}
}

func (s *Service) publish(ctx context.Context, m Marked) {
	if s.pub == nil {
		return
	}
	body, err := json.Marshal(m)
	if err != nil {
		log.Printf("encode marked message: %v", err)
		return
	}
	if err := s.pub.Publish(ctx, queue.Message{Type: MessageMarked, Body: body}); err != nil {
		log.Printf("queue publish failed: %v", err)
	}
}

// Events strips the joined display names from records.
func Events(records []Record) []reconcile.Event {
	out := make([]reconcile.Event, len(records))
	for i, r := range records {
		out[i] = r.Event
	}
	return out
}

func newView(rows []reconcile.Row, q reconcile.TableQuery) View {
	return View{
		Rows:  q.Apply(rows),
		Stats: reconcile.ComputeStats(rows),
		Total: len(rows),
	}
}
