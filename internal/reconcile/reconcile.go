// Package reconcile turns a roster and a sparse list of attendance events
// into a dense, ordered view with one row per roster entry.
package reconcile

import "time"

// Policy decides which event wins when several target the same row.
type Policy int

const (
	// LastInList lets the last matching event in iteration order win.
	LastInList Policy = iota
	// LatestMarked lets the event with the newest timestamp win; ties go to the later event.
	LatestMarked
)

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithPolicy selects the overwrite policy.
func WithPolicy(p Policy) Option {
	return func(r *Reconciler) { r.policy = p }
}

// Reconciler builds attendance rows. It holds no mutable state and is safe for concurrent use.
type Reconciler struct {
	clock  Clock
	policy Policy
}

// New returns a Reconciler stamping default rows with clock's date.
func New(clock Clock, opts ...Option) *Reconciler {
	if clock == nil {
		clock = SystemClock(nil)
	}
	r := &Reconciler{clock: clock, policy: LastInList}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile returns one row per subject, in subject order, with status ABSENT
// unless an event for that subject says otherwise. Events for unknown subjects are ignored.
func (r *Reconciler) Reconcile(subjects []Subject, events []Event) []Row {
	now := r.clock.Now()
	today := now.Format(DateLayout)
	view := newOrderedView(len(subjects))
	for _, s := range subjects {
		view.add(s.ID, Row{
			SubjectID:   s.ID,
			SubjectName: s.Name,
			SubjectCode: s.Code,
			Status:      Absent,
			Date:        today,
		})
	}
	for _, e := range events {
		r.apply(view, e.SubjectID, e, now.Location())
	}
	return view.rows
}

// ReconcileRoster returns one row per student for a single subject. Only events
// for subjectID are considered; they are matched to rows by student id.
func (r *Reconciler) ReconcileRoster(students []Student, subject Subject, events []Event) []Row {
	now := r.clock.Now()
	today := now.Format(DateLayout)
	view := newOrderedView(len(students))
	for _, st := range students {
		view.add(st.ID, Row{
			SubjectID:   subject.ID,
			SubjectName: subject.Name,
			SubjectCode: subject.Code,
			StudentID:   st.ID,
			StudentName: st.Name,
			Status:      Absent,
			Date:        today,
		})
	}
	for _, e := range events {
		if e.SubjectID != subject.ID {
			continue
		}
		r.apply(view, e.StudentID, e, now.Location())
	}
	return view.rows
}

// apply overlays e onto the row for key. Event days are taken in loc, the
// zone "today" is computed in.
func (r *Reconciler) apply(view *orderedView, key string, e Event, loc *time.Location) {
	i, ok := view.index[key]
	if !ok {
		return
	}
	if r.policy == LatestMarked {
		ts := e.timestamp()
		if ts.Before(view.applied[i]) {
			return
		}
		view.applied[i] = ts
	}
	row := &view.rows[i]
	row.Status = e.Status
	if day, ok := e.Day(loc); ok {
		row.Date = day
	}
	row.LastUpdated = e.LastUpdated()
	row.MarkedBy = e.MarkedBy
}

// timestamp orders events under LatestMarked. Events carrying no time sort first.
func (e Event) timestamp() time.Time {
	if e.MarkedAt != nil {
		return *e.MarkedAt
	}
	if t := e.LastUpdated(); t != nil {
		return *t
	}
	if e.Date != "" {
		if t, err := time.Parse(DateLayout, e.Date); err == nil {
			return t
		}
	}
	return time.Time{}
}

// orderedView keeps rows in insertion order with an id -> position index.
// The first row added for an id owns it; duplicates keep their default values.
type orderedView struct {
	rows    []Row
	index   map[string]int
	applied []time.Time
}

func newOrderedView(n int) *orderedView {
	return &orderedView{
		rows:    make([]Row, 0, n),
		index:   make(map[string]int, n),
		applied: make([]time.Time, 0, n),
	}
}

func (v *orderedView) add(key string, row Row) {
	if _, dup := v.index[key]; !dup {
		v.index[key] = len(v.rows)
	}
	v.rows = append(v.rows, row)
	v.applied = append(v.applied, time.Time{})
}
