package reconcile

import (
	"errors"
	"strings"
	"time"
)

// DateLayout is the calendar-date format used for Row.Date.
const DateLayout = "2006-01-02"

// ErrInvalidStatus is returned when a status string is neither PRESENT nor ABSENT.
var ErrInvalidStatus = errors.New("invalid attendance status")

// Status is the resolved attendance state of a row or event.
type Status string

const (
	Present Status = "PRESENT"
	Absent  Status = "ABSENT"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == Present || s == Absent
}

// ParseStatus accepts any casing of PRESENT or ABSENT.
func ParseStatus(v string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", ErrInvalidStatus
	}
	return s, nil
}

// Subject is a course attendance is tracked against.
type Subject struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Code string `json:"code,omitempty"`
}

// Student is a roster entry for the per-subject view.
type Student struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Event is a single recorded mark for a student in a subject.
type Event struct {
	ID        string     `json:"id,omitempty"`
	StudentID string     `json:"studentId"`
	SubjectID string     `json:"subjectId"`
	Status    Status     `json:"status"`
	Date      string     `json:"date,omitempty"` // attendance day, YYYY-MM-DD
	MarkedAt  *time.Time `json:"markedAt,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	MarkedBy  string     `json:"markedBy,omitempty"`
}

// Day returns the calendar date the event applies to: MarkedAt's date in loc,
// else the attendance Date. ok is false when neither is set. A nil loc keeps
// MarkedAt's own zone.
func (e Event) Day(loc *time.Location) (day string, ok bool) {
	if e.MarkedAt != nil {
		t := *e.MarkedAt
		if loc != nil {
			t = t.In(loc)
		}
		return t.Format(DateLayout), true
	}
	if e.Date != "" {
		return e.Date, true
	}
	return "", false
}

// LastUpdated returns UpdatedAt, falling back to CreatedAt. Nil when both are unset.
func (e Event) LastUpdated() *time.Time {
	if e.UpdatedAt != nil {
		return e.UpdatedAt
	}
	return e.CreatedAt
}

// Row is one line of the dense attendance view.
type Row struct {
	SubjectID   string     `json:"subjectId,omitempty"`
	SubjectName string     `json:"subject,omitempty"`
	SubjectCode string     `json:"subjectCode,omitempty"`
	StudentID   string     `json:"studentId,omitempty"`
	StudentName string     `json:"studentName,omitempty"`
	Status      Status     `json:"status"`
	Date        string     `json:"date"`
	LastUpdated *time.Time `json:"lastUpdated"`
	MarkedBy    string     `json:"markedBy,omitempty"`
}

// Stats aggregates a set of rows.
type Stats struct {
	Total   int `json:"total"`
	Present int `json:"present"`
	Absent  int `json:"absent"`
	Rate    int `json:"rate"`
}
