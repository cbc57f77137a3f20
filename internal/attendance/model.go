package attendance

import (
	"errors"
	"fmt"

	"rollcall/internal/reconcile"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrStudentNotFound  = fmt.Errorf("student %w", ErrNotFound)
	ErrSubjectNotFound  = fmt.Errorf("subject %w", ErrNotFound)
	ErrTeacherNotFound  = fmt.Errorf("teacher %w", ErrNotFound)
	ErrSubjectExists    = errors.New("subject with this name or code already exists")
	ErrNameRequired     = errors.New("name is required")
	ErrInvalidDateRange = errors.New("invalid date range")
)

// MessageMarked is the queue message type published after a mark.
const MessageMarked = "attendance.marked"

// Record is a stored attendance mark with display names joined in.
type Record struct {
	reconcile.Event
	StudentName string `json:"studentName,omitempty"`
	SubjectName string `json:"subjectName,omitempty"`
}

// MarkInput is a teacher's request to set a student's status in a subject for today.
type MarkInput struct {
	StudentID string
	SubjectID string
	Status    reconcile.Status
	TeacherID string
}

// Marked is the payload of a MessageMarked queue message.
type Marked struct {
	RecordID  string           `json:"recordId"`
	StudentID string           `json:"studentId"`
	SubjectID string           `json:"subjectId"`
	Status    reconcile.Status `json:"status"`
	Day       string           `json:"day"`
}

// View is a reconciled table plus statistics over all of its rows.
type View struct {
	Rows  []reconcile.Row `json:"rows"`
	Stats reconcile.Stats `json:"stats"`
	// Total is the row count before filtering.
	Total int `json:"total"`
}

// Summary is the teacher dashboard overview for one day.
type Summary struct {
	Day           string         `json:"day"`
	TotalStudents int            `json:"totalStudents"`
	TotalSubjects int            `json:"totalSubjects"`
	PresentTotal  int            `json:"presentTotal"`
	AbsentTotal   int            `json:"absentTotal"`
	PerSubject    map[string]int `json:"perSubject"`
}
