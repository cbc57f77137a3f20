// Package seed loads a small demo school: six subjects, a teacher, five
// students and a few PRESENT marks for the previous day. Anything that
// already exists is left alone, so running it on every start is safe.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/reconcile"
)

type account struct {
	username string
	name     string
}

var subjects = []reconcile.Subject{
	{Name: "Math", Code: "MATH101"},
	{Name: "Science", Code: "SCI201"},
	{Name: "English", Code: "ENG301"},
	{Name: "History", Code: "HIS401"},
	{Name: "Computer Science", Code: "CS501"},
	{Name: "Physics", Code: "PHY601"},
}

var (
	teacher  = account{"teacher", "John Smith"}
	students = []account{
		{"alice", "Alice Johnson"},
		{"bob", "Bob Brown"},
		{"carol", "Carol Davis"},
		{"david", "David Wilson"},
		{"emma", "Emma Martinez"},
	}
)

const (
	TeacherPassword = "teacher123"
	StudentPassword = "student123"

	// the first markedStudents students are PRESENT in the first markedSubjects subjects
	markedStudents = 3
	markedSubjects = 2
)

// Demo seeds the demo data relative to now.
func Demo(ctx context.Context, users *auth.Service, att *attendance.Service, now time.Time) error {
	subjectIDs, err := seedSubjects(ctx, att)
	if err != nil {
		return err
	}
	if err := seedUser(ctx, users, teacher, TeacherPassword, auth.RoleTeacher); err != nil {
		return err
	}
	for _, s := range students {
		if err := seedUser(ctx, users, s, StudentPassword, auth.RoleStudent); err != nil {
			return err
		}
	}
	return seedMarks(ctx, users, att, subjectIDs, now.AddDate(0, 0, -1))
}

// seedSubjects creates missing subjects and returns every seeded subject's id by name.
func seedSubjects(ctx context.Context, att *attendance.Service) (map[string]string, error) {
	for _, s := range subjects {
		_, err := att.CreateSubject(ctx, s.Name, s.Code)
		switch {
		case err == nil:
			log.Printf("seeded subject %s (%s)", s.Name, s.Code)
		case errors.Is(err, attendance.ErrSubjectExists):
		default:
			return nil, fmt.Errorf("seed subject %s: %w", s.Name, err)
		}
	}
	all, err := att.ListSubjects(ctx)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]string, len(all))
	for _, s := range all {
		ids[s.Name] = s.ID
	}
	return ids, nil
}

func seedUser(ctx context.Context, users *auth.Service, a account, password string, role auth.Role) error {
	_, err := users.Register(ctx, a.username, password, a.name, role)
	switch {
	case err == nil:
		log.Printf("seeded %s %s", role, a.username)
	case errors.Is(err, auth.ErrUserExists):
	default:
		return fmt.Errorf("seed user %s: %w", a.username, err)
	}
	return nil
}

func seedMarks(ctx context.Context, users *auth.Service, att *attendance.Service, subjectIDs map[string]string, at time.Time) error {
	day := at.Format(reconcile.DateLayout)
	existing, err := att.AttendanceOn(ctx, day)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		log.Printf("attendance for %s already present, skipping sample marks", day)
		return nil
	}

	teacherID, err := userID(ctx, users, auth.RoleTeacher, teacher.username)
	if err != nil {
		return err
	}
	for _, s := range students[:markedStudents] {
		studentID, err := userID(ctx, users, auth.RoleStudent, s.username)
		if err != nil {
			return err
		}
		for _, sub := range subjects[:markedSubjects] {
			_, err := att.MarkAt(ctx, attendance.MarkInput{
				StudentID: studentID,
				SubjectID: subjectIDs[sub.Name],
				Status:    reconcile.Present,
				TeacherID: teacherID,
			}, at)
			if err != nil {
				return fmt.Errorf("seed mark %s/%s: %w", s.username, sub.Name, err)
			}
		}
	}
	log.Printf("seeded sample attendance for %s", day)
	return nil
}

// userID finds username among the accounts holding role. A demo name taken
// by an account of the other role is reported as not found.
func userID(ctx context.Context, users *auth.Service, role auth.Role, username string) (string, error) {
	list, err := users.UsersByRole(ctx, role)
	if err != nil {
		return "", err
	}
	for _, u := range list {
		if u.Username == username {
			return u.ID, nil
		}
	}
	return "", fmt.Errorf("seed %s %s: %w", role, username, auth.ErrUserNotFound)
}
