package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"

	"rollcall/internal/attendance"
	"rollcall/internal/reconcile"
)

func (cli *commandLine) login(ctx context.Context, username, password string) error {
	sess, err := cli.api.Login(ctx, username, password)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "signed in as %s (%s)\n", sess.User.DisplayName(), sess.User.Role)
	fmt.Fprintf(cli.out, "export ROLLCALL_TOKEN=%s\n", sess.Tokens.AccessToken)
	return nil
}

// student fetches subjects and the student's marks together; neither is
// reconciled until both have arrived.
func (cli *commandLine) student(ctx context.Context, id string, q reconcile.TableQuery) error {
	if id == "" {
		me, err := cli.api.Profile(ctx)
		if err != nil {
			return err
		}
		id = me.ID
	}

	var subjects []reconcile.Subject
	var records []attendance.Record
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		subjects, err = cli.api.Subjects(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		records, err = cli.api.StudentAttendance(gctx, id, "", "")
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	rows := reconcile.New(cli.clock).Reconcile(subjects, attendance.Events(records))
	cli.printTable(rows, q, []string{reconcile.FieldSubject, reconcile.FieldSubjectCode, reconcile.FieldStatus, reconcile.FieldDate, reconcile.FieldLastUpdated})
	return nil
}

func (cli *commandLine) roster(ctx context.Context, subjectID string, q reconcile.TableQuery) error {
	var subject reconcile.Subject
	var students []reconcile.Student
	var records []attendance.Record
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		subject, err = cli.api.Subject(gctx, subjectID)
		return err
	})
	g.Go(func() error {
		var err error
		students, err = cli.api.Students(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		records, err = cli.api.TodayAttendance(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	rows := reconcile.New(cli.clock).ReconcileRoster(students, subject, attendance.Events(records))
	fmt.Fprintf(cli.out, "%s %s\n", subject.Name, subject.Code)
	cli.printTable(rows, q, []string{reconcile.FieldStudentName, reconcile.FieldStatus, reconcile.FieldDate, reconcile.FieldLastUpdated, reconcile.FieldMarkedBy})
	return nil
}

func (cli *commandLine) mark(ctx context.Context, studentID, subjectID string, status reconcile.Status) error {
	rec, err := cli.api.Mark(ctx, studentID, subjectID, status)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "marked %s %s in %s on %s\n", nameOr(rec.StudentName, rec.StudentID), rec.Status, nameOr(rec.SubjectName, rec.SubjectID), rec.Date)
	return nil
}

// printTable prints the filtered rows followed by stats over every row.
func (cli *commandLine) printTable(rows []reconcile.Row, q reconcile.TableQuery, columns []string) {
	shown := q.Apply(rows)
	tw := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	for i, col := range columns {
		if i > 0 {
			fmt.Fprint(tw, "\t")
		}
		fmt.Fprint(tw, col)
	}
	fmt.Fprintln(tw)
	for _, r := range shown {
		for i, col := range columns {
			if i > 0 {
				fmt.Fprint(tw, "\t")
			}
			fmt.Fprint(tw, cell(r, col))
		}
		fmt.Fprintln(tw)
	}
	_ = tw.Flush()

	st := reconcile.ComputeStats(rows)
	fmt.Fprintf(cli.out, "\nshowing %d of %d | present %d | absent %d | rate %d%%\n", len(shown), st.Total, st.Present, st.Absent, st.Rate)
}

func cell(r reconcile.Row, col string) string {
	if col == reconcile.FieldLastUpdated && r.LastUpdated != nil {
		return r.LastUpdated.Local().Format(time.DateTime)
	}
	if v := r.Field(col); v != "" {
		return v
	}
	return "-"
}

func nameOr(name, id string) string {
	if name != "" {
		return name
	}
	return id
}
