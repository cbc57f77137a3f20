package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/reconcile"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

// api is the part of apiclient.Client the commands use.
type api interface {
	Login(ctx context.Context, username, password string) (auth.Session, error)
	Profile(ctx context.Context) (auth.User, error)
	Subjects(ctx context.Context) ([]reconcile.Subject, error)
	Subject(ctx context.Context, id string) (reconcile.Subject, error)
	Students(ctx context.Context) ([]reconcile.Student, error)
	StudentAttendance(ctx context.Context, studentID, from, to string) ([]attendance.Record, error)
	TodayAttendance(ctx context.Context) ([]attendance.Record, error)
	Mark(ctx context.Context, studentID, subjectID string, status reconcile.Status) (attendance.Record, error)
}

type commandLine struct {
	api   api
	out   io.Writer
	clock reconcile.Clock
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  login -username USERNAME                          - sign in and print an access token")
	fmt.Fprintln(cli.out, "  student [-id ID] [table flags]                    - a student's attendance per subject")
	fmt.Fprintln(cli.out, "  roster -subject ID [table flags]                  - today's roster for a subject")
	fmt.Fprintln(cli.out, "  mark -student ID -subject ID -status PRESENT|ABSENT - mark today's attendance")
	fmt.Fprintln(cli.out, "Table flags: -status all|PRESENT|ABSENT -search TEXT -sort FIELD -dir asc|desc")
}

type tableFlags struct {
	status, search, sort, dir *string
}

func addTableFlags(fs *flag.FlagSet) tableFlags {
	return tableFlags{
		status: fs.String("status", reconcile.StatusAll, "Filter by status: all, PRESENT or ABSENT."),
		search: fs.String("search", "", "Case-insensitive match on subject or student name."),
		sort:   fs.String("sort", "", "Sort field: subject, subjectCode, studentName, date, status, lastUpdated, markedBy."),
		dir:    fs.String("dir", "asc", "Sort direction: asc or desc."),
	}
}

func (f tableFlags) query() (reconcile.TableQuery, error) {
	q := reconcile.TableQuery{
		Status:    reconcile.StatusAll,
		Search:    *f.search,
		SortField: *f.sort,
		Direction: reconcile.ParseDirection(*f.dir),
	}
	if *f.status != "" && *f.status != reconcile.StatusAll {
		st, err := reconcile.ParseStatus(*f.status)
		if err != nil {
			return reconcile.TableQuery{}, err
		}
		q.Status = string(st)
	}
	return q, nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}
	ctx := context.Background()

	loginCmd := flag.NewFlagSet("login", flag.ContinueOnError)
	loginUname := loginCmd.String("username", "", "The username. The password will be prompted next.")

	studentCmd := flag.NewFlagSet("student", flag.ContinueOnError)
	studentID := studentCmd.String("id", "", "The student's id. Defaults to the signed-in user.")
	studentTable := addTableFlags(studentCmd)

	rosterCmd := flag.NewFlagSet("roster", flag.ContinueOnError)
	rosterSubject := rosterCmd.String("subject", "", "The subject's id.")
	rosterTable := addTableFlags(rosterCmd)

	markCmd := flag.NewFlagSet("mark", flag.ContinueOnError)
	markStudent := markCmd.String("student", "", "The student's id.")
	markSubject := markCmd.String("subject", "", "The subject's id.")
	markStatus := markCmd.String("status", "", "PRESENT or ABSENT.")

	for _, fs := range []*flag.FlagSet{loginCmd, studentCmd, rosterCmd, markCmd} {
		fs.SetOutput(cli.out)
	}

	switch args[1] {
	case "login":
		if err := loginCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *loginUname == "" {
			loginCmd.Usage()
			return errHelp
		}
		fmt.Fprint(cli.out, "Enter password:")
		pwd, err := readPasswordFunc(int(os.Stdin.Fd()))
		fmt.Fprintln(cli.out)
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			loginCmd.Usage()
			return errHelp
		}
		return cli.login(ctx, *loginUname, string(pwd))

	case "student":
		if err := studentCmd.Parse(args[2:]); err != nil {
			return err
		}
		q, err := studentTable.query()
		if err != nil {
			return err
		}
		return cli.student(ctx, *studentID, q)

	case "roster":
		if err := rosterCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *rosterSubject == "" {
			rosterCmd.Usage()
			return errHelp
		}
		q, err := rosterTable.query()
		if err != nil {
			return err
		}
		return cli.roster(ctx, *rosterSubject, q)

	case "mark":
		if err := markCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *markStudent == "" || *markSubject == "" || *markStatus == "" {
			markCmd.Usage()
			return errHelp
		}
		status, err := reconcile.ParseStatus(*markStatus)
		if err != nil {
			return err
		}
		return cli.mark(ctx, *markStudent, *markSubject, status)

	default:
		cli.printUsage()
		return errHelp
	}
}
