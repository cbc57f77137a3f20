package reconcile

import (
	"slices"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// StatusAll disables status filtering.
const StatusAll = "all"

// Sortable field names accepted by Sort.
const (
	FieldSubject     = "subject"
	FieldSubjectCode = "subjectCode"
	FieldStudentName = "studentName"
	FieldDate        = "date"
	FieldStatus      = "status"
	FieldLastUpdated = "lastUpdated"
	FieldMarkedBy    = "markedBy"
)

// Direction is a sort order.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// ParseDirection maps "desc" (any case) to Desc and everything else to Asc.
func ParseDirection(v string) Direction {
	if strings.EqualFold(strings.TrimSpace(v), string(Desc)) {
		return Desc
	}
	return Asc
}

// Field returns the string value of a named column, or "" when the name is unknown.
func (r Row) Field(name string) string {
	switch name {
	case FieldSubject:
		return r.SubjectName
	case FieldSubjectCode:
		return r.SubjectCode
	case FieldStudentName:
		return r.StudentName
	case FieldDate:
		return r.Date
	case FieldStatus:
		return string(r.Status)
	case FieldLastUpdated:
		if r.LastUpdated == nil {
			return ""
		}
		return r.LastUpdated.UTC().Format(time.RFC3339)
	case FieldMarkedBy:
		return r.MarkedBy
	}
	return ""
}

// Filter keeps rows matching statusFilter ("all" or "" for any) and containing
// search, case-insensitively, in the subject or student name. Order is preserved.
func Filter(rows []Row, statusFilter, search string) []Row {
	needle := strings.ToLower(strings.TrimSpace(search))
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if statusFilter != "" && statusFilter != StatusAll && string(r.Status) != statusFilter {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(r.SubjectName), needle) &&
			!strings.Contains(strings.ToLower(r.StudentName), needle) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Sort returns a copy of rows ordered by field using locale-aware collation.
// Equal keys keep their relative order.
func Sort(rows []Row, field string, dir Direction) []Row {
	out := slices.Clone(rows)
	if out == nil {
		out = []Row{}
	}
	// collate.Collator is not safe for concurrent use
	col := collate.New(language.Und)
	slices.SortStableFunc(out, func(a, b Row) int {
		c := col.CompareString(a.Field(field), b.Field(field))
		if dir == Desc {
			return -c
		}
		return c
	})
	return out
}

// TableQuery bundles the table controls applied by Apply.
type TableQuery struct {
	Status    string
	Search    string
	SortField string
	Direction Direction
}

// Apply filters then, when SortField is set, sorts rows.
func (q TableQuery) Apply(rows []Row) []Row {
	out := Filter(rows, q.Status, q.Search)
	if q.SortField != "" {
		out = Sort(out, q.SortField, q.Direction)
	}
	return out
}
