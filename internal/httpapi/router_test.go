package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/memstore"
	"rollcall/internal/reconcile"
)

var testNow = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

func init() {
	gin.SetMode(gin.TestMode)
}

type testAPI struct {
	router *gin.Engine
	store  *memstore.Store
}

func newTestAPI(t *testing.T, mutate ...func(*Options)) *testAPI {
	t.Helper()
	now := func() time.Time { return testNow }
	store := memstore.New(now)
	opts := Options{
		Auth:              auth.NewService(store, auth.NewSigner("test-key", "rollcall-test", time.Minute, time.Hour)),
		Attendance:        attendance.NewService(store, reconcile.ClockFunc(now), nil, nil),
		CORSOrigins:       []string{"*"},
		OpenTeacherSignup: true,
		Health:            map[string]HealthCheck{"db": func(context.Context) bool { return true }},
	}
	for _, m := range mutate {
		m(&opts)
	}
	return &testAPI{router: NewRouter(opts), store: store}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

// signup registers and logs in a user, returning its id and access token.
func (a *testAPI) signup(t *testing.T, username string, role auth.Role) (string, string) {
	t.Helper()
	w := a.do(t, http.MethodPost, "/api/auth/register", "", gin.H{
		"username": username, "password": "secret1", "name": username, "role": string(role),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = a.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"username": username, "password": "secret1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	sess := decode[auth.Session](t, w)
	return sess.User.ID, sess.Tokens.AccessToken
}

func (a *testAPI) subject(t *testing.T, token, name, code string) reconcile.Subject {
	t.Helper()
	w := a.do(t, http.MethodPost, "/api/subjects", token, gin.H{"name": name, "code": code})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[reconcile.Subject](t, w)
}

func TestAuthFlow(t *testing.T) {
	api := newTestAPI(t)
	api.signup(t, "mrs-t", auth.RoleTeacher)

	w := api.do(t, http.MethodPost, "/api/auth/register", "", gin.H{"username": "mrs-t", "password": "secret1"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = api.do(t, http.MethodPost, "/api/auth/register", "", gin.H{"username": "x", "password": "123"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodPost, "/api/auth/register", "", gin.H{"username": "x", "password": strings.Repeat("p", 80)})
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	w = api.do(t, http.MethodPost, "/api/auth/register", "", gin.H{"username": "y", "password": "secret1", "role": "ADMIN"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"username": "mrs-t", "password": "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = api.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"username": "mrs-t", "password": "secret1"})
	require.Equal(t, http.StatusOK, w.Code)
	sess := decode[auth.Session](t, w)
	assert.Equal(t, auth.RoleTeacher, sess.User.Role)

	w = api.do(t, http.MethodGet, "/api/auth/profile", sess.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "mrs-t", decode[auth.User](t, w).Username)
	assert.NotContains(t, w.Body.String(), "$2a$", "password hash must not leak")

	w = api.do(t, http.MethodPost, "/api/auth/refresh", "", gin.H{"refreshToken": sess.Tokens.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decode[auth.Session](t, w).Tokens.AccessToken)

	w = api.do(t, http.MethodPost, "/api/auth/refresh", "", gin.H{"refreshToken": sess.Tokens.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code, "refresh tokens are single use")
}

func TestTeacherSignupClosed(t *testing.T) {
	api := newTestAPI(t, func(o *Options) { o.OpenTeacherSignup = false })

	w := api.do(t, http.MethodPost, "/api/auth/register", "", gin.H{"username": "t", "password": "secret1", "role": "TEACHER"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(t, http.MethodPost, "/api/auth/register", "", gin.H{"username": "s", "password": "secret1"})
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestUsers(t *testing.T) {
	api := newTestAPI(t, func(o *Options) { o.OpenTeacherSignup = false })
	_, err := auth.NewService(api.store, nil).Register(context.Background(), "mrs-t", "secret1", "Mrs T", auth.RoleTeacher)
	require.NoError(t, err)
	w := api.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"username": "mrs-t", "password": "secret1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	teacher := decode[auth.Session](t, w).Tokens.AccessToken

	w = api.do(t, http.MethodPost, "/api/users", teacher, gin.H{"username": "mr-b", "password": "secret1", "name": "Mr B", "role": "teacher"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, auth.RoleTeacher, decode[auth.User](t, w).Role, "teachers may open teacher accounts while signup is closed")

	w = api.do(t, http.MethodPost, "/api/users", teacher, gin.H{"username": "ada", "password": "secret1"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	ada := decode[auth.User](t, w)
	assert.Equal(t, auth.RoleStudent, ada.Role)

	w = api.do(t, http.MethodPost, "/api/users", teacher, gin.H{"username": "ada", "password": "secret1"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = api.do(t, http.MethodGet, "/api/users/teachers", teacher, nil)
	require.Equal(t, http.StatusOK, w.Code)
	teachers := decode[[]auth.User](t, w)
	require.Len(t, teachers, 2)
	assert.Equal(t, "mr-b", teachers[0].Username)
	assert.Equal(t, "mrs-t", teachers[1].Username)

	w = api.do(t, http.MethodGet, "/api/users/students", teacher, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]auth.User](t, w), 1)

	w = api.do(t, http.MethodGet, "/api/users/"+ada.ID, teacher, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ada", decode[auth.User](t, w).Username)
	assert.NotContains(t, w.Body.String(), "$2a$")

	w = api.do(t, http.MethodGet, "/api/users/missing", teacher, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"username": "ada", "password": "secret1"})
	require.Equal(t, http.StatusOK, w.Code)
	student := decode[auth.Session](t, w).Tokens.AccessToken

	for _, path := range []string{"/api/users/teachers", "/api/users/" + ada.ID} {
		w = api.do(t, http.MethodGet, path, student, nil)
		assert.Equal(t, http.StatusForbidden, w.Code, path)
	}
	w = api.do(t, http.MethodPost, "/api/users", student, gin.H{"username": "eve", "password": "secret1", "role": "TEACHER"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAccessControl(t *testing.T) {
	api := newTestAPI(t)
	_, teacher := api.signup(t, "mrs-t", auth.RoleTeacher)
	adaID, ada := api.signup(t, "ada", auth.RoleStudent)
	bobID, _ := api.signup(t, "bob", auth.RoleStudent)
	math := api.subject(t, teacher, "Math", "M101")

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		want   int
	}{
		{name: "no token", method: http.MethodGet, path: "/api/subjects", want: http.StatusUnauthorized},
		{name: "garbage token", method: http.MethodGet, path: "/api/subjects", token: "nope", want: http.StatusUnauthorized},
		{name: "student lists subjects", method: http.MethodGet, path: "/api/subjects", token: ada, want: http.StatusOK},
		{name: "student creates subject", method: http.MethodPost, path: "/api/subjects", token: ada, body: gin.H{"name": "Art"}, want: http.StatusForbidden},
		{name: "student lists students", method: http.MethodGet, path: "/api/students", token: ada, want: http.StatusForbidden},
		{name: "student marks", method: http.MethodPost, path: "/api/attendance/mark", token: ada, body: gin.H{"studentId": adaID, "subjectId": math.ID, "status": "PRESENT"}, want: http.StatusForbidden},
		{name: "student reads own dashboard", method: http.MethodGet, path: "/api/students/" + adaID + "/dashboard", token: ada, want: http.StatusOK},
		{name: "student reads other dashboard", method: http.MethodGet, path: "/api/students/" + bobID + "/dashboard", token: ada, want: http.StatusForbidden},
		{name: "student reads other attendance", method: http.MethodGet, path: "/api/students/" + bobID + "/attendance", token: ada, want: http.StatusForbidden},
		{name: "teacher reads any dashboard", method: http.MethodGet, path: "/api/students/" + bobID + "/dashboard", token: teacher, want: http.StatusOK},
		{name: "student summary", method: http.MethodGet, path: "/api/dashboard/summary", token: ada, want: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := api.do(t, tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestMark(t *testing.T) {
	api := newTestAPI(t)
	teacherID, teacher := api.signup(t, "mrs-t", auth.RoleTeacher)
	adaID, _ := api.signup(t, "ada", auth.RoleStudent)
	math := api.subject(t, teacher, "Math", "M101")

	tests := []struct {
		name string
		body gin.H
		want int
	}{
		{name: "missing field", body: gin.H{"studentId": adaID, "status": "PRESENT"}, want: http.StatusBadRequest},
		{name: "bad status", body: gin.H{"studentId": adaID, "subjectId": math.ID, "status": "LATE"}, want: http.StatusBadRequest},
		{name: "teacher mismatch", body: gin.H{"studentId": adaID, "subjectId": math.ID, "status": "PRESENT", "teacherId": adaID}, want: http.StatusForbidden},
		{name: "unknown subject", body: gin.H{"studentId": adaID, "subjectId": "missing", "status": "PRESENT"}, want: http.StatusNotFound},
		{name: "teacher is not a student", body: gin.H{"studentId": teacherID, "subjectId": math.ID, "status": "PRESENT"}, want: http.StatusNotFound},
		{name: "ok", body: gin.H{"studentId": adaID, "subjectId": math.ID, "status": "present", "teacherId": teacherID}, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := api.do(t, http.MethodPost, "/api/attendance/mark", teacher, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}

	w := api.do(t, http.MethodGet, "/api/attendance/today", teacher, nil)
	require.Equal(t, http.StatusOK, w.Code)
	recs := decode[[]attendance.Record](t, w)
	require.Len(t, recs, 1)
	assert.Equal(t, reconcile.Present, recs[0].Status)
	assert.Equal(t, teacherID, recs[0].MarkedBy)
	assert.Equal(t, "2024-03-15", recs[0].Date)
}

func TestStudentDashboard(t *testing.T) {
	api := newTestAPI(t)
	_, teacher := api.signup(t, "mrs-t", auth.RoleTeacher)
	adaID, ada := api.signup(t, "ada", auth.RoleStudent)
	math := api.subject(t, teacher, "Math", "M101")
	api.subject(t, teacher, "Physics", "P101")
	api.subject(t, teacher, "biology", "")

	for _, st := range []string{"ABSENT", "PRESENT"} {
		w := api.do(t, http.MethodPost, "/api/attendance/mark", teacher, gin.H{"studentId": adaID, "subjectId": math.ID, "status": st})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	tests := []struct {
		name  string
		query string
		want  []string
		code  int
	}{
		{name: "all sorted by subject", query: "?sort=subject", want: []string{"biology", "Math", "Physics"}, code: http.StatusOK},
		{name: "present only", query: "?status=present", want: []string{"Math"}, code: http.StatusOK},
		{name: "absent desc", query: "?status=ABSENT&sort=subject&dir=desc", want: []string{"Physics", "biology"}, code: http.StatusOK},
		{name: "search", query: "?search=YS", want: []string{"Physics"}, code: http.StatusOK},
		{name: "bad status", query: "?status=late", code: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := api.do(t, http.MethodGet, "/api/students/"+adaID+"/dashboard"+tt.query, ada, nil)
			require.Equal(t, tt.code, w.Code, w.Body.String())
			if tt.code != http.StatusOK {
				return
			}
			view := decode[attendance.View](t, w)
			names := make([]string, 0, len(view.Rows))
			for _, r := range view.Rows {
				names = append(names, r.SubjectName)
			}
			assert.Equal(t, tt.want, names)
			assert.Equal(t, reconcile.Stats{Total: 3, Present: 1, Absent: 2, Rate: 33}, view.Stats, "stats ignore the filter")
			assert.Equal(t, 3, view.Total)
		})
	}

	w := api.do(t, http.MethodGet, "/api/students/"+adaID+"/attendance?from=2024-03-01&to=2024-03-31", ada, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]attendance.Record](t, w), 1, "the upsert keeps one row per day")

	w = api.do(t, http.MethodGet, "/api/students/"+adaID+"/attendance?from=2024-03-31&to=2024-03-01", ada, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRosterAndSummary(t *testing.T) {
	api := newTestAPI(t)
	_, teacher := api.signup(t, "mrs-t", auth.RoleTeacher)
	adaID, _ := api.signup(t, "ada", auth.RoleStudent)
	api.signup(t, "bob", auth.RoleStudent)
	math := api.subject(t, teacher, "Math", "M101")
	api.subject(t, teacher, "Physics", "P101")

	w := api.do(t, http.MethodPost, "/api/attendance/mark", teacher, gin.H{"studentId": adaID, "subjectId": math.ID, "status": "PRESENT"})
	require.Equal(t, http.StatusOK, w.Code)

	w = api.do(t, http.MethodGet, fmt.Sprintf("/api/subjects/%s/roster?sort=studentName&dir=desc", math.ID), teacher, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	view := decode[attendance.View](t, w)
	require.Len(t, view.Rows, 2)
	assert.Equal(t, "bob", view.Rows[0].StudentName)
	assert.Equal(t, reconcile.Absent, view.Rows[0].Status)
	assert.Equal(t, reconcile.Present, view.Rows[1].Status)
	assert.Equal(t, 50, view.Stats.Rate)

	w = api.do(t, http.MethodGet, "/api/subjects/missing/roster", teacher, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(t, http.MethodGet, "/api/dashboard/summary", teacher, nil)
	require.Equal(t, http.StatusOK, w.Code)
	sum := decode[attendance.Summary](t, w)
	assert.Equal(t, 2, sum.TotalStudents)
	assert.Equal(t, 2, sum.TotalSubjects)
	assert.Equal(t, 1, sum.PresentTotal)
	assert.Equal(t, 1, sum.AbsentTotal)

	w = api.do(t, http.MethodGet, "/api/dashboard/subjectCounts", teacher, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]int{"Math": 1, "Physics": 0}, decode[map[string]int](t, w))
}

func TestHealthz(t *testing.T) {
	api := newTestAPI(t)
	w := api.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	api = newTestAPI(t, func(o *Options) {
		o.Health["redis"] = func(context.Context) bool { return false }
	})
	w = api.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, false, body["redis"])
	assert.Equal(t, true, body["db"])
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: attendance.ErrStudentNotFound, want: http.StatusNotFound},
		{err: fmt.Errorf("load: %w", auth.ErrUserNotFound), want: http.StatusNotFound},
		{err: attendance.ErrSubjectExists, want: http.StatusConflict},
		{err: auth.ErrInvalidToken, want: http.StatusUnauthorized},
		{err: reconcile.ErrInvalidStatus, want: http.StatusBadRequest},
		{err: auth.ErrPasswordTooLong, want: http.StatusBadRequest},
		{err: attendance.ErrInvalidDateRange, want: http.StatusBadRequest},
		{err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
