// Package httpapi exposes the attendance backend over HTTP with gin.
package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/httpmiddleware"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// Options configures NewRouter.
type Options struct {
	Auth              *auth.Service
	Attendance        *attendance.Service
	CORSOrigins       []string
	OpenTeacherSignup bool

	// Limiter is applied to every route when set.
	Limiter *httpmiddleware.TokenBucket

	// Health is keyed by dependency name, e.g. "db" or "redis".
	Health map[string]HealthCheck
}

// NewRouter builds the gin engine with middleware and all routes.
func NewRouter(opts Options) *gin.Engine {
	h := &Handler{auth: opts.Auth, att: opts.Attendance, openTeacherSignup: opts.OpenTeacherSignup}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(httpmiddleware.CORS(opts.CORSOrigins))
	r.Use(httpmiddleware.SecurityHeaders())
	if opts.Limiter != nil {
		r.Use(opts.Limiter.GinMiddleware())
	}
	r.Use(httpmiddleware.Metrics())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", healthz(opts.Health))

	api := r.Group("/api")
	api.POST("/auth/register", h.register)
	api.POST("/auth/login", h.login)
	api.POST("/auth/refresh", h.refresh)

	authed := api.Group("", auth.Authenticate(opts.Auth.Signer()))
	authed.GET("/auth/profile", h.profile)
	authed.GET("/subjects", h.listSubjects)
	authed.GET("/subjects/:id", h.getSubject)
	authed.GET("/students/:id/attendance", auth.SelfOrRole("id", auth.RoleTeacher), h.studentAttendance)
	authed.GET("/students/:id/dashboard", auth.SelfOrRole("id", auth.RoleTeacher), h.studentDashboard)

	teacher := authed.Group("", auth.RequireRole(auth.RoleTeacher))
	teacher.POST("/subjects", h.createSubject)
	teacher.GET("/subjects/:id/roster", h.subjectRoster)
	teacher.GET("/students", h.listStudents)
	teacher.POST("/attendance/mark", h.mark)
	teacher.GET("/attendance/today", h.todayAttendance)
	teacher.GET("/dashboard/summary", h.summary)
	teacher.GET("/dashboard/subjectCounts", h.subjectCounts)
	teacher.GET("/users/students", h.usersByRole(auth.RoleStudent))
	teacher.GET("/users/teachers", h.usersByRole(auth.RoleTeacher))
	teacher.GET("/users/:id", h.getUser)
	teacher.POST("/users", h.createUser)

	return r
}

func healthz(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{"status": "ok"}
		code := http.StatusOK
		for name, check := range checks {
			ok := check(c.Request.Context())
			body[name] = ok
			if !ok {
				code = http.StatusServiceUnavailable
				body["status"] = "degraded"
			}
		}
		c.JSON(code, body)
	}
}
