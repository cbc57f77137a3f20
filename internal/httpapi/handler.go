package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/reconcile"
)

var errTeacherMismatch = errors.New("teacherId must match the signed-in teacher")

// Handler serves the REST API on top of the auth and attendance services.
type Handler struct {
	auth              *auth.Service
	att               *attendance.Service
	openTeacherSignup bool
}

type registerRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	role, err := auth.ParseRole(req.Role)
	if err != nil {
		respondErr(c, err)
		return
	}
	if role == auth.RoleTeacher && !h.openTeacherSignup {
		c.JSON(http.StatusForbidden, gin.H{"error": "teacher signup is closed"})
		return
	}
	u, err := h.auth.Register(c.Request.Context(), req.Username, req.Password, req.Name, role)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, u)
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	sess, err := h.auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *Handler) refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refreshToken" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	sess, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *Handler) profile(c *gin.Context) {
	claims, _ := auth.ClaimsFrom(c)
	u, err := h.auth.Profile(c.Request.Context(), claims.UserID())
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *Handler) usersByRole(role auth.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		users, err := h.auth.UsersByRole(c.Request.Context(), role)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, users)
	}
}

func (h *Handler) getUser(c *gin.Context) {
	u, err := h.auth.Profile(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// createUser lets a signed-in teacher open accounts of either role,
// whether or not public teacher signup is open.
func (h *Handler) createUser(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	role, err := auth.ParseRole(req.Role)
	if err != nil {
		respondErr(c, err)
		return
	}
	u, err := h.auth.Register(c.Request.Context(), req.Username, req.Password, req.Name, role)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, u)
}

func (h *Handler) listSubjects(c *gin.Context) {
	subjects, err := h.att.ListSubjects(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, subjects)
}

func (h *Handler) getSubject(c *gin.Context) {
	sub, err := h.att.GetSubject(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (h *Handler) createSubject(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
		Code string `json:"code"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	sub, err := h.att.CreateSubject(c.Request.Context(), req.Name, req.Code)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, sub)
}

func (h *Handler) listStudents(c *gin.Context) {
	students, err := h.att.ListStudents(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, students)
}

type markRequest struct {
	StudentID string `json:"studentId" binding:"required"`
	SubjectID string `json:"subjectId" binding:"required"`
	Status    string `json:"status" binding:"required"`
	TeacherID string `json:"teacherId"`
}

func (h *Handler) mark(c *gin.Context) {
	var req markRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	status, err := reconcile.ParseStatus(req.Status)
	if err != nil {
		badRequest(c, err)
		return
	}
	claims, _ := auth.ClaimsFrom(c)
	teacherID := claims.UserID()
	if req.TeacherID != "" && req.TeacherID != teacherID {
		c.JSON(http.StatusForbidden, gin.H{"error": errTeacherMismatch.Error()})
		return
	}
	rec, err := h.att.Mark(c.Request.Context(), attendance.MarkInput{
		StudentID: req.StudentID,
		SubjectID: req.SubjectID,
		Status:    status,
		TeacherID: teacherID,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) todayAttendance(c *gin.Context) {
	recs, err := h.att.TodayAttendance(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, recs)
}

func (h *Handler) studentAttendance(c *gin.Context) {
	recs, err := h.att.StudentAttendance(c.Request.Context(), c.Param("id"), c.Query("from"), c.Query("to"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, recs)
}

func (h *Handler) studentDashboard(c *gin.Context) {
	q, err := tableQuery(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	view, err := h.att.StudentDashboard(c.Request.Context(), c.Param("id"), q)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) subjectRoster(c *gin.Context) {
	q, err := tableQuery(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	view, err := h.att.SubjectRoster(c.Request.Context(), c.Param("id"), q)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) summary(c *gin.Context) {
	sum, err := h.att.Summary(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h *Handler) subjectCounts(c *gin.Context) {
	counts, err := h.att.SubjectCounts(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, counts)
}

// tableQuery reads status, search, sort and dir from the query string.
func tableQuery(c *gin.Context) (reconcile.TableQuery, error) {
	q := reconcile.TableQuery{
		Status:    reconcile.StatusAll,
		Search:    c.Query("search"),
		SortField: c.Query("sort"),
		Direction: reconcile.ParseDirection(c.Query("dir")),
	}
	if v := strings.TrimSpace(c.Query("status")); v != "" && !strings.EqualFold(v, reconcile.StatusAll) {
		st, err := reconcile.ParseStatus(v)
		if err != nil {
			return reconcile.TableQuery{}, err
		}
		q.Status = string(st)
	}
	return q, nil
}
