// Package apiclient calls the rollcall REST API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/reconcile"
)

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// Client talks to the API with an optional bearer token.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

// New creates a client; baseURL includes the /api prefix.
func New(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// Login opens a session. The client keeps using its own Token; callers
// decide whether to adopt the returned access token.
func (c *Client) Login(ctx context.Context, username, password string) (auth.Session, error) {
	var out auth.Session
	err := c.do(ctx, http.MethodPost, "/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, &out)
	return out, err
}

// Profile returns the signed-in user.
func (c *Client) Profile(ctx context.Context) (auth.User, error) {
	var out auth.User
	err := c.do(ctx, http.MethodGet, "/auth/profile", nil, &out)
	return out, err
}

// Subjects lists all subjects.
func (c *Client) Subjects(ctx context.Context) ([]reconcile.Subject, error) {
	var out []reconcile.Subject
	err := c.do(ctx, http.MethodGet, "/subjects", nil, &out)
	return out, err
}

// Subject fetches one subject.
func (c *Client) Subject(ctx context.Context, id string) (reconcile.Subject, error) {
	var out reconcile.Subject
	err := c.do(ctx, http.MethodGet, "/subjects/"+url.PathEscape(id), nil, &out)
	return out, err
}

// Students lists the student roster. Teacher only.
func (c *Client) Students(ctx context.Context) ([]reconcile.Student, error) {
	var out []reconcile.Student
	err := c.do(ctx, http.MethodGet, "/students", nil, &out)
	return out, err
}

// StudentAttendance lists a student's marks; from and to are optional YYYY-MM-DD bounds.
func (c *Client) StudentAttendance(ctx context.Context, studentID, from, to string) ([]attendance.Record, error) {
	q := url.Values{}
	if from != "" {
		q.Set("from", from)
	}
	if to != "" {
		q.Set("to", to)
	}
	path := "/students/" + url.PathEscape(studentID) + "/attendance"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []attendance.Record
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// TodayAttendance lists every mark made today. Teacher only.
func (c *Client) TodayAttendance(ctx context.Context) ([]attendance.Record, error) {
	var out []attendance.Record
	err := c.do(ctx, http.MethodGet, "/attendance/today", nil, &out)
	return out, err
}

// Mark sets today's status for a student in a subject. Teacher only.
func (c *Client) Mark(ctx context.Context, studentID, subjectID string, status reconcile.Status) (attendance.Record, error) {
	var out attendance.Record
	err := c.do(ctx, http.MethodPost, "/attendance/mark", map[string]string{
		"studentId": studentID,
		"subjectId": subjectID,
		"status":    string(status),
	}, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
		apiErr.Message = payload.Error
	} else if msg := strings.TrimSpace(string(raw)); msg != "" {
		apiErr.Message = msg
	} else {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
