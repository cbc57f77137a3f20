// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rollcall",
		Name:      "http_requests_total",
		Help:      "HTTP requests by route, method and status code.",
	}, []string{"route", "method", "code"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "rollcall",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})

	AttendanceMarks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rollcall",
		Name:      "attendance_marks_total",
		Help:      "Attendance marks written, by status.",
	}, []string{"status"})

	Reconciliations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rollcall",
		Name:      "reconciliations_total",
		Help:      "Reconciled views built, by kind (student, roster).",
	}, []string{"kind"})

	PresenceExpired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rollcall",
		Name:      "presence_expired_total",
		Help:      "PRESENT marks reset to ABSENT by the expiry sweep.",
	})

	QueueMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rollcall",
		Name:      "queue_messages_total",
		Help:      "Queue messages handled by the worker, by type and outcome.",
	}, []string{"type", "outcome"})

	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rollcall",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the rate limiter.",
	})
)
