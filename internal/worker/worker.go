// Package worker consumes attendance queue messages and runs the presence-expiry sweep.
package worker

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"rollcall/internal/attendance"
	"rollcall/internal/metrics"
	"rollcall/internal/queue"
)

// Service is the part of attendance.Service the worker drives.
type Service interface {
	InvalidateSummary(ctx context.Context, day string)
	ExpirePresence(ctx context.Context, maxAge time.Duration) (int64, error)
}

// Worker reacts to marks and periodically expires stale presence.
type Worker struct {
	queue    queue.Queue
	svc      Service
	interval time.Duration
	maxAge   time.Duration
}

// New creates a worker. A non-positive interval disables the sweep.
func New(q queue.Queue, svc Service, interval, maxAge time.Duration) *Worker {
	return &Worker{queue: q, svc: svc, interval: interval, maxAge: maxAge}
}

// Run blocks until ctx is cancelled or the queue closes.
func (w *Worker) Run(ctx context.Context) error {
	messages, err := w.queue.Consume(ctx)
	if err != nil {
		return err
	}

	var tick <-chan time.Time
	if w.interval > 0 {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		tick = ticker.C
		w.Sweep(ctx)
	}

	log.Println("worker started, waiting for messages...")
	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				log.Println("worker stopped")
				return nil
			}
			w.Handle(ctx, msg)
		case <-tick:
			w.Sweep(ctx)
		case <-ctx.Done():
			log.Println("worker stopped")
			return nil
		}
	}
}

// Handle processes one message. Unknown types are counted and skipped.
func (w *Worker) Handle(ctx context.Context, msg queue.Message) {
	if msg.Type != attendance.MessageMarked {
		metrics.QueueMessages.WithLabelValues(msg.Type, "skipped").Inc()
		return
	}
	var m attendance.Marked
	if err := json.Unmarshal(msg.Body, &m); err != nil {
		log.Printf("decode %s message: %v", msg.Type, err)
		metrics.QueueMessages.WithLabelValues(msg.Type, "failed").Inc()
		return
	}
	w.svc.InvalidateSummary(ctx, m.Day)
	metrics.QueueMessages.WithLabelValues(msg.Type, "processed").Inc()
	log.Printf("mark %s processed: student %s subject %s %s", m.RecordID, m.StudentID, m.SubjectID, m.Status)
}

// Sweep expires presence older than the configured max age.
func (w *Worker) Sweep(ctx context.Context) {
	n, err := w.svc.ExpirePresence(ctx, w.maxAge)
	if err != nil {
		log.Printf("presence sweep failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("presence sweep reset %d mark(s)", n)
	}
}
