package queue

import (
	"context"
	"log"
	"time"
)

// Handler processes one job. Returning an error leaves the job un-acked;
// whether it comes back is up to the driver, so handlers must be safe to
// run twice for the same dedup key.
type Handler func(ctx context.Context, job Job) error

// Worker drains the queue on an interval and routes jobs to handlers by
// kind. Delivery is best effort relative to the state changes that enqueued
// the jobs: failures are logged, never propagated back to a mutation.
type Worker struct {
	q        Queue
	handlers map[string]Handler
	interval time.Duration
}

func NewWorker(q Queue, interval time.Duration) *Worker {
	return &Worker{
		q:        q,
		handlers: make(map[string]Handler),
		interval: interval,
	}
}

func (w *Worker) Handle(kind string, h Handler) {
	w.handlers[kind] = h
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Drain(ctx)
		}
	}
}

// Drain processes pending jobs until the queue is empty or ctx is cancelled.
func (w *Worker) Drain(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		job, err := w.q.Dequeue(ctx)
		if err != nil {
			log.Printf("[ERROR] worker: dequeue failed: %v", err)
			return
		}
		if job == nil {
			return
		}

		h, ok := w.handlers[job.Kind]
		if !ok {
			log.Printf("[ERROR] worker: no handler for job kind %s, dropping %s", job.Kind, job.DedupKey)
			_ = w.q.Ack(ctx, *job)
			continue
		}

		if err := h(ctx, *job); err != nil {
			log.Printf("[ERROR] worker: job %s (%s) failed: %v", job.Kind, job.DedupKey, err)
			continue
		}

		if err := w.q.Ack(ctx, *job); err != nil {
			log.Printf("[ERROR] worker: ack failed for %s: %v", job.DedupKey, err)
		}
	}
}
