// Package queue is the job-queue collaborator behind the outbound effect
// dispatcher: at-least-once delivery of flat, self-contained payloads.
// Three drivers: a database outbox table (default), a redis list, and an
// in-memory queue used by tests.
package queue

import (
	"context"
	"sync"
)

// Job is one unit of outbound work. DedupKey lets consumers tolerate the
// duplicate deliveries the at-least-once contract permits.
type Job struct {
	Kind     string                 `json:"kind"`
	DedupKey string                 `json:"dedup_key"`
	Payload  map[string]interface{} `json:"payload"`
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	// Dequeue returns the next pending job, or nil when the queue is empty.
	Dequeue(ctx context.Context) (*Job, error)
	// Ack marks a dequeued job as processed. Redelivery after a missing Ack
	// is driver-dependent; consumers dedup on DedupKey regardless.
	Ack(ctx context.Context, job Job) error
}

// MemoryQueue is the in-process driver used in tests and as a last-resort
// fallback when redis is unavailable.
type MemoryQueue struct {
	mu   sync.Mutex
	jobs []Job
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return nil, nil
	}
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	return &job, nil
}

func (q *MemoryQueue) Ack(ctx context.Context, job Job) error {
	return nil
}

// Len reports the number of pending jobs. Test helper.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}
