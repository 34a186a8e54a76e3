package queue

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/sede-open/Scope3EApi-sub000/database"
	"github.com/sede-open/Scope3EApi-sub000/models"
)

// OutboxQueue persists jobs in the queued_jobs table. The unique DedupKey
// index makes a retried enqueue of the same logical job a no-op, and rows
// survive process restarts, which is why it is the default driver.
type OutboxQueue struct {
	db *gorm.DB
}

func NewOutboxQueue(db *gorm.DB) *OutboxQueue {
	return &OutboxQueue{db: db}
}

func (q *OutboxQueue) Enqueue(ctx context.Context, job Job) error {
	row := models.QueuedJob{
		Kind:     job.Kind,
		DedupKey: job.DedupKey,
		Payload:  datatypes.JSONMap(job.Payload),
		Status:   models.JobStatusPending,
	}
	err := q.db.WithContext(ctx).Create(&row).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		// Same dedup key already queued: at-least-once satisfied.
		return nil
	}
	return err
}

// maxAttempts bounds redelivery of a job whose handler keeps failing.
const maxAttempts = 5

func (q *OutboxQueue) Dequeue(ctx context.Context) (*Job, error) {
	// Retire jobs that exhausted their attempts before picking the next one.
	// This runs outside the pick transaction: an empty queue rolls that
	// transaction back, and the retire write must survive it.
	if err := q.db.WithContext(ctx).Model(&models.QueuedJob{}).
		Where("status = ? AND attempts >= ?", models.JobStatusPending, maxAttempts).
		Update("status", models.JobStatusFailed).Error; err != nil {
		return nil, err
	}

	var row models.QueuedJob
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := database.ForUpdate(tx).
			Where("status = ?", models.JobStatusPending).
			Order("id").
			First(&row).Error
		if err != nil {
			return err
		}
		return tx.Model(&row).Update("attempts", row.Attempts+1).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &Job{
		Kind:     row.Kind,
		DedupKey: row.DedupKey,
		Payload:  map[string]interface{}(row.Payload),
	}, nil
}

func (q *OutboxQueue) Ack(ctx context.Context, job Job) error {
	now := time.Now()
	return q.db.WithContext(ctx).
		Model(&models.QueuedJob{}).
		Where("dedup_key = ?", job.DedupKey).
		Updates(map[string]interface{}{
			"status":       models.JobStatusDone,
			"processed_at": &now,
		}).Error
}

// Fail marks a job as permanently failed after the worker gives up on it.
func (q *OutboxQueue) Fail(ctx context.Context, job Job) error {
	return q.db.WithContext(ctx).
		Model(&models.QueuedJob{}).
		Where("dedup_key = ?", job.DedupKey).
		Update("status", models.JobStatusFailed).Error
}
