package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	JobStatusPending = "PENDING"
	JobStatusDone    = "DONE"
	JobStatusFailed  = "FAILED"
)

// QueuedJob is one row of the outbox-style job table. Payload is a flat,
// self-contained record: workers never re-query the originating entity.
type QueuedJob struct {
	gorm.Model
	Kind        string            `gorm:"index" json:"kind"`
	DedupKey    string            `gorm:"uniqueIndex" json:"dedup_key"`
	Payload     datatypes.JSONMap `json:"payload"`
	Status      string            `gorm:"index" json:"status"`
	Attempts    int               `json:"attempts"`
	ProcessedAt *time.Time        `json:"processed_at"`
}
