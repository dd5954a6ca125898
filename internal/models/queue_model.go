package models

import "time"

type QueueStatus string

const (
	QueueStatusPending    QueueStatus = "pending"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusRetrying   QueueStatus = "retrying"
	QueueStatusFailed     QueueStatus = "failed"
)

func (s QueueStatus) Valid() bool {
	switch s {
	case QueueStatusPending, QueueStatusProcessing, QueueStatusRetrying, QueueStatusFailed:
		return true
	}
	return false
}

type QueueItem struct {
	ID            int64       `db:"id" json:"id"`
	TenantKey     string      `db:"tenant_key" json:"tenant_key"`
	LibraryItemID int64       `db:"library_item_id" json:"library_item_id"`
	ScheduledFor  time.Time   `db:"scheduled_for" json:"scheduled_for"`
	Status        QueueStatus `db:"status" json:"status"`
	RetryCount    int         `db:"retry_count" json:"retry_count"`
	MaxRetries    int         `db:"max_retries" json:"max_retries"`
	NextRetryAt   *time.Time  `db:"next_retry_at" json:"next_retry_at,omitempty"`
	LastError     string      `db:"last_error" json:"last_error,omitempty"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at" json:"updated_at"`
}
