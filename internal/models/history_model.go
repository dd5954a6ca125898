package models

import "time"

type Outcome string

const (
	OutcomePosted   Outcome = "posted"
	OutcomeFailed   Outcome = "failed"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeRejected Outcome = "rejected"
)

// HistoryRecord is written once when a queue item finishes and never updated.
type HistoryRecord struct {
	ID             int64     `db:"id" json:"id"`
	TenantKey      string    `db:"tenant_key" json:"tenant_key"`
	QueueItemID    int64     `db:"queue_item_id" json:"queue_item_id"`
	LibraryItemID  int64     `db:"library_item_id" json:"library_item_id"`
	Outcome        Outcome   `db:"outcome" json:"outcome"`
	ScheduledFor   time.Time `db:"scheduled_for" json:"scheduled_for"`
	QueuedAt       time.Time `db:"queued_at" json:"queued_at"`
	ProcessedAt    time.Time `db:"processed_at" json:"processed_at"`
	RetryCount     int       `db:"retry_count" json:"retry_count"`
	ErrorMessage   string    `db:"error_message" json:"error_message,omitempty"`
	ExternalPostID string    `db:"external_post_id" json:"external_post_id,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// NewHistoryRecord snapshots item's lifecycle timestamps.
func NewHistoryRecord(item *QueueItem, outcome Outcome, processedAt time.Time) *HistoryRecord {
	return &HistoryRecord{
		TenantKey:     item.TenantKey,
		QueueItemID:   item.ID,
		LibraryItemID: item.LibraryItemID,
		Outcome:       outcome,
		ScheduledFor:  item.ScheduledFor,
		QueuedAt:      item.CreatedAt,
		ProcessedAt:   processedAt,
		RetryCount:    item.RetryCount,
		ErrorMessage:  item.LastError,
	}
}
