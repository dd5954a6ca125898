package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/maheshrc27/reshare/internal/models"
	"github.com/rs/zerolog/log"
)

// HistoryRepository is append-only: records are created and read, never
// updated or deleted.
type HistoryRepository interface {
	Create(ctx context.Context, tx *sql.Tx, rec *models.HistoryRecord) (int64, error)
	ListByTenant(ctx context.Context, tenantKey string, limit int) ([]*models.HistoryRecord, error)
	CountSince(ctx context.Context, tenantKey string, outcome models.Outcome, since time.Time) (int, error)
}

type historyRepository struct {
	db *sql.DB
}

func NewHistoryRepository(db *sql.DB) HistoryRepository {
	return &historyRepository{db: db}
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func insertHistory(ctx context.Context, q queryRower, rec *models.HistoryRecord) (int64, error) {
	query := `
		INSERT INTO history_records (tenant_key, queue_item_id, library_item_id, outcome, scheduled_for,
			queued_at, processed_at, retry_count, error_message, external_post_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`

	var id int64
	err := q.QueryRowContext(ctx, query, rec.TenantKey, rec.QueueItemID, rec.LibraryItemID, rec.Outcome,
		rec.ScheduledFor, rec.QueuedAt, rec.ProcessedAt, rec.RetryCount, rec.ErrorMessage, rec.ExternalPostID).Scan(&id)
	if err != nil {
		log.Error().Err(err).Int64("item_id", rec.QueueItemID).Msg("insert history")
		return 0, err
	}
	return id, nil
}

func (r *historyRepository) Create(ctx context.Context, tx *sql.Tx, rec *models.HistoryRecord) (int64, error) {
	if tx != nil {
		return insertHistory(ctx, tx, rec)
	}
	return insertHistory(ctx, r.db, rec)
}

func (r *historyRepository) ListByTenant(ctx context.Context, tenantKey string, limit int) ([]*models.HistoryRecord, error) {
	query := `
		SELECT id, tenant_key, queue_item_id, library_item_id, outcome, scheduled_for, queued_at,
			processed_at, retry_count, error_message, external_post_id, created_at
		FROM history_records
		WHERE tenant_key = $1
		ORDER BY processed_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, tenantKey, limit)
	if err != nil {
		log.Error().Err(err).Str("tenant", tenantKey).Msg("list history")
		return nil, err
	}
	defer rows.Close()

	var records []*models.HistoryRecord
	for rows.Next() {
		var h models.HistoryRecord
		err := rows.Scan(&h.ID, &h.TenantKey, &h.QueueItemID, &h.LibraryItemID, &h.Outcome, &h.ScheduledFor,
			&h.QueuedAt, &h.ProcessedAt, &h.RetryCount, &h.ErrorMessage, &h.ExternalPostID, &h.CreatedAt)
		if err != nil {
			log.Error().Err(err).Msg("scan history")
			return nil, err
		}
		records = append(records, &h)
	}
	return records, rows.Err()
}

func (r *historyRepository) CountSince(ctx context.Context, tenantKey string, outcome models.Outcome, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM history_records WHERE tenant_key = $1 AND outcome = $2 AND processed_at >= $3`

	var n int
	if err := r.db.QueryRowContext(ctx, query, tenantKey, outcome, since).Scan(&n); err != nil {
		log.Error().Err(err).Str("tenant", tenantKey).Msg("count history")
		return 0, err
	}
	return n, nil
}
