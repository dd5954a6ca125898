package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/maheshrc27/reshare/internal/apperrors"
	"github.com/maheshrc27/reshare/internal/models"
	"github.com/maheshrc27/reshare/internal/scheduler"
	"github.com/rs/zerolog/log"
)

type QueueRepository interface {
	Create(ctx context.Context, tx *sql.Tx, item *models.QueueItem) (int64, error)
	GetByID(ctx context.Context, tenantKey string, id int64) (*models.QueueItem, error)
	GetPending(ctx context.Context, tenantKey string, now time.Time, limit int) ([]*models.QueueItem, error)
	ListByTenant(ctx context.Context, tenantKey string) ([]*models.QueueItem, error)
	LastScheduled(ctx context.Context, tenantKey string) (*time.Time, error)
	MarkProcessing(ctx context.Context, tenantKey string, id int64) (bool, error)
	GetStaleProcessing(ctx context.Context, tenantKey string, before time.Time) ([]*models.QueueItem, error)
	SaveRetryState(ctx context.Context, item *models.QueueItem, prevRetryCount int) error
	PromoteRetries(ctx context.Context, tenantKey string, now time.Time) (int64, error)
	ShiftSlotsForward(ctx context.Context, tenantKey string, itemID int64) (*scheduler.ShiftPlan, error)
	DeleteAllPending(ctx context.Context, tenantKey string) (int64, error)
	GetOverduePending(ctx context.Context, tenantKey string, now time.Time) ([]*models.QueueItem, error)
	RescheduleItems(ctx context.Context, tenantKey string, updates []scheduler.SlotUpdate) error
	Resolve(ctx context.Context, item *models.QueueItem, record *models.HistoryRecord) (int64, error)
	MarkFailed(ctx context.Context, tenantKey string, id int64, errMsg string) error
}

type queueRepository struct {
	db *sql.DB
}

func NewQueueRepository(db *sql.DB) QueueRepository {
	return &queueRepository{db: db}
}

const queueColumns = `id, tenant_key, library_item_id, scheduled_for, status, retry_count,
	max_retries, next_retry_at, last_error, created_at, updated_at`

func scanQueueItem(row rowScanner) (*models.QueueItem, error) {
	var item models.QueueItem
	err := row.Scan(&item.ID, &item.TenantKey, &item.LibraryItemID, &item.ScheduledFor, &item.Status,
		&item.RetryCount, &item.MaxRetries, &item.NextRetryAt, &item.LastError, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func scanQueueItems(rows *sql.Rows) ([]*models.QueueItem, error) {
	defer rows.Close()

	var items []*models.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *queueRepository) Create(ctx context.Context, tx *sql.Tx, item *models.QueueItem) (int64, error) {
	var id int64
	var err error

	query := `
		INSERT INTO queue_items (tenant_key, library_item_id, scheduled_for, status, max_retries)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	if tx != nil {
		err = tx.QueryRowContext(ctx, query, item.TenantKey, item.LibraryItemID, item.ScheduledFor, item.Status, item.MaxRetries).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, query, item.TenantKey, item.LibraryItemID, item.ScheduledFor, item.Status, item.MaxRetries).Scan(&id)
	}

	if err != nil {
		log.Error().Err(err).Str("tenant", item.TenantKey).Msg("create queue item")
		return 0, err
	}
	return id, nil
}

func (r *queueRepository) GetByID(ctx context.Context, tenantKey string, id int64) (*models.QueueItem, error) {
	query := `SELECT ` + queueColumns + ` FROM queue_items WHERE id = $1 AND tenant_key = $2`

	item, err := scanQueueItem(r.db.QueryRowContext(ctx, query, id, tenantKey))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		log.Error().Err(err).Int64("item_id", id).Msg("get queue item")
		return nil, err
	}
	return item, nil
}

func (r *queueRepository) GetPending(ctx context.Context, tenantKey string, now time.Time, limit int) ([]*models.QueueItem, error) {
	query := `
		SELECT ` + queueColumns + `
		FROM queue_items
		WHERE tenant_key = $1 AND status = 'pending' AND scheduled_for <= $2
		ORDER BY scheduled_for ASC, id ASC
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, tenantKey, now, limit)
	if err != nil {
		log.Error().Err(err).Str("tenant", tenantKey).Msg("get pending")
		return nil, err
	}

	items, err := scanQueueItems(rows)
	if err != nil {
		log.Error().Err(err).Str("tenant", tenantKey).Msg("scan pending")
		return nil, err
	}
	return items, nil
}

func (r *queueRepository) ListByTenant(ctx context.Context, tenantKey string) ([]*models.QueueItem, error) {
	query := `SELECT ` + queueColumns + ` FROM queue_items WHERE tenant_key = $1 ORDER BY scheduled_for ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, tenantKey)
	if err != nil {
		log.Error().Err(err).Str("tenant", tenantKey).Msg("list queue")
		return nil, err
	}

	items, err := scanQueueItems(rows)
	if err != nil {
		log.Error().Err(err).Str("tenant", tenantKey).Msg("scan queue")
		return nil, err
	}
	return items, nil
}

func (r *queueRepository) LastScheduled(ctx context.Context, tenantKey string) (*time.Time, error) {
	query := `SELECT MAX(scheduled_for) FROM queue_items WHERE tenant_key = $1 AND status IN ('pending', 'retrying')`

	var last sql.NullTime
	if err := r.db.QueryRowContext(ctx, query, tenantKey).Scan(&last); err != nil {
		log.Error().Err(err).Str("tenant", tenantKey).Msg("last scheduled")
		return nil, err
	}
	if !last.Valid {
		return nil, nil
	}
	return &last.Time, nil
}

// MarkProcessing moves a pending item to processing. It reports false when
// another caller got there first.
func (r *queueRepository) MarkProcessing(ctx context.Context, tenantKey string, id int64) (bool, error) {
	query := `
		UPDATE queue_items
		SET status = 'processing', updated_at = NOW()
		WHERE id = $1 AND tenant_key = $2 AND status = 'pending'
	`
	result, err := r.db.ExecContext(ctx, query, id, tenantKey)
	if err != nil {
		log.Error().Err(err).Int64("item_id", id).Msg("mark processing")
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// GetStaleProcessing returns items that entered processing before the cutoff
// and never settled.
func (r *queueRepository) GetStaleProcessing(ctx context.Context, tenantKey string, before time.Time) ([]*models.QueueItem, error) {
	query := `
		SELECT ` + queueColumns + `
		FROM queue_items
		WHERE tenant_key = $1 AND status = 'processing' AND updated_at < $2
		ORDER BY updated_at ASC, id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, tenantKey, before)
	if err != nil {
		log.Error().Err(err).Str("tenant", tenantKey).Msg("get stale processing")
		return nil, err
	}

	items, err := scanQueueItems(rows)
	if err != nil {
		log.Error().Err(err).Str("tenant", tenantKey).Msg("scan stale processing")
		return nil, err
	}
	return items, nil
}

// SaveRetryState persists the fields changed by scheduler.ApplyRetry. The
// update only applies if retry_count is still prevRetryCount.
func (r *queueRepository) SaveRetryState(ctx context.Context, item *models.QueueItem, prevRetryCount int) error {
	query := `
		UPDATE queue_items
		SET status = $1, retry_count = $2, next_retry_at = $3, last_error = $4, updated_at = NOW()
		WHERE id = $5 AND tenant_key = $6 AND retry_count = $7 AND status <> 'failed'
	`
	result, err := r.db.ExecContext(ctx, query, item.Status, item.RetryCount, item.NextRetryAt, item.LastError,
		item.ID, item.TenantKey, prevRetryCount)
	if err != nil {
		log.Error().Err(err).Int64("item_id", item.ID).Msg("save retry state")
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected != 1 {
		return apperrors.New(apperrors.ErrInvalidTransition, "save retry state", fmt.Errorf("item %d changed concurrently", item.ID))
	}
	return nil
}

// PromoteRetries returns due retrying items to pending at their retry time.
func (r *queueRepository) PromoteRetries(ctx context.Context, tenantKey string, now time.Time) (int64, error) {
	query := `
		UPDATE queue_items
		SET status = 'pending', scheduled_for = next_retry_at, next_retry_at = NULL, updated_at = NOW()
		WHERE tenant_key = $1 AND status = 'retrying' AND next_retry_at <= $2
	`
	result, err := r.db.ExecContext(ctx, query, tenantKey, now)
	if err != nil {
		log.Error().Err(err).Str("tenant", tenantKey).Msg("promote retries")
		return 0, err
	}
	return result.RowsAffected()
}

// ShiftSlotsForward force-posts itemID: in one serializable transaction it
// locks the tenant's pending order, moves every later item into its
// predecessor's slot and marks the forced item processing.
func (r *queueRepository) ShiftSlotsForward(ctx context.Context, tenantKey string, itemID int64) (*scheduler.ShiftPlan, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		log.Error().Err(err).Msg("begin shift")
		return nil, err
	}
	defer tx.Rollback()

	query := `
		SELECT ` + queueColumns + `
		FROM queue_items
		WHERE tenant_key = $1 AND status = 'pending'
		ORDER BY scheduled_for ASC, id ASC
		FOR UPDATE
	`
	rows, err := tx.QueryContext(ctx, query, tenantKey)
	if err != nil {
		log.Error().Err(err).Str("tenant", tenantKey).Msg("lock pending")
		return nil, err
	}
	pending, err := scanQueueItems(rows)
	if err != nil {
		log.Error().Err(err).Str("tenant", tenantKey).Msg("scan pending")
		return nil, err
	}

	index := scheduler.IndexOf(pending, itemID)
	if index < 0 {
		return nil, apperrors.New(apperrors.ErrNotFound, "shift slots", fmt.Errorf("pending item %d", itemID))
	}
	plan, err := scheduler.ShiftSlots(pending, index)
	if err != nil {
		return nil, err
	}

	if err := writeSlots(ctx, tx, tenantKey, plan.Updates); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE queue_items SET status = 'processing', updated_at = NOW()
		WHERE id = $1 AND tenant_key = $2
	`, itemID, tenantKey)
	if err != nil {
		log.Error().Err(err).Int64("item_id", itemID).Msg("mark forced")
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		log.Error().Err(err).Str("tenant", tenantKey).Msg("commit shift")
		return nil, err
	}

	plan.Forced.Status = models.QueueStatusProcessing
	plan.Apply(pending)
	return plan, nil
}

func writeSlots(ctx context.Context, tx *sql.Tx, tenantKey string, updates []scheduler.SlotUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE queue_items SET scheduled_for = $1, updated_at = NOW()
		WHERE id = $2 AND tenant_key = $3
	`)
	if err != nil {
		log.Error().Err(err).Msg("prepare slot update")
		return err
	}
	defer stmt.Close()

	for _, u := range updates {
		if _, err := stmt.ExecContext(ctx, u.ScheduledFor, u.ItemID, tenantKey); err != nil {
			log.Error().Err(err).Int64("item_id", u.ItemID).Msg("update slot")
			return err
		}
	}
	return nil
}

func (r *queueRepository) DeleteAllPending(ctx context.Context, tenantKey string) (int64, error) {
	query := `DELETE FROM queue_items WHERE tenant_key = $1 AND status = 'pending'`

	result, err := r.db.ExecContext(ctx, query, tenantKey)
	if err != nil {
		log.Error().Err(err).Str("tenant", tenantKey).Msg("delete pending")
		return 0, err
	}
	return result.RowsAffected()
}

func (r *queueRepository) GetOverduePending(ctx context.Context, tenantKey string, now time.Time) ([]*models.QueueItem, error) {
	query := `
		SELECT ` + queueColumns + `
		FROM queue_items
		WHERE tenant_key = $1 AND status = 'pending' AND scheduled_for < $2
		ORDER BY scheduled_for ASC, id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, tenantKey, now)
	if err != nil {
		log.Error().Err(err).Str("tenant", tenantKey).Msg("get overdue")
		return nil, err
	}

	items, err := scanQueueItems(rows)
	if err != nil {
		log.Error().Err(err).Str("tenant", tenantKey).Msg("scan overdue")
		return nil, err
	}
	return items, nil
}

func (r *queueRepository) RescheduleItems(ctx context.Context, tenantKey string, updates []scheduler.SlotUpdate) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		log.Error().Err(err).Msg("begin reschedule")
		return err
	}
	defer tx.Rollback()

	if err := writeSlots(ctx, tx, tenantKey, updates); err != nil {
		return err
	}
	return tx.Commit()
}

// Resolve moves a finished item to history: the record is appended, the
// queue row deleted and, for posted items, the library counter bumped.
func (r *queueRepository) Resolve(ctx context.Context, item *models.QueueItem, record *models.HistoryRecord) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		log.Error().Err(err).Msg("begin resolve")
		return 0, err
	}
	defer tx.Rollback()

	id, err := insertHistory(ctx, tx, record)
	if err != nil {
		return 0, err
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM queue_items WHERE id = $1 AND tenant_key = $2`, item.ID, item.TenantKey)
	if err != nil {
		log.Error().Err(err).Int64("item_id", item.ID).Msg("delete resolved item")
		return 0, err
	}
	if affected, _ := result.RowsAffected(); affected != 1 {
		return 0, apperrors.New(apperrors.ErrNotFound, "resolve", fmt.Errorf("queue item %d", item.ID))
	}

	if record.Outcome == models.OutcomePosted {
		_, err = tx.ExecContext(ctx, `
			UPDATE library_items SET times_posted = times_posted + 1
			WHERE id = $1 AND tenant_key = $2
		`, item.LibraryItemID, item.TenantKey)
		if err != nil {
			log.Error().Err(err).Int64("library_item_id", item.LibraryItemID).Msg("bump times posted")
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		log.Error().Err(err).Msg("commit resolve")
		return 0, err
	}
	return id, nil
}

func (r *queueRepository) MarkFailed(ctx context.Context, tenantKey string, id int64, errMsg string) error {
	query := `
		UPDATE queue_items
		SET status = 'failed', last_error = $1, next_retry_at = NULL, updated_at = NOW()
		WHERE id = $2 AND tenant_key = $3 AND status <> 'failed'
	`
	_, err := r.db.ExecContext(ctx, query, errMsg, id, tenantKey)
	if err != nil {
		log.Error().Err(err).Int64("item_id", id).Msg("mark failed")
		return err
	}
	return nil
}
