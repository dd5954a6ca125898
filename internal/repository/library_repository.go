package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/maheshrc27/reshare/internal/apperrors"
	"github.com/maheshrc27/reshare/internal/models"
	"github.com/rs/zerolog/log"
)

type LibraryRepository interface {
	Create(ctx context.Context, item *models.LibraryItem) (int64, error)
	GetByID(ctx context.Context, tenantKey string, id int64) (*models.LibraryItem, error)
	GetKnownExternalIDs(ctx context.Context, tenantKey, sourceType string) (map[string]struct{}, error)
	ListUnqueued(ctx context.Context, tenantKey, category string, limit int) ([]*models.LibraryItem, error)
}

type libraryRepository struct {
	db *sql.DB
}

func NewLibraryRepository(db *sql.DB) LibraryRepository {
	return &libraryRepository{db: db}
}

const libraryColumns = `id, tenant_key, source_type, external_id, content_hash, file_name, location,
	mime_type, file_size, category, caption, permalink, attribution, taken_at, times_posted, created_at`

func scanLibraryItem(row rowScanner) (*models.LibraryItem, error) {
	var li models.LibraryItem
	err := row.Scan(&li.ID, &li.TenantKey, &li.SourceType, &li.ExternalID, &li.ContentHash, &li.FileName,
		&li.Location, &li.MimeType, &li.FileSize, &li.Category, &li.Caption, &li.Permalink, &li.Attribution,
		&li.TakenAt, &li.TimesPosted, &li.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &li, nil
}

// Create inserts item. A second item with the same (tenant, source type,
// external id) yields apperrors.ErrDuplicate.
func (r *libraryRepository) Create(ctx context.Context, item *models.LibraryItem) (int64, error) {
	query := `
		INSERT INTO library_items (tenant_key, source_type, external_id, content_hash, file_name, location,
			mime_type, file_size, category, caption, permalink, attribution, taken_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query, item.TenantKey, item.SourceType, item.ExternalID, item.ContentHash,
		item.FileName, item.Location, item.MimeType, item.FileSize, item.Category, item.Caption, item.Permalink,
		item.Attribution, item.TakenAt).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, apperrors.New(apperrors.ErrDuplicate, "create library item", fmt.Errorf("%s/%s", item.SourceType, item.ExternalID))
		}
		log.Error().Err(err).Str("external_id", item.ExternalID).Msg("create library item")
		return 0, err
	}
	return id, nil
}

func (r *libraryRepository) GetByID(ctx context.Context, tenantKey string, id int64) (*models.LibraryItem, error) {
	query := `SELECT ` + libraryColumns + ` FROM library_items WHERE id = $1 AND tenant_key = $2`

	item, err := scanLibraryItem(r.db.QueryRowContext(ctx, query, id, tenantKey))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		log.Error().Err(err).Int64("library_item_id", id).Msg("get library item")
		return nil, err
	}
	return item, nil
}

func (r *libraryRepository) GetKnownExternalIDs(ctx context.Context, tenantKey, sourceType string) (map[string]struct{}, error) {
	query := `SELECT external_id FROM library_items WHERE tenant_key = $1 AND source_type = $2`

	rows, err := r.db.QueryContext(ctx, query, tenantKey, sourceType)
	if err != nil {
		log.Error().Err(err).Str("tenant", tenantKey).Msg("known external ids")
		return nil, err
	}
	defer rows.Close()

	known := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			log.Error().Err(err).Msg("scan external id")
			return nil, err
		}
		known[id] = struct{}{}
	}
	return known, rows.Err()
}

// ListUnqueued returns items not currently in the queue, least posted first.
// An empty category matches every item.
func (r *libraryRepository) ListUnqueued(ctx context.Context, tenantKey, category string, limit int) ([]*models.LibraryItem, error) {
	query := `
		SELECT ` + libraryColumns + `
		FROM library_items li
		WHERE li.tenant_key = $1
			AND ($2 = '' OR li.category = $2)
			AND NOT EXISTS (SELECT 1 FROM queue_items q WHERE q.library_item_id = li.id)
		ORDER BY li.times_posted ASC, li.created_at ASC
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, tenantKey, category, limit)
	if err != nil {
		log.Error().Err(err).Str("tenant", tenantKey).Msg("list unqueued")
		return nil, err
	}
	defer rows.Close()

	var items []*models.LibraryItem
	for rows.Next() {
		item, err := scanLibraryItem(rows)
		if err != nil {
			log.Error().Err(err).Msg("scan library item")
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
