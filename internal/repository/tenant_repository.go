package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/maheshrc27/reshare/internal/models"
	"github.com/rs/zerolog/log"
)

type TenantRepository interface {
	Get(ctx context.Context, tenantKey string) (*models.TenantSettings, error)
	Upsert(ctx context.Context, s *models.TenantSettings) error
	ListByPaused(ctx context.Context, paused bool) ([]*models.TenantSettings, error)
	SetPaused(ctx context.Context, tenantKey string, paused bool, at time.Time) error
	SetActiveAccount(ctx context.Context, tenantKey string, accountID *int64) error
	MarkOverdueSwept(ctx context.Context, tenantKey string, at time.Time) error
}

type tenantRepository struct {
	db *sql.DB
}

func NewTenantRepository(db *sql.DB) TenantRepository {
	return &tenantRepository{db: db}
}

const tenantColumns = `tenant_key, paused, paused_at, active_account_id, posts_per_day, posting_hour_start,
	posting_hour_end, category, last_overdue_sweep_at, created_at, updated_at`

func scanTenant(row rowScanner) (*models.TenantSettings, error) {
	var s models.TenantSettings
	err := row.Scan(&s.TenantKey, &s.Paused, &s.PausedAt, &s.ActiveAccountID, &s.PostsPerDay,
		&s.PostingHourStart, &s.PostingHourEnd, &s.Category, &s.LastOverdueSweepAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *tenantRepository) Get(ctx context.Context, tenantKey string) (*models.TenantSettings, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE tenant_key = $1`

	s, err := scanTenant(r.db.QueryRowContext(ctx, query, tenantKey))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		log.Error().Err(err).Str("tenant", tenantKey).Msg("get tenant")
		return nil, err
	}
	return s, nil
}

func (r *tenantRepository) Upsert(ctx context.Context, s *models.TenantSettings) error {
	query := `
		INSERT INTO tenants (tenant_key, posts_per_day, posting_hour_start, posting_hour_end, category)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_key) DO UPDATE
		SET posts_per_day = EXCLUDED.posts_per_day,
			posting_hour_start = EXCLUDED.posting_hour_start,
			posting_hour_end = EXCLUDED.posting_hour_end,
			category = EXCLUDED.category,
			updated_at = NOW()
	`
	_, err := r.db.ExecContext(ctx, query, s.TenantKey, s.PostsPerDay, s.PostingHourStart, s.PostingHourEnd, s.Category)
	if err != nil {
		log.Error().Err(err).Str("tenant", s.TenantKey).Msg("upsert tenant")
		return err
	}
	return nil
}

func (r *tenantRepository) ListByPaused(ctx context.Context, paused bool) ([]*models.TenantSettings, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE paused = $1 ORDER BY tenant_key`

	rows, err := r.db.QueryContext(ctx, query, paused)
	if err != nil {
		log.Error().Err(err).Msg("list tenants")
		return nil, err
	}
	defer rows.Close()

	var tenants []*models.TenantSettings
	for rows.Next() {
		s, err := scanTenant(rows)
		if err != nil {
			log.Error().Err(err).Msg("scan tenant")
			return nil, err
		}
		tenants = append(tenants, s)
	}
	return tenants, rows.Err()
}

// SetPaused records the pause time when pausing and clears it on resume.
func (r *tenantRepository) SetPaused(ctx context.Context, tenantKey string, paused bool, at time.Time) error {
	var pausedAt *time.Time
	if paused {
		pausedAt = &at
	}

	query := `UPDATE tenants SET paused = $1, paused_at = $2, updated_at = NOW() WHERE tenant_key = $3`
	_, err := r.db.ExecContext(ctx, query, paused, pausedAt, tenantKey)
	if err != nil {
		log.Error().Err(err).Str("tenant", tenantKey).Msg("set paused")
		return err
	}
	return nil
}

// SetActiveAccount selects the account the tenant posts with. A nil id
// falls back to the legacy credential.
func (r *tenantRepository) SetActiveAccount(ctx context.Context, tenantKey string, accountID *int64) error {
	query := `
		INSERT INTO tenants (tenant_key, active_account_id) VALUES ($1, $2)
		ON CONFLICT (tenant_key) DO UPDATE SET active_account_id = EXCLUDED.active_account_id, updated_at = NOW()
	`
	_, err := r.db.ExecContext(ctx, query, tenantKey, accountID)
	if err != nil {
		log.Error().Err(err).Str("tenant", tenantKey).Msg("set active account")
		return err
	}
	return nil
}

func (r *tenantRepository) MarkOverdueSwept(ctx context.Context, tenantKey string, at time.Time) error {
	query := `UPDATE tenants SET last_overdue_sweep_at = $1, updated_at = NOW() WHERE tenant_key = $2`
	_, err := r.db.ExecContext(ctx, query, at, tenantKey)
	if err != nil {
		log.Error().Err(err).Str("tenant", tenantKey).Msg("mark overdue swept")
		return err
	}
	return nil
}
