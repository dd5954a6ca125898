package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/maheshrc27/reshare/internal/models"
	"github.com/rs/zerolog/log"
)

type AccountRepository interface {
	Upsert(ctx context.Context, tx *sql.Tx, acc *models.Account) (int64, error)
	GetByID(ctx context.Context, tenantKey string, id int64) (*models.Account, error)
	ListByTenant(ctx context.Context, tenantKey string) ([]*models.Account, error)
	Remove(ctx context.Context, tenantKey string, id int64) error
}

type accountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) Upsert(ctx context.Context, tx *sql.Tx, acc *models.Account) (int64, error) {
	var err error
	var id int64

	query := `
		INSERT INTO accounts (tenant_key, platform, external_account_id, username, name, profile_picture_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_key, platform, external_account_id) DO UPDATE
		SET username = EXCLUDED.username,
			name = EXCLUDED.name,
			profile_picture_url = EXCLUDED.profile_picture_url,
			updated_at = NOW()
		RETURNING id
	`
	args := []any{acc.TenantKey, acc.Platform, acc.ExternalAccountID, acc.Username, acc.Name, acc.ProfilePicture}
	if tx != nil {
		err = tx.QueryRowContext(ctx, query, args...).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, query, args...).Scan(&id)
	}

	if err != nil {
		log.Error().Err(err).Str("tenant", acc.TenantKey).Msg("upsert account")
		return 0, err
	}
	return id, nil
}

func (r *accountRepository) GetByID(ctx context.Context, tenantKey string, id int64) (*models.Account, error) {
	query := `
		SELECT id, tenant_key, platform, external_account_id, username, name, profile_picture_url, created_at, updated_at
		FROM accounts
		WHERE id = $1 AND tenant_key = $2
	`

	var a models.Account
	err := r.db.QueryRowContext(ctx, query, id, tenantKey).Scan(&a.ID, &a.TenantKey, &a.Platform,
		&a.ExternalAccountID, &a.Username, &a.Name, &a.ProfilePicture, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		log.Error().Err(err).Int64("account_id", id).Msg("get account")
		return nil, err
	}
	return &a, nil
}

func (r *accountRepository) ListByTenant(ctx context.Context, tenantKey string) ([]*models.Account, error) {
	query := `
		SELECT id, tenant_key, platform, external_account_id, username, name, profile_picture_url, created_at, updated_at
		FROM accounts
		WHERE tenant_key = $1
		ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, query, tenantKey)
	if err != nil {
		log.Error().Err(err).Str("tenant", tenantKey).Msg("list accounts")
		return nil, err
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		var a models.Account
		err := rows.Scan(&a.ID, &a.TenantKey, &a.Platform, &a.ExternalAccountID, &a.Username, &a.Name,
			&a.ProfilePicture, &a.CreatedAt, &a.UpdatedAt)
		if err != nil {
			log.Error().Err(err).Msg("scan account")
			return nil, err
		}
		accounts = append(accounts, &a)
	}
	return accounts, rows.Err()
}

func (r *accountRepository) Remove(ctx context.Context, tenantKey string, id int64) error {
	query := `DELETE FROM accounts WHERE id = $1 AND tenant_key = $2`
	_, err := r.db.ExecContext(ctx, query, id, tenantKey)
	if err != nil {
		log.Error().Err(err).Int64("account_id", id).Msg("remove account")
		return err
	}
	return nil
}
