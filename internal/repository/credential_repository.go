package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/maheshrc27/reshare/internal/models"
	"github.com/rs/zerolog/log"
)

type CredentialRepository interface {
	GetToken(ctx context.Context, service string, credType models.CredentialType, ownerScope string) (*models.Credential, error)
	CreateOrUpdate(ctx context.Context, cred *models.Credential) (int64, error)
	GetExpiringTokens(ctx context.Context, from, to time.Time) ([]*models.Credential, error)
	DeleteByScope(ctx context.Context, ownerScope string) error
}

type credentialRepository struct {
	db *sql.DB
}

func NewCredentialRepository(db *sql.DB) CredentialRepository {
	return &credentialRepository{db: db}
}

const credentialColumns = `id, service, credential_type, owner_scope, encrypted_value, issued_at, expires_at,
	last_refreshed_at, scopes, metadata, created_at, updated_at`

func scanCredential(row rowScanner) (*models.Credential, error) {
	var c models.Credential
	var metadata []byte
	err := row.Scan(&c.ID, &c.Service, &c.Type, &c.OwnerScope, &c.EncryptedValue, &c.IssuedAt, &c.ExpiresAt,
		&c.LastRefreshedAt, pq.Array(&c.Scopes), &metadata, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &c.Metadata); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

func (r *credentialRepository) GetToken(ctx context.Context, service string, credType models.CredentialType, ownerScope string) (*models.Credential, error) {
	query := `
		SELECT ` + credentialColumns + `
		FROM credentials
		WHERE service = $1 AND credential_type = $2 AND owner_scope = $3
	`
	cred, err := scanCredential(r.db.QueryRowContext(ctx, query, service, credType, ownerScope))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		log.Error().Err(err).Str("service", service).Str("scope", ownerScope).Msg("get token")
		return nil, err
	}
	return cred, nil
}

// CreateOrUpdate upserts on (service, credential_type, owner_scope), so a
// refresh replaces the ciphertext in place.
func (r *credentialRepository) CreateOrUpdate(ctx context.Context, cred *models.Credential) (int64, error) {
	metadata, err := json.Marshal(cred.Metadata)
	if err != nil {
		return 0, err
	}
	if cred.Metadata == nil {
		metadata = []byte("{}")
	}
	scopes := cred.Scopes
	if scopes == nil {
		scopes = []string{}
	}

	query := `
		INSERT INTO credentials (service, credential_type, owner_scope, encrypted_value, issued_at, expires_at,
			last_refreshed_at, scopes, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (service, credential_type, owner_scope) DO UPDATE
		SET encrypted_value = EXCLUDED.encrypted_value,
			issued_at = EXCLUDED.issued_at,
			expires_at = EXCLUDED.expires_at,
			last_refreshed_at = EXCLUDED.last_refreshed_at,
			scopes = EXCLUDED.scopes,
			metadata = EXCLUDED.metadata,
			updated_at = NOW()
		RETURNING id
	`

	var id int64
	err = r.db.QueryRowContext(ctx, query, cred.Service, cred.Type, cred.OwnerScope, cred.EncryptedValue,
		cred.IssuedAt, cred.ExpiresAt, cred.LastRefreshedAt, pq.Array(scopes), metadata).Scan(&id)
	if err != nil {
		log.Error().Err(err).Str("service", cred.Service).Str("scope", cred.OwnerScope).Msg("upsert credential")
		return 0, err
	}
	return id, nil
}

// GetExpiringTokens returns access credentials expiring in [from, to].
func (r *credentialRepository) GetExpiringTokens(ctx context.Context, from, to time.Time) ([]*models.Credential, error) {
	query := `
		SELECT ` + credentialColumns + `
		FROM credentials
		WHERE credential_type = 'access' AND expires_at BETWEEN $1 AND $2
		ORDER BY expires_at ASC
	`
	rows, err := r.db.QueryContext(ctx, query, from, to)
	if err != nil {
		log.Error().Err(err).Msg("get expiring tokens")
		return nil, err
	}
	defer rows.Close()

	var creds []*models.Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			log.Error().Err(err).Msg("scan credential")
			return nil, err
		}
		creds = append(creds, cred)
	}
	return creds, rows.Err()
}

func (r *credentialRepository) DeleteByScope(ctx context.Context, ownerScope string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM credentials WHERE owner_scope = $1`, ownerScope)
	if err != nil {
		log.Error().Err(err).Str("scope", ownerScope).Msg("delete credentials")
		return err
	}
	return nil
}
