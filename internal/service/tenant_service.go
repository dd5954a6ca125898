package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maheshrc27/reshare/internal/apperrors"
	"github.com/maheshrc27/reshare/internal/models"
	"github.com/maheshrc27/reshare/internal/repository"
	"github.com/rs/zerolog/log"
)

type TenantService interface {
	GetSettings(ctx context.Context, tenantKey string) (*models.TenantSettings, error)
	UpdateSettings(ctx context.Context, s *models.TenantSettings) error
	Pause(ctx context.Context, tenantKey string) error
	Resume(ctx context.Context, tenantKey string) error
	ListAccounts(ctx context.Context, tenantKey string) ([]*models.Account, error)
	ActivateAccount(ctx context.Context, tenantKey string, accountID int64) error
	RemoveAccount(ctx context.Context, tenantKey string, accountID int64) error
}

type tenantService struct {
	tenants  repository.TenantRepository
	accounts repository.AccountRepository
	creds    repository.CredentialRepository
	now      func() time.Time
}

func NewTenantService(tenants repository.TenantRepository, accounts repository.AccountRepository, creds repository.CredentialRepository) TenantService {
	return &tenantService{
		tenants:  tenants,
		accounts: accounts,
		creds:    creds,
		now:      time.Now,
	}
}

func (s *tenantService) GetSettings(ctx context.Context, tenantKey string) (*models.TenantSettings, error) {
	settings, err := s.tenants.Get(ctx, tenantKey)
	if err != nil {
		return nil, err
	}
	if settings == nil {
		return models.DefaultTenantSettings(tenantKey), nil
	}
	return settings, nil
}

func (s *tenantService) UpdateSettings(ctx context.Context, settings *models.TenantSettings) error {
	if settings.TenantKey == "" {
		return errors.New("tenant key is empty")
	}
	if settings.PostsPerDay < 1 || settings.PostsPerDay > 24 {
		return fmt.Errorf("posts per day %d must be between 1 and 24", settings.PostsPerDay)
	}
	if settings.PostingHourStart < 0 || settings.PostingHourEnd > 24 || settings.PostingHourStart >= settings.PostingHourEnd {
		return fmt.Errorf("posting hours %d-%d are not a valid window", settings.PostingHourStart, settings.PostingHourEnd)
	}
	return s.tenants.Upsert(ctx, settings)
}

func (s *tenantService) Pause(ctx context.Context, tenantKey string) error {
	if err := s.ensure(ctx, tenantKey); err != nil {
		return err
	}
	log.Info().Str("tenant", tenantKey).Msg("queue paused")
	return s.tenants.SetPaused(ctx, tenantKey, true, s.now())
}

func (s *tenantService) Resume(ctx context.Context, tenantKey string) error {
	if err := s.ensure(ctx, tenantKey); err != nil {
		return err
	}
	log.Info().Str("tenant", tenantKey).Msg("queue resumed")
	return s.tenants.SetPaused(ctx, tenantKey, false, s.now())
}

func (s *tenantService) ensure(ctx context.Context, tenantKey string) error {
	settings, err := s.tenants.Get(ctx, tenantKey)
	if err != nil || settings != nil {
		return err
	}
	return s.tenants.Upsert(ctx, models.DefaultTenantSettings(tenantKey))
}

func (s *tenantService) ListAccounts(ctx context.Context, tenantKey string) ([]*models.Account, error) {
	return s.accounts.ListByTenant(ctx, tenantKey)
}

func (s *tenantService) account(ctx context.Context, tenantKey string, accountID int64) (*models.Account, error) {
	account, err := s.accounts.GetByID(ctx, tenantKey, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, apperrors.New(apperrors.ErrNotFound, "account", fmt.Errorf("account %d", accountID))
	}
	return account, nil
}

func (s *tenantService) ActivateAccount(ctx context.Context, tenantKey string, accountID int64) error {
	if _, err := s.account(ctx, tenantKey, accountID); err != nil {
		return err
	}
	return s.tenants.SetActiveAccount(ctx, tenantKey, &accountID)
}

// RemoveAccount deletes the account with its credentials. If it was active
// the tenant falls back to the legacy credential.
func (s *tenantService) RemoveAccount(ctx context.Context, tenantKey string, accountID int64) error {
	if _, err := s.account(ctx, tenantKey, accountID); err != nil {
		return err
	}

	if err := s.creds.DeleteByScope(ctx, models.AccountScope(accountID)); err != nil {
		return err
	}
	if err := s.accounts.Remove(ctx, tenantKey, accountID); err != nil {
		return err
	}

	settings, err := s.tenants.Get(ctx, tenantKey)
	if err != nil {
		return err
	}
	if settings != nil && settings.ActiveAccountID != nil && *settings.ActiveAccountID == accountID {
		return s.tenants.SetActiveAccount(ctx, tenantKey, nil)
	}
	return nil
}
