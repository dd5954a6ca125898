package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	config "github.com/maheshrc27/reshare/configs"
	"github.com/maheshrc27/reshare/internal/apperrors"
	"github.com/maheshrc27/reshare/internal/models"
	"github.com/maheshrc27/reshare/internal/repository"
	"github.com/maheshrc27/reshare/pkg/vault"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
)

const (
	INSTAGRAM_AUTH_URL = "https://www.instagram.com/oauth/authorize"
	instagramScopes    = "instagram_business_basic,instagram_business_content_publish"

	refreshConcurrency = 10
)

type Health int

const (
	HealthValid Health = iota
	HealthNeedsRefresh
	HealthExpired
)

func (h Health) String() string {
	switch h {
	case HealthNeedsRefresh:
		return "needs_refresh"
	case HealthExpired:
		return "expired"
	default:
		return "valid"
	}
}

// ClassifyHealth reports whether cred is usable as is, should be refreshed
// because it expires within buffer, or has already expired. A credential
// without an expiry never expires.
func ClassifyHealth(cred *models.Credential, now time.Time, buffer time.Duration) Health {
	if cred.ExpiresAt == nil {
		return HealthValid
	}
	if !cred.ExpiresAt.After(now) {
		return HealthExpired
	}
	if cred.ExpiresAt.Sub(now) <= buffer {
		return HealthNeedsRefresh
	}
	return HealthValid
}

// ResolvedCredential is a decrypted access token and the account it acts for.
type ResolvedCredential struct {
	AccessToken string
	AccountID   string
	OwnerScope  string
	ExpiresAt   *time.Time
}

type CredentialInput struct {
	Service    string
	Type       models.CredentialType
	OwnerScope string
	ExpiresAt  *time.Time
	Scopes     []string
	Metadata   map[string]string
}

type RefreshSummary struct {
	Refreshed int `json:"refreshed"`
	Failed    int `json:"failed"`
}

type AuthResult struct {
	TenantKey string
	Provider  string
	Account   *models.Account
}

type TokenService interface {
	Health(cred *models.Credential) Health
	Store(ctx context.Context, in CredentialInput, plaintext string) (*models.Credential, error)
	Resolve(ctx context.Context, tenantKey string) (*ResolvedCredential, error)
	RefreshExpiring(ctx context.Context) (*RefreshSummary, error)
	AuthURL(ctx context.Context, tenantKey, provider string) (string, error)
	CompleteAuthorization(ctx context.Context, provider, code, state, sessionTenant string) (*AuthResult, error)
	GoogleClient(ctx context.Context, tenantKey string) (*http.Client, error)
}

type tokenService struct {
	cfg       config.Config
	vault     *vault.Vault
	creds     repository.CredentialRepository
	accounts  repository.AccountRepository
	tenants   repository.TenantRepository
	ig        InstagramClient
	google    *oauth2.Config
	providers map[string]RefreshProvider
	now       func() time.Time
}

func NewTokenService(
	cfg config.Config,
	v *vault.Vault,
	creds repository.CredentialRepository,
	accounts repository.AccountRepository,
	tenants repository.TenantRepository,
	ig InstagramClient,
) TokenService {
	googleCfg := &oauth2.Config{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		RedirectURL:  cfg.Google.RedirectURI,
		Scopes:       []string{drive.DriveReadonlyScope},
		Endpoint:     google.Endpoint,
	}

	s := &tokenService{
		cfg:      cfg,
		vault:    v,
		creds:    creds,
		accounts: accounts,
		tenants:  tenants,
		ig:       ig,
		google:   googleCfg,
		now:      time.Now,
	}
	s.providers = map[string]RefreshProvider{
		models.ServiceInstagram: &instagramRefresher{ig: ig},
		models.ServiceGoogle:    &googleRefresher{oauth: googleCfg, load: s.decryptToken},
	}
	return s
}

func (s *tokenService) Health(cred *models.Credential) Health {
	return ClassifyHealth(cred, s.now(), s.cfg.Tokens.RefreshBuffer)
}

func (s *tokenService) Store(ctx context.Context, in CredentialInput, plaintext string) (*models.Credential, error) {
	if plaintext == "" {
		return nil, errors.New("refusing to store an empty credential")
	}

	ciphertext, err := s.vault.EncryptString(plaintext)
	if err != nil {
		return nil, err
	}

	now := s.now()
	cred := &models.Credential{
		Service:         in.Service,
		Type:            in.Type,
		OwnerScope:      in.OwnerScope,
		EncryptedValue:  ciphertext,
		IssuedAt:        now,
		ExpiresAt:       in.ExpiresAt,
		LastRefreshedAt: &now,
		Scopes:          in.Scopes,
		Metadata:        in.Metadata,
	}
	id, err := s.creds.CreateOrUpdate(ctx, cred)
	if err != nil {
		return nil, err
	}
	cred.ID = id
	return cred, nil
}

// decryptToken loads and decrypts a stored credential. It returns nil when
// none exists.
func (s *tokenService) decryptToken(ctx context.Context, service string, credType models.CredentialType, scope string) (*models.Credential, string, error) {
	cred, err := s.creds.GetToken(ctx, service, credType, scope)
	if err != nil || cred == nil {
		return nil, "", err
	}

	plaintext, err := s.vault.DecryptString(cred.EncryptedValue, 0)
	if err != nil {
		// a stored secret that no longer opens means SECRET_KEY changed
		return nil, "", apperrors.New(apperrors.ErrConfiguration, "decrypt credential", fmt.Errorf("%s/%s: %w", service, scope, err))
	}
	return cred, plaintext, nil
}

// Resolve picks the credential the tenant posts and reads with: the active
// account's own token while it is unexpired, otherwise the legacy single
// credential with its own account id.
func (s *tokenService) Resolve(ctx context.Context, tenantKey string) (*ResolvedCredential, error) {
	settings, err := s.tenants.Get(ctx, tenantKey)
	if err != nil {
		return nil, err
	}

	if settings != nil && settings.ActiveAccountID != nil {
		resolved, err := s.resolveAccount(ctx, tenantKey, *settings.ActiveAccountID)
		if err != nil || resolved != nil {
			return resolved, err
		}
		log.Warn().Str("tenant", tenantKey).Int64("account_id", *settings.ActiveAccountID).
			Msg("active account has no usable credential, using legacy credential")
	}

	return s.resolveLegacy(ctx, tenantKey)
}

func (s *tokenService) resolveAccount(ctx context.Context, tenantKey string, accountID int64) (*ResolvedCredential, error) {
	account, err := s.accounts.GetByID(ctx, tenantKey, accountID)
	if err != nil || account == nil {
		return nil, err
	}

	scope := models.AccountScope(account.ID)
	cred, token, err := s.decryptToken(ctx, models.ServiceInstagram, models.CredentialAccess, scope)
	if err != nil || cred == nil {
		return nil, err
	}
	if s.Health(cred) == HealthExpired {
		return nil, nil
	}

	return &ResolvedCredential{
		AccessToken: token,
		AccountID:   account.ExternalAccountID,
		OwnerScope:  scope,
		ExpiresAt:   cred.ExpiresAt,
	}, nil
}

func (s *tokenService) resolveLegacy(ctx context.Context, tenantKey string) (*ResolvedCredential, error) {
	cred, token, err := s.decryptToken(ctx, models.ServiceInstagram, models.CredentialAccess, models.ScopeGlobal)
	if err != nil {
		return nil, err
	}
	if cred != nil && s.Health(cred) != HealthExpired && cred.Metadata["account_id"] != "" {
		return &ResolvedCredential{
			AccessToken: token,
			AccountID:   cred.Metadata["account_id"],
			OwnerScope:  models.ScopeGlobal,
			ExpiresAt:   cred.ExpiresAt,
		}, nil
	}

	if s.cfg.Instagram.LegacyAccessToken != "" {
		return &ResolvedCredential{
			AccessToken: s.cfg.Instagram.LegacyAccessToken,
			AccountID:   s.cfg.Instagram.LegacyAccountID,
			OwnerScope:  models.ScopeGlobal,
		}, nil
	}

	return nil, apperrors.New(apperrors.ErrCredentialExpired, "resolve credential", fmt.Errorf("tenant %s", tenantKey))
}

// RefreshExpiring refreshes every access credential inside the refresh
// buffer. Credentials already expired are left for re-authentication.
func (s *tokenService) RefreshExpiring(ctx context.Context) (*RefreshSummary, error) {
	now := s.now()
	creds, err := s.creds.GetExpiringTokens(ctx, now, now.Add(s.cfg.Tokens.RefreshBuffer))
	if err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		summary RefreshSummary
		sem     = make(chan struct{}, refreshConcurrency)
	)
	for _, cred := range creds {
		wg.Add(1)
		sem <- struct{}{}

		go func(cred *models.Credential) {
			defer wg.Done()
			defer func() { <-sem }()

			err := s.refreshOne(ctx, cred)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Failed++
				log.Error().Err(err).Str("service", cred.Service).Str("scope", cred.OwnerScope).Msg("token refresh failed")
				return
			}
			summary.Refreshed++
		}(cred)
	}
	wg.Wait()

	log.Info().Int("refreshed", summary.Refreshed).Int("failed", summary.Failed).Msg("token refresh sweep")
	return &summary, nil
}

func (s *tokenService) refreshOne(ctx context.Context, cred *models.Credential) error {
	provider, ok := s.providers[cred.Service]
	if !ok {
		return apperrors.New(apperrors.ErrConfiguration, "refresh", fmt.Errorf("no refresh provider for %q", cred.Service))
	}

	current, err := s.vault.DecryptString(cred.EncryptedValue, 0)
	if err != nil {
		return apperrors.New(apperrors.ErrConfiguration, "refresh", err)
	}

	token, expiresAt, err := provider.Refresh(ctx, cred, current)
	if err != nil {
		return err
	}

	_, err = s.Store(ctx, CredentialInput{
		Service:    cred.Service,
		Type:       cred.Type,
		OwnerScope: cred.OwnerScope,
		ExpiresAt:  expiresAt,
		Scopes:     cred.Scopes,
		Metadata:   cred.Metadata,
	}, token)
	return err
}

// AuthURL starts an OAuth flow; the state parameter is an encrypted,
// time-boxed state token.
func (s *tokenService) AuthURL(ctx context.Context, tenantKey, provider string) (string, error) {
	if tenantKey == "" {
		return "", errors.New("tenant key is empty")
	}

	state, err := s.vault.IssueState(tenantKey, provider)
	if err != nil {
		return "", err
	}

	switch provider {
	case models.ServiceInstagram:
		if s.cfg.Instagram.ClientID == "" || s.cfg.Instagram.RedirectURI == "" {
			return "", apperrors.New(apperrors.ErrConfiguration, "auth url", errors.New("instagram oauth is not configured"))
		}
		params := url.Values{}
		params.Add("client_id", s.cfg.Instagram.ClientID)
		params.Add("scope", instagramScopes)
		params.Add("response_type", "code")
		params.Add("redirect_uri", s.cfg.Instagram.RedirectURI)
		params.Add("state", state)
		return fmt.Sprintf("%s?%s", INSTAGRAM_AUTH_URL, params.Encode()), nil

	case models.ServiceGoogle:
		if s.google.ClientID == "" || s.google.RedirectURL == "" {
			return "", apperrors.New(apperrors.ErrConfiguration, "auth url", errors.New("google oauth is not configured"))
		}
		return s.google.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil

	default:
		return "", apperrors.New(apperrors.ErrNotFound, "auth url", fmt.Errorf("provider %q", provider))
	}
}

// CompleteAuthorization validates the state token and exchanges code for
// tokens. sessionTenant is the tenant of the browser's session, or empty
// when the callback arrives without one; a state minted for another tenant
// is rejected.
func (s *tokenService) CompleteAuthorization(ctx context.Context, provider, code, state, sessionTenant string) (*AuthResult, error) {
	st, err := s.vault.OpenState(state)
	if err != nil {
		return nil, err
	}
	if st.Provider != "" && st.Provider != provider {
		return nil, apperrors.ErrInvalidStateToken
	}
	if sessionTenant != "" && sessionTenant != st.TenantKey {
		log.Warn().Str("session_tenant", sessionTenant).Str("state_tenant", st.TenantKey).Msg("state token used by another session")
		return nil, apperrors.ErrInvalidStateToken
	}
	if code == "" {
		return nil, errors.New("authorization code is empty")
	}

	switch provider {
	case models.ServiceInstagram:
		account, err := s.completeInstagram(ctx, st.TenantKey, code)
		if err != nil {
			return nil, err
		}
		return &AuthResult{TenantKey: st.TenantKey, Provider: provider, Account: account}, nil

	case models.ServiceGoogle:
		if err := s.completeGoogle(ctx, st.TenantKey, code); err != nil {
			return nil, err
		}
		return &AuthResult{TenantKey: st.TenantKey, Provider: provider}, nil

	default:
		return nil, apperrors.New(apperrors.ErrNotFound, "complete authorization", fmt.Errorf("provider %q", provider))
	}
}

func (s *tokenService) completeInstagram(ctx context.Context, tenantKey, code string) (*models.Account, error) {
	short, err := s.ig.ExchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}
	long, err := s.ig.ExchangeLongLived(ctx, short.AccessToken)
	if err != nil {
		return nil, err
	}
	info, err := s.ig.GetUserInfo(ctx, long.AccessToken)
	if err != nil {
		return nil, err
	}

	account := &models.Account{
		TenantKey:         tenantKey,
		Platform:          models.ServiceInstagram,
		ExternalAccountID: info.UserID,
		Username:          info.Username,
		Name:              info.Name,
		ProfilePicture:    info.ProfilePicture,
	}
	id, err := s.accounts.Upsert(ctx, nil, account)
	if err != nil {
		return nil, err
	}
	account.ID = id

	expiresAt := long.ExpiresAt
	_, err = s.Store(ctx, CredentialInput{
		Service:    models.ServiceInstagram,
		Type:       models.CredentialAccess,
		OwnerScope: models.AccountScope(id),
		ExpiresAt:  &expiresAt,
		Scopes:     []string{instagramScopes},
		Metadata:   map[string]string{"account_id": info.UserID, "username": info.Username},
	}, long.AccessToken)
	if err != nil {
		return nil, err
	}

	settings, err := s.tenants.Get(ctx, tenantKey)
	if err != nil {
		return nil, err
	}
	if settings == nil || settings.ActiveAccountID == nil {
		if err := s.tenants.SetActiveAccount(ctx, tenantKey, &id); err != nil {
			return nil, err
		}
	}

	log.Info().Str("tenant", tenantKey).Str("username", info.Username).Msg("instagram account connected")
	return account, nil
}

func (s *tokenService) completeGoogle(ctx context.Context, tenantKey, code string) error {
	token, err := s.google.Exchange(ctx, code)
	if err != nil {
		return err
	}

	scope := models.TenantScope(tenantKey)
	var expiresAt *time.Time
	if !token.Expiry.IsZero() {
		expiresAt = &token.Expiry
	}
	_, err = s.Store(ctx, CredentialInput{
		Service:    models.ServiceGoogle,
		Type:       models.CredentialAccess,
		OwnerScope: scope,
		ExpiresAt:  expiresAt,
		Scopes:     s.google.Scopes,
	}, token.AccessToken)
	if err != nil {
		return err
	}

	if token.RefreshToken != "" {
		_, err = s.Store(ctx, CredentialInput{
			Service:    models.ServiceGoogle,
			Type:       models.CredentialRefresh,
			OwnerScope: scope,
			Scopes:     s.google.Scopes,
		}, token.RefreshToken)
		if err != nil {
			return err
		}
	}

	log.Info().Str("tenant", tenantKey).Msg("google drive connected")
	return nil
}

// GoogleClient returns an HTTP client authorised for the tenant's Drive.
func (s *tokenService) GoogleClient(ctx context.Context, tenantKey string) (*http.Client, error) {
	scope := models.TenantScope(tenantKey)

	_, refresh, err := s.decryptToken(ctx, models.ServiceGoogle, models.CredentialRefresh, scope)
	if err != nil {
		return nil, err
	}
	if refresh == "" {
		return nil, apperrors.New(apperrors.ErrCredentialExpired, "google client", fmt.Errorf("tenant %s has not connected google drive", tenantKey))
	}

	token := &oauth2.Token{RefreshToken: refresh}
	if cred, access, err := s.decryptToken(ctx, models.ServiceGoogle, models.CredentialAccess, scope); err == nil && cred != nil && cred.ExpiresAt != nil {
		token.AccessToken = access
		token.Expiry = *cred.ExpiresAt
	}
	return s.google.Client(ctx, token), nil
}
