package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	config "github.com/maheshrc27/reshare/configs"
	"github.com/maheshrc27/reshare/internal/apperrors"
	"github.com/maheshrc27/reshare/internal/models"
	"github.com/maheshrc27/reshare/internal/transfer"
	"github.com/maheshrc27/reshare/pkg/vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInstagram struct {
	InstagramClient

	mu         sync.Mutex
	refreshErr map[string]error
	refreshed  []string
	expiresAt  time.Time
}

func (f *fakeInstagram) Refresh(ctx context.Context, accessToken string) (*transfer.InstagramToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.refreshErr[accessToken]; err != nil {
		return nil, err
	}
	f.refreshed = append(f.refreshed, accessToken)
	return &transfer.InstagramToken{AccessToken: accessToken + "-new", ExpiresAt: f.expiresAt}, nil
}

func (f *fakeInstagram) ExchangeCode(ctx context.Context, code string) (*transfer.InstagramToken, error) {
	return &transfer.InstagramToken{UserID: "1784", AccessToken: "short-" + code}, nil
}

func (f *fakeInstagram) ExchangeLongLived(ctx context.Context, shortLivedToken string) (*transfer.InstagramToken, error) {
	return &transfer.InstagramToken{AccessToken: "long", ExpiresAt: f.expiresAt}, nil
}

func (f *fakeInstagram) GetUserInfo(ctx context.Context, accessToken string) (*transfer.InstagramUserInfo, error) {
	return &transfer.InstagramUserInfo{UserID: "1784", Username: "acme.photos", Name: "Acme"}, nil
}

type tokenFixture struct {
	now      time.Time
	vault    *vault.Vault
	creds    *memCreds
	accounts *memAccounts
	tenants  *memTenants
	ig       *fakeInstagram
	svc      *tokenService
}

func newTokenFixture(t *testing.T) *tokenFixture {
	t.Helper()
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	v, err := vault.New("a-test-secret-key-of-some-length", vault.WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	cfg := config.Config{
		Instagram: config.Instagram{ClientID: "ig-client", RedirectURI: "https://app.example/auth/instagram/callback"},
		Tokens:    config.Tokens{RefreshBuffer: 7 * 24 * time.Hour, StateTTL: 10 * time.Minute},
	}
	f := &tokenFixture{
		now:      now,
		vault:    v,
		creds:    newMemCreds(),
		accounts: newMemAccounts(),
		tenants:  newMemTenants(),
		ig:       &fakeInstagram{expiresAt: now.Add(60 * 24 * time.Hour)},
	}
	f.svc = NewTokenService(cfg, v, f.creds, f.accounts, f.tenants, f.ig).(*tokenService)
	f.svc.now = func() time.Time { return now }
	return f
}

func (f *tokenFixture) store(t *testing.T, scope, token string, expiresAt *time.Time, meta map[string]string) {
	t.Helper()
	_, err := f.svc.Store(context.Background(), CredentialInput{
		Service:    models.ServiceInstagram,
		Type:       models.CredentialAccess,
		OwnerScope: scope,
		ExpiresAt:  expiresAt,
		Metadata:   meta,
	}, token)
	require.NoError(t, err)
}

func (f *tokenFixture) connect(t *testing.T, external string) int64 {
	t.Helper()
	id, err := f.accounts.Upsert(context.Background(), nil, &models.Account{TenantKey: "acme", ExternalAccountID: external})
	require.NoError(t, err)
	require.NoError(t, f.tenants.SetActiveAccount(context.Background(), "acme", &id))
	return id
}

func TestClassifyHealth(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	buffer := 7 * 24 * time.Hour

	assert.Equal(t, HealthNeedsRefresh, ClassifyHealth(&models.Credential{ExpiresAt: ptr(now.Add(5 * 24 * time.Hour))}, now, buffer))
	assert.Equal(t, HealthValid, ClassifyHealth(&models.Credential{ExpiresAt: ptr(now.Add(30 * 24 * time.Hour))}, now, buffer))
	assert.Equal(t, HealthExpired, ClassifyHealth(&models.Credential{ExpiresAt: ptr(now)}, now, buffer))
	assert.Equal(t, HealthValid, ClassifyHealth(&models.Credential{}, now, buffer))
	assert.Equal(t, "needs_refresh", HealthNeedsRefresh.String())
}

func TestStoreEncryptsAtRest(t *testing.T) {
	f := newTokenFixture(t)
	f.store(t, models.ScopeGlobal, "plain-token", nil, nil)

	cred, err := f.creds.GetToken(context.Background(), models.ServiceInstagram, models.CredentialAccess, models.ScopeGlobal)
	require.NoError(t, err)
	assert.NotContains(t, cred.EncryptedValue, "plain-token")

	_, err = f.svc.Store(context.Background(), CredentialInput{Service: models.ServiceInstagram}, "")
	assert.Error(t, err)
}

func TestResolvePrefersActiveAccount(t *testing.T) {
	f := newTokenFixture(t)
	id := f.connect(t, "1784")
	f.store(t, models.AccountScope(id), "account-token", ptr(f.now.Add(time.Hour)), nil)
	f.store(t, models.ScopeGlobal, "legacy-token", nil, map[string]string{"account_id": "999"})

	res, err := f.svc.Resolve(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "account-token", res.AccessToken)
	assert.Equal(t, "1784", res.AccountID)
	assert.Equal(t, models.AccountScope(id), res.OwnerScope)
}

func TestResolveFallsBackToStoredLegacy(t *testing.T) {
	f := newTokenFixture(t)
	id := f.connect(t, "1784")
	f.store(t, models.AccountScope(id), "account-token", ptr(f.now.Add(-time.Minute)), nil)
	f.store(t, models.ScopeGlobal, "legacy-token", nil, map[string]string{"account_id": "999"})

	res, err := f.svc.Resolve(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "legacy-token", res.AccessToken)
	assert.Equal(t, "999", res.AccountID, "legacy token keeps its own account id")
}

func TestResolveFallsBackToConfiguredToken(t *testing.T) {
	f := newTokenFixture(t)
	f.svc.cfg.Instagram.LegacyAccessToken = "env-token"
	f.svc.cfg.Instagram.LegacyAccountID = "555"

	res, err := f.svc.Resolve(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "env-token", res.AccessToken)
	assert.Equal(t, "555", res.AccountID)
}

func TestResolveWithoutCredential(t *testing.T) {
	f := newTokenFixture(t)

	_, err := f.svc.Resolve(context.Background(), "acme")
	assert.ErrorIs(t, err, apperrors.ErrCredentialExpired)
	assert.True(t, apperrors.IsEscalated(err))
}

func TestResolveUndecryptableCredential(t *testing.T) {
	f := newTokenFixture(t)
	_, err := f.creds.CreateOrUpdate(context.Background(), &models.Credential{
		Service:        models.ServiceInstagram,
		Type:           models.CredentialAccess,
		OwnerScope:     models.ScopeGlobal,
		EncryptedValue: "garbage",
		Metadata:       map[string]string{"account_id": "1"},
	})
	require.NoError(t, err)

	_, err = f.svc.Resolve(context.Background(), "acme")
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
}

func TestRefreshExpiring(t *testing.T) {
	f := newTokenFixture(t)
	f.store(t, models.AccountScope(1), "soon", ptr(f.now.Add(5*24*time.Hour)), nil)
	f.store(t, models.AccountScope(2), "broken", ptr(f.now.Add(2*24*time.Hour)), nil)
	f.store(t, models.AccountScope(3), "later", ptr(f.now.Add(30*24*time.Hour)), nil)
	f.ig.refreshErr = map[string]error{"broken": apperrors.New(apperrors.ErrCredentialExpired, "refresh", nil)}

	summary, err := f.svc.RefreshExpiring(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Refreshed)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, []string{"soon"}, f.ig.refreshed)

	cred, err := f.creds.GetToken(context.Background(), models.ServiceInstagram, models.CredentialAccess, models.AccountScope(1))
	require.NoError(t, err)
	token, err := f.vault.DecryptString(cred.EncryptedValue, 0)
	require.NoError(t, err)
	assert.Equal(t, "soon-new", token)
	assert.Equal(t, HealthValid, f.svc.Health(cred))
}

func TestRefreshExpiringManyInParallel(t *testing.T) {
	f := newTokenFixture(t)
	for i := int64(1); i <= 25; i++ {
		f.store(t, models.AccountScope(i), "tok"+strings.Repeat("x", int(i)), ptr(f.now.Add(time.Hour)), nil)
	}

	summary, err := f.svc.RefreshExpiring(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 25, summary.Refreshed)
	assert.Zero(t, summary.Failed)
}

func TestInstagramAuthorizationRoundTrip(t *testing.T) {
	f := newTokenFixture(t)
	ctx := context.Background()

	authURL, err := f.svc.AuthURL(ctx, "acme", models.ServiceInstagram)
	require.NoError(t, err)
	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	state := parsed.Query().Get("state")
	require.NotEmpty(t, state)
	assert.Equal(t, "ig-client", parsed.Query().Get("client_id"))

	res, err := f.svc.CompleteAuthorization(ctx, models.ServiceInstagram, "the-code", state, "acme")
	require.NoError(t, err)
	assert.Equal(t, "acme", res.TenantKey)
	require.NotNil(t, res.Account)
	assert.Equal(t, "acme.photos", res.Account.Username)

	settings, err := f.tenants.Get(ctx, "acme")
	require.NoError(t, err)
	require.NotNil(t, settings.ActiveAccountID)
	assert.Equal(t, res.Account.ID, *settings.ActiveAccountID)

	resolved, err := f.svc.Resolve(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "long", resolved.AccessToken)
	assert.Equal(t, "1784", resolved.AccountID)
}

func TestCompleteAuthorizationRejectsBadState(t *testing.T) {
	f := newTokenFixture(t)
	ctx := context.Background()

	_, err := f.svc.CompleteAuthorization(ctx, models.ServiceInstagram, "code", "not-a-state", "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidStateToken)

	state, err := f.vault.IssueState("acme", models.ServiceGoogle)
	require.NoError(t, err)
	_, err = f.svc.CompleteAuthorization(ctx, models.ServiceInstagram, "code", state, "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidStateToken)
}

func TestCompleteAuthorizationBindsStateToSession(t *testing.T) {
	f := newTokenFixture(t)
	ctx := context.Background()

	state, err := f.vault.IssueState("acme", models.ServiceInstagram)
	require.NoError(t, err)

	_, err = f.svc.CompleteAuthorization(ctx, models.ServiceInstagram, "the-code", state, "globex")
	assert.ErrorIs(t, err, apperrors.ErrInvalidStateToken)
	accounts, err := f.accounts.ListByTenant(ctx, "globex")
	require.NoError(t, err)
	assert.Empty(t, accounts)

	// without a session the state alone decides
	res, err := f.svc.CompleteAuthorization(ctx, models.ServiceInstagram, "the-code", state, "")
	require.NoError(t, err)
	assert.Equal(t, "acme", res.TenantKey)
}

func TestAuthURLUnknownProvider(t *testing.T) {
	f := newTokenFixture(t)

	_, err := f.svc.AuthURL(context.Background(), "acme", "myspace")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.svc.AuthURL(context.Background(), "acme", models.ServiceGoogle)
	assert.True(t, errors.Is(err, apperrors.ErrConfiguration))
}

func TestRemoveActiveAccount(t *testing.T) {
	f := newTokenFixture(t)
	ctx := context.Background()
	id := f.connect(t, "1784")
	f.store(t, models.AccountScope(id), "account-token", nil, nil)
	tenants := NewTenantService(f.tenants, f.accounts, f.creds)

	require.NoError(t, tenants.RemoveAccount(ctx, "acme", id))

	settings, err := f.tenants.Get(ctx, "acme")
	require.NoError(t, err)
	assert.Nil(t, settings.ActiveAccountID)
	cred, err := f.creds.GetToken(ctx, models.ServiceInstagram, models.CredentialAccess, models.AccountScope(id))
	require.NoError(t, err)
	assert.Nil(t, cred)

	assert.ErrorIs(t, tenants.RemoveAccount(ctx, "acme", id), apperrors.ErrNotFound)
}
