package service

import (
	"context"
	"fmt"
	"time"

	"github.com/maheshrc27/reshare/internal/apperrors"
	"github.com/maheshrc27/reshare/internal/models"
	"golang.org/x/oauth2"
)

// RefreshProvider performs one provider's refresh-grant exchange.
type RefreshProvider interface {
	Refresh(ctx context.Context, cred *models.Credential, accessToken string) (string, *time.Time, error)
}

type instagramRefresher struct {
	ig InstagramClient
}

func (r *instagramRefresher) Refresh(ctx context.Context, cred *models.Credential, accessToken string) (string, *time.Time, error) {
	token, err := r.ig.Refresh(ctx, accessToken)
	if err != nil {
		return "", nil, err
	}
	return token.AccessToken, &token.ExpiresAt, nil
}

type credentialLoader func(ctx context.Context, service string, credType models.CredentialType, scope string) (*models.Credential, string, error)

// googleRefresher uses the refresh token stored next to the access token.
type googleRefresher struct {
	oauth *oauth2.Config
	load  credentialLoader
}

func (r *googleRefresher) Refresh(ctx context.Context, cred *models.Credential, accessToken string) (string, *time.Time, error) {
	_, refresh, err := r.load(ctx, models.ServiceGoogle, models.CredentialRefresh, cred.OwnerScope)
	if err != nil {
		return "", nil, err
	}
	if refresh == "" {
		return "", nil, apperrors.New(apperrors.ErrCredentialExpired, "google refresh", fmt.Errorf("no refresh token for %s", cred.OwnerScope))
	}

	// an expired token forces the source to use the refresh grant
	expired := &oauth2.Token{AccessToken: accessToken, RefreshToken: refresh, Expiry: time.Unix(1, 0)}
	token, err := r.oauth.TokenSource(ctx, expired).Token()
	if err != nil {
		return "", nil, apperrors.New(apperrors.ErrCredentialExpired, "google refresh", err)
	}

	var expiresAt *time.Time
	if !token.Expiry.IsZero() {
		expiresAt = &token.Expiry
	}
	return token.AccessToken, expiresAt, nil
}
