package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	config "github.com/maheshrc27/reshare/configs"
	"github.com/maheshrc27/reshare/internal/apperrors"
	"github.com/maheshrc27/reshare/internal/transfer"
	"github.com/rs/zerolog/log"
)

const mediaFields = "id,media_type,media_url,caption,permalink,username,timestamp"

// InstagramClient talks to the Instagram Graph API and its OAuth endpoints.
type InstagramClient interface {
	ListMedia(ctx context.Context, accessToken, accountID, after string, pageSize int) (*transfer.InstagramMediaPage, error)
	ListStories(ctx context.Context, accessToken, accountID string) ([]transfer.InstagramMedia, error)
	ListChildren(ctx context.Context, accessToken, mediaID string) ([]transfer.InstagramMedia, error)
	ExchangeCode(ctx context.Context, code string) (*transfer.InstagramToken, error)
	ExchangeLongLived(ctx context.Context, shortLivedToken string) (*transfer.InstagramToken, error)
	Refresh(ctx context.Context, accessToken string) (*transfer.InstagramToken, error)
	GetUserInfo(ctx context.Context, accessToken string) (*transfer.InstagramUserInfo, error)
	Publish(ctx context.Context, accessToken, accountID, mediaURL, mimeType, caption string) (string, error)
}

type instagramClient struct {
	cfg          config.Instagram
	http         *http.Client
	now          func() time.Time
	pollInterval time.Duration
}

func NewInstagramClient(cfg config.Instagram, httpClient *http.Client) InstagramClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &instagramClient{
		cfg:          cfg,
		http:         httpClient,
		now:          time.Now,
		pollInterval: 3 * time.Second,
	}
}

func (c *instagramClient) graphURL(path string, params url.Values) string {
	return fmt.Sprintf("%s/%s/%s?%s", strings.TrimRight(c.cfg.GraphURL, "/"), c.cfg.APIVersion, path, params.Encode())
}

// do sends req and decodes a 2xx JSON body into out. Failures are mapped onto
// the error taxonomy so callers can decide between retry and escalation.
func (c *instagramClient) do(req *http.Request, op string, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("op", op).Msg("instagram request failed")
		return apperrors.New(apperrors.ErrTransientNetwork, op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.New(apperrors.ErrTransientNetwork, op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := classifyGraphError(resp.StatusCode, body)
		log.Warn().Err(err).Str("op", op).Int("status", resp.StatusCode).Msg("instagram error response")
		return apperrors.New(err, op, fmt.Errorf("status %d: %s", resp.StatusCode, graphMessage(body)))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func graphMessage(body []byte) string {
	var e transfer.InstagramErrorResponse
	if err := json.Unmarshal(body, &e); err == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return string(body)
}

// classifyGraphError returns the sentinel for a non-2xx Graph response.
func classifyGraphError(status int, body []byte) error {
	var e transfer.InstagramErrorResponse
	_ = json.Unmarshal(body, &e)

	switch {
	case status == http.StatusUnauthorized || e.Error.Code == 190:
		return apperrors.ErrCredentialExpired
	case status == http.StatusTooManyRequests || e.Error.Code == 4 || e.Error.Code == 17 || e.Error.Code == 32 || e.Error.Code == 613:
		return apperrors.ErrRateLimited
	case status >= 500 || e.Error.IsTransient:
		return apperrors.ErrTransientNetwork
	case status == http.StatusNotFound:
		return apperrors.ErrContentNotFound
	default:
		return errors.New("instagram request rejected")
	}
}

func (c *instagramClient) get(ctx context.Context, op, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	return c.do(req, op, out)
}

func (c *instagramClient) postForm(ctx context.Context, op, rawURL string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, op, out)
}

func (c *instagramClient) ListMedia(ctx context.Context, accessToken, accountID, after string, pageSize int) (*transfer.InstagramMediaPage, error) {
	params := url.Values{}
	params.Set("fields", mediaFields)
	params.Set("limit", strconv.Itoa(pageSize))
	params.Set("access_token", accessToken)
	if after != "" {
		params.Set("after", after)
	}

	var page transfer.InstagramMediaPage
	if err := c.get(ctx, "list media", c.graphURL(accountID+"/media", params), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *instagramClient) ListStories(ctx context.Context, accessToken, accountID string) ([]transfer.InstagramMedia, error) {
	params := url.Values{}
	params.Set("fields", mediaFields)
	params.Set("access_token", accessToken)

	var page transfer.InstagramMediaPage
	if err := c.get(ctx, "list stories", c.graphURL(accountID+"/stories", params), &page); err != nil {
		return nil, err
	}
	return page.Data, nil
}

func (c *instagramClient) ListChildren(ctx context.Context, accessToken, mediaID string) ([]transfer.InstagramMedia, error) {
	params := url.Values{}
	params.Set("fields", mediaFields)
	params.Set("access_token", accessToken)

	var page transfer.InstagramMediaPage
	if err := c.get(ctx, "list children", c.graphURL(mediaID+"/children", params), &page); err != nil {
		return nil, err
	}
	return page.Data, nil
}

// ExchangeCode trades an authorization code for a short-lived token.
func (c *instagramClient) ExchangeCode(ctx context.Context, code string) (*transfer.InstagramToken, error) {
	if code == "" {
		return nil, errors.New("authorization code is empty")
	}

	form := url.Values{}
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	form.Set("grant_type", "authorization_code")
	form.Set("redirect_uri", c.cfg.RedirectURI)
	form.Set("code", code)

	var result struct {
		AccessToken string          `json:"access_token"`
		UserID      json.RawMessage `json:"user_id"`
	}
	endpoint := strings.TrimRight(c.cfg.OAuthURL, "/") + "/oauth/access_token"
	if err := c.postForm(ctx, "exchange code", endpoint, form, &result); err != nil {
		return nil, err
	}

	return &transfer.InstagramToken{
		UserID:      strings.Trim(string(result.UserID), `"`),
		AccessToken: result.AccessToken,
		ExpiresAt:   c.now().Add(time.Hour),
	}, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (c *instagramClient) ExchangeLongLived(ctx context.Context, shortLivedToken string) (*transfer.InstagramToken, error) {
	params := url.Values{}
	params.Set("grant_type", "ig_exchange_token")
	params.Set("client_secret", c.cfg.ClientSecret)
	params.Set("access_token", shortLivedToken)

	var result tokenResponse
	endpoint := strings.TrimRight(c.cfg.GraphURL, "/") + "/access_token?" + params.Encode()
	if err := c.get(ctx, "exchange long-lived token", endpoint, &result); err != nil {
		return nil, err
	}

	return &transfer.InstagramToken{
		AccessToken: result.AccessToken,
		ExpiresAt:   expiresAt(c.now(), result.ExpiresIn),
	}, nil
}

func (c *instagramClient) Refresh(ctx context.Context, accessToken string) (*transfer.InstagramToken, error) {
	params := url.Values{}
	params.Set("grant_type", "ig_refresh_token")
	params.Set("access_token", accessToken)

	var result tokenResponse
	endpoint := strings.TrimRight(c.cfg.GraphURL, "/") + "/refresh_access_token?" + params.Encode()
	if err := c.get(ctx, "refresh token", endpoint, &result); err != nil {
		return nil, err
	}

	return &transfer.InstagramToken{
		AccessToken: result.AccessToken,
		ExpiresAt:   expiresAt(c.now(), result.ExpiresIn),
	}, nil
}

func (c *instagramClient) GetUserInfo(ctx context.Context, accessToken string) (*transfer.InstagramUserInfo, error) {
	params := url.Values{}
	params.Set("fields", "id,username,name,account_type,profile_picture_url")
	params.Set("access_token", accessToken)

	var info transfer.InstagramUserInfo
	if err := c.get(ctx, "user info", c.graphURL("me", params), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Publish creates a media container for mediaURL and publishes it. Videos
// are posted as reels once the container has finished processing.
func (c *instagramClient) Publish(ctx context.Context, accessToken, accountID, mediaURL, mimeType, caption string) (string, error) {
	form := url.Values{}
	form.Set("caption", caption)
	form.Set("access_token", accessToken)

	isVideo := strings.HasPrefix(mimeType, "video/")
	if isVideo {
		form.Set("media_type", "REELS")
		form.Set("video_url", mediaURL)
	} else {
		form.Set("image_url", mediaURL)
	}

	var container struct {
		ID string `json:"id"`
	}
	if err := c.postForm(ctx, "create container", c.graphURL(accountID+"/media", url.Values{}), form, &container); err != nil {
		return "", err
	}
	if container.ID == "" {
		return "", errors.New("no media container id returned from instagram")
	}

	if isVideo {
		if err := c.waitForContainer(ctx, accessToken, container.ID); err != nil {
			return "", err
		}
	}

	publish := url.Values{}
	publish.Set("creation_id", container.ID)
	publish.Set("access_token", accessToken)

	var result struct {
		ID string `json:"id"`
	}
	if err := c.postForm(ctx, "publish", c.graphURL(accountID+"/media_publish", url.Values{}), publish, &result); err != nil {
		return "", err
	}

	log.Info().Str("account", accountID).Str("media_id", result.ID).Msg("published to instagram")
	return result.ID, nil
}

func (c *instagramClient) waitForContainer(ctx context.Context, accessToken, containerID string) error {
	params := url.Values{}
	params.Set("fields", "status_code")
	params.Set("access_token", accessToken)

	for attempt := 0; attempt < 20; attempt++ {
		var status struct {
			StatusCode string `json:"status_code"`
		}
		if err := c.get(ctx, "container status", c.graphURL(containerID, params), &status); err != nil {
			return err
		}

		switch status.StatusCode {
		case "FINISHED":
			return nil
		case "ERROR", "EXPIRED":
			return fmt.Errorf("media container %s: %s", containerID, status.StatusCode)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
	return apperrors.New(apperrors.ErrTransientNetwork, "container status", fmt.Errorf("container %s not ready", containerID))
}
