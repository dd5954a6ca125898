package backfill

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/maheshrc27/reshare/internal/apperrors"
)

const maxDownloadBytes = 200 << 20

// Downloader fetches the bytes behind a media URL.
type Downloader interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type HTTPDownloader struct {
	client   *http.Client
	maxBytes int64
}

func NewHTTPDownloader(client *http.Client) *HTTPDownloader {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	return &HTTPDownloader{client: client, maxBytes: maxDownloadBytes}
}

// Fetch classifies failures: 403 and 410 mean the signed URL expired, 404
// means the media is gone and anything else is treated as transient.
func (d *HTTPDownloader) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrTransientNetwork, "download", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusGone:
		return nil, apperrors.New(apperrors.ErrContentExpired, "download", fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperrors.New(apperrors.ErrContentNotFound, "download", fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, apperrors.New(apperrors.ErrTransientNetwork, "download", fmt.Errorf("status %d", resp.StatusCode))
	}

	if resp.ContentLength > d.maxBytes {
		return nil, tooLarge(resp.ContentLength, d.maxBytes)
	}
	// one byte past the cap tells a full body from a cut one
	data, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBytes+1))
	if err != nil {
		return nil, apperrors.New(apperrors.ErrTransientNetwork, "download", err)
	}
	if int64(len(data)) > d.maxBytes {
		return nil, tooLarge(int64(len(data)), d.maxBytes)
	}
	return data, nil
}

func tooLarge(size, limit int64) error {
	return apperrors.New(apperrors.ErrUnsupportedMedia, "download", fmt.Errorf("body of %d bytes exceeds %d", size, limit))
}
