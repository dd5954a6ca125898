package backfill

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/maheshrc27/reshare/internal/apperrors"
	"github.com/maheshrc27/reshare/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPDownloaderFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			_, _ = w.Write(pngBytes)
		case "/expired":
			w.WriteHeader(http.StatusForbidden)
		case "/gone":
			w.WriteHeader(http.StatusGone)
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	d := NewHTTPDownloader(srv.Client())
	ctx := context.Background()

	data, err := d.Fetch(ctx, srv.URL+"/ok")
	require.NoError(t, err)
	assert.Equal(t, pngBytes, data)

	_, err = d.Fetch(ctx, srv.URL+"/expired")
	assert.ErrorIs(t, err, apperrors.ErrContentExpired)

	_, err = d.Fetch(ctx, srv.URL+"/gone")
	assert.ErrorIs(t, err, apperrors.ErrContentExpired)

	_, err = d.Fetch(ctx, srv.URL+"/missing")
	assert.ErrorIs(t, err, apperrors.ErrContentNotFound)

	_, err = d.Fetch(ctx, srv.URL+"/flaky")
	assert.ErrorIs(t, err, apperrors.ErrTransientNetwork)
	assert.True(t, apperrors.IsRetryable(err))
}

func TestHTTPDownloaderRejectsOversizedBody(t *testing.T) {
	body := bytes.Repeat([]byte{0xff}, 64)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/chunked" {
			// no Content-Length, so only the read can catch it
			w.(http.Flusher).Flush()
		}
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	d := NewHTTPDownloader(srv.Client())
	d.maxBytes = 32

	for _, p := range []string{"/sized", "/chunked"} {
		data, err := d.Fetch(context.Background(), srv.URL+p)
		assert.Nil(t, data, p)
		assert.ErrorIs(t, err, apperrors.ErrUnsupportedMedia, p)
		assert.False(t, apperrors.IsRetryable(err), p)
	}

	d.maxBytes = 64
	data, err := d.Fetch(context.Background(), srv.URL+"/sized")
	require.NoError(t, err)
	assert.Len(t, data, 64)
}

func TestRunCountsOversizedDownloadAsFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(bytes.Repeat(pngBytes, 4))
	}))
	defer srv.Close()

	d := NewHTTPDownloader(srv.Client())
	d.maxBytes = int64(len(pngBytes))

	big := image("big", now)
	big.MediaURL = srv.URL + "/big.png"
	h := newHarness(&fakeAPI{pages: [][]transfer.InstagramMedia{{big}}})
	h.pipeline.download = d

	res, err := h.pipeline.Run(context.Background(), Options{TenantKey: "acme"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Downloaded)
	assert.Equal(t, 1, res.Failed)
	assert.Empty(t, h.library.items)
	assert.Empty(t, h.store.objects)
	assertInvariant(t, res)
}
