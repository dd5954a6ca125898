package backfill

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	config "github.com/maheshrc27/reshare/configs"
	"github.com/maheshrc27/reshare/internal/apperrors"
	"github.com/maheshrc27/reshare/internal/models"
	"github.com/maheshrc27/reshare/internal/service"
	"github.com/maheshrc27/reshare/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngBytes = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x00, 0x00, 0x0D, 0x49, 0x48, 0x44, 0x52}

type fakeAPI struct {
	pages     [][]transfer.InstagramMedia
	children  map[string][]transfer.InstagramMedia
	stories   []transfer.InstagramMedia
	pageErr   map[int]error
	pageCalls int
}

func (f *fakeAPI) ListMedia(ctx context.Context, accessToken, accountID, after string, pageSize int) (*transfer.InstagramMediaPage, error) {
	f.pageCalls++
	idx := 0
	if after != "" {
		idx, _ = strconv.Atoi(after)
	}
	if err := f.pageErr[idx]; err != nil {
		return nil, err
	}
	page := &transfer.InstagramMediaPage{Data: f.pages[idx]}
	if idx+1 < len(f.pages) {
		page.Paging.Cursors.After = strconv.Itoa(idx + 1)
		page.Paging.Next = "https://graph.example/next"
	}
	return page, nil
}

func (f *fakeAPI) ListStories(ctx context.Context, accessToken, accountID string) ([]transfer.InstagramMedia, error) {
	return f.stories, nil
}

func (f *fakeAPI) ListChildren(ctx context.Context, accessToken, mediaID string) ([]transfer.InstagramMedia, error) {
	return f.children[mediaID], nil
}

type fakeResolver struct {
	err error
}

func (f *fakeResolver) Resolve(ctx context.Context, tenantKey string) (*service.ResolvedCredential, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &service.ResolvedCredential{AccessToken: "token", AccountID: "1784"}, nil
}

type memLibrary struct {
	mu    sync.Mutex
	items []*models.LibraryItem
}

func (m *memLibrary) Create(ctx context.Context, item *models.LibraryItem) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.items {
		if it.TenantKey == item.TenantKey && it.SourceType == item.SourceType && it.ExternalID == item.ExternalID {
			return 0, apperrors.New(apperrors.ErrDuplicate, "create library item", nil)
		}
	}
	item.ID = int64(len(m.items) + 1)
	m.items = append(m.items, item)
	return item.ID, nil
}

func (m *memLibrary) GetKnownExternalIDs(ctx context.Context, tenantKey, sourceType string) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	known := make(map[string]struct{})
	for _, it := range m.items {
		if it.TenantKey == tenantKey && it.SourceType == sourceType {
			known[it.ExternalID] = struct{}{}
		}
	}
	return known, nil
}

type memStore struct {
	objects map[string][]byte
}

func (m *memStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if m.objects == nil {
		m.objects = make(map[string][]byte)
	}
	m.objects[key] = data
	return key, nil
}

func (m *memStore) PublicURL(location string) string { return "" }

type fakeDownloader struct {
	bodies map[string][]byte
	errs   map[string]error
	calls  int
}

func (f *fakeDownloader) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.calls++
	if err := f.errs[url]; err != nil {
		return nil, err
	}
	if body, ok := f.bodies[url]; ok {
		return body, nil
	}
	return pngBytes, nil
}

func image(id string, ts time.Time) transfer.InstagramMedia {
	return transfer.InstagramMedia{
		ID:        id,
		MediaType: transfer.MediaTypeImage,
		MediaURL:  "https://cdn.example/" + id,
		Timestamp: ts.Format("2006-01-02T15:04:05-0700"),
		Username:  "someone",
	}
}

// feedOf builds pages of the given sizes, newest first, one hour apart.
func feedOf(start time.Time, sizes ...int) [][]transfer.InstagramMedia {
	var pages [][]transfer.InstagramMedia
	n := 0
	for _, size := range sizes {
		var page []transfer.InstagramMedia
		for i := 0; i < size; i++ {
			page = append(page, image(fmt.Sprintf("m%d", n), start.Add(-time.Duration(n)*time.Hour)))
			n++
		}
		pages = append(pages, page)
	}
	return pages
}

type harness struct {
	api      *fakeAPI
	library  *memLibrary
	store    *memStore
	download *fakeDownloader
	pipeline *Pipeline
}

func newHarness(api *fakeAPI) *harness {
	h := &harness{
		api:      api,
		library:  &memLibrary{},
		store:    &memStore{},
		download: &fakeDownloader{},
	}
	h.pipeline = NewPipeline(config.Backfill{PageSize: 4, MaxPages: 10}, api, &fakeResolver{}, h.library, h.store, h.download)
	return h
}

func assertInvariant(t *testing.T, res *models.BackfillResult) {
	t.Helper()
	total := res.Downloaded + res.SkippedDuplicate + res.SkippedUnsupported + res.Failed
	assert.Equal(t, total, res.TotalProcessed())
	assert.LessOrEqual(t, res.TotalProcessed(), res.TotalAPIItems)
	assert.LessOrEqual(t, len(res.Errors), models.MaxBackfillErrors)
}

var now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func TestRunStopsAtLimit(t *testing.T) {
	api := &fakeAPI{pages: feedOf(now, 4, 3)}
	h := newHarness(api)

	res, err := h.pipeline.Run(context.Background(), Options{TenantKey: "acme", Limit: 5, MediaTypes: MediaFeed})
	require.NoError(t, err)

	assert.Equal(t, 5, res.Downloaded)
	assert.Equal(t, 5, res.TotalAPIItems)
	assert.Equal(t, 2, api.pageCalls)
	assert.Len(t, h.library.items, 5)
	assert.NotEmpty(t, res.RunID)
	assertInvariant(t, res)
}

func TestRunIsIdempotent(t *testing.T) {
	api := &fakeAPI{pages: feedOf(now, 4, 3)}
	h := newHarness(api)

	first, err := h.pipeline.Run(context.Background(), Options{TenantKey: "acme"})
	require.NoError(t, err)
	assert.Equal(t, 7, first.Downloaded)

	calls := h.download.calls
	second, err := h.pipeline.Run(context.Background(), Options{TenantKey: "acme"})
	require.NoError(t, err)

	assert.Zero(t, second.Downloaded)
	assert.Equal(t, 7, second.SkippedDuplicate)
	assert.Equal(t, calls, h.download.calls)
	assertInvariant(t, second)
}

func TestRunStoresUnderTimestampedName(t *testing.T) {
	taken := time.Date(2024, 6, 1, 8, 30, 15, 0, time.UTC)
	api := &fakeAPI{pages: [][]transfer.InstagramMedia{{image("abc", taken)}}}
	h := newHarness(api)

	_, err := h.pipeline.Run(context.Background(), Options{TenantKey: "acme", Category: "travel"})
	require.NoError(t, err)

	require.Len(t, h.library.items, 1)
	item := h.library.items[0]
	assert.Equal(t, "20240601_083015_abc.png", item.FileName)
	assert.Equal(t, "instagram/acme/20240601_083015_abc.png", item.Location)
	assert.Equal(t, "image/png", item.MimeType)
	assert.Equal(t, "travel", item.Category)
	assert.Equal(t, "someone", item.Attribution)
	require.NotNil(t, item.TakenAt)
	assert.True(t, taken.Equal(*item.TakenAt))
	assert.Contains(t, h.store.objects, item.Location)
}

func TestRunExpandsCarousel(t *testing.T) {
	parent := transfer.InstagramMedia{
		ID:        "album",
		MediaType: transfer.MediaTypeCarousel,
		Caption:   "weekend",
		Permalink: "https://instagram.example/p/album",
		Timestamp: now.Format("2006-01-02T15:04:05-0700"),
	}
	api := &fakeAPI{
		pages: [][]transfer.InstagramMedia{{parent}},
		children: map[string][]transfer.InstagramMedia{
			"album": {
				{ID: "c1", MediaType: transfer.MediaTypeImage, MediaURL: "https://cdn.example/c1"},
				{ID: "c2", MediaType: transfer.MediaTypeVideo, MediaURL: "https://cdn.example/c2", Caption: "own"},
			},
		},
	}
	h := newHarness(api)

	res, err := h.pipeline.Run(context.Background(), Options{TenantKey: "acme"})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Downloaded)
	assert.Equal(t, 3, res.TotalAPIItems)
	require.Len(t, h.library.items, 2)
	assert.Equal(t, "weekend", h.library.items[0].Caption)
	assert.Equal(t, parent.Permalink, h.library.items[0].Permalink)
	assert.Equal(t, "own", h.library.items[1].Caption)
	assertInvariant(t, res)
}

func TestRunStopsAtSince(t *testing.T) {
	api := &fakeAPI{pages: feedOf(now, 4, 3)}
	h := newHarness(api)

	since := now.Add(-150 * time.Minute)
	res, err := h.pipeline.Run(context.Background(), Options{TenantKey: "acme", Since: &since})
	require.NoError(t, err)

	// m0, m1 and m2 are newer than the cutoff
	assert.Equal(t, 3, res.Downloaded)
	assert.Equal(t, 1, api.pageCalls)
}

func TestRunDryRunWritesNothing(t *testing.T) {
	api := &fakeAPI{pages: feedOf(now, 4, 3)}
	h := newHarness(api)

	res, err := h.pipeline.Run(context.Background(), Options{TenantKey: "acme", DryRun: true})
	require.NoError(t, err)

	assert.True(t, res.DryRun)
	assert.Equal(t, 7, res.Downloaded)
	assert.Zero(t, h.download.calls)
	assert.Empty(t, h.library.items)
	assert.Empty(t, h.store.objects)
}

func TestRunAggregatesItemFailures(t *testing.T) {
	pages := feedOf(now, 4)
	pages[0][1].MediaURL = ""
	pages[0][2].MediaType = "AUDIO"
	api := &fakeAPI{pages: pages}
	h := newHarness(api)
	h.download.errs = map[string]error{
		pages[0][3].MediaURL: apperrors.New(apperrors.ErrContentExpired, "download", nil),
	}

	res, err := h.pipeline.Run(context.Background(), Options{TenantKey: "acme"})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Downloaded)
	assert.Equal(t, 1, res.SkippedUnsupported)
	assert.Equal(t, 2, res.Failed)
	assert.Len(t, res.Errors, 3)
	assertInvariant(t, res)
}

func TestRunRejectsUnknownContent(t *testing.T) {
	pages := feedOf(now, 1)
	api := &fakeAPI{pages: pages}
	h := newHarness(api)
	h.download.bodies = map[string][]byte{pages[0][0].MediaURL: []byte("not media at all")}

	res, err := h.pipeline.Run(context.Background(), Options{TenantKey: "acme"})
	require.NoError(t, err)

	assert.Equal(t, 1, res.SkippedUnsupported)
	assert.Empty(t, h.library.items)
}

func TestRunCapsErrorDetails(t *testing.T) {
	pages := feedOf(now, 30)
	api := &fakeAPI{pages: pages}
	h := newHarness(api)
	h.download.errs = make(map[string]error)
	for _, m := range pages[0] {
		h.download.errs[m.MediaURL] = apperrors.New(apperrors.ErrTransientNetwork, "download", nil)
	}

	res, err := h.pipeline.Run(context.Background(), Options{TenantKey: "acme"})
	require.NoError(t, err)

	assert.Equal(t, 30, res.Failed)
	assert.Len(t, res.Errors, models.MaxBackfillErrors)
	assertInvariant(t, res)
}

func TestRunKeepsPartialResultOnPageFailure(t *testing.T) {
	api := &fakeAPI{
		pages:   feedOf(now, 4, 3),
		pageErr: map[int]error{1: apperrors.New(apperrors.ErrTransientNetwork, "list media", nil)},
	}
	h := newHarness(api)

	res, err := h.pipeline.Run(context.Background(), Options{TenantKey: "acme"})
	require.NoError(t, err)

	assert.Equal(t, 4, res.Downloaded)
	assert.Zero(t, res.Failed)
	assert.Len(t, res.Errors, 1)
	assertInvariant(t, res)
}

func TestRunReturnsEscalatedPageError(t *testing.T) {
	api := &fakeAPI{
		pages:   feedOf(now, 4, 3),
		pageErr: map[int]error{1: apperrors.New(apperrors.ErrCredentialExpired, "list media", nil)},
	}
	h := newHarness(api)

	res, err := h.pipeline.Run(context.Background(), Options{TenantKey: "acme"})
	require.ErrorIs(t, err, apperrors.ErrCredentialExpired)
	require.NotNil(t, res)
	assert.Equal(t, 4, res.Downloaded)
}

func TestRunFailsWithoutCredential(t *testing.T) {
	h := newHarness(&fakeAPI{})
	h.pipeline.creds = &fakeResolver{err: apperrors.New(apperrors.ErrCredentialExpired, "resolve", nil)}

	_, err := h.pipeline.Run(context.Background(), Options{TenantKey: "acme"})
	assert.True(t, errors.Is(err, apperrors.ErrCredentialExpired))
}

func TestRunStories(t *testing.T) {
	api := &fakeAPI{
		pages:   feedOf(now, 2),
		stories: []transfer.InstagramMedia{image("s1", now)},
	}
	h := newHarness(api)

	res, err := h.pipeline.Run(context.Background(), Options{TenantKey: "acme", MediaTypes: MediaStories})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Downloaded)
	assert.Zero(t, api.pageCalls)

	res, err = h.pipeline.Run(context.Background(), Options{TenantKey: "acme", MediaTypes: MediaBoth})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Downloaded)
	assert.Equal(t, 1, res.SkippedDuplicate)
}

func TestRunHonoursCancellation(t *testing.T) {
	h := newHarness(&fakeAPI{pages: feedOf(now, 4)})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.pipeline.Run(ctx, Options{TenantKey: "acme"})
	assert.ErrorIs(t, err, context.Canceled)
}

// cancellingDownloader cancels the run once it has served one body.
type cancellingDownloader struct {
	cancel context.CancelFunc
	calls  int
}

func (c *cancellingDownloader) Fetch(ctx context.Context, url string) ([]byte, error) {
	c.calls++
	c.cancel()
	return pngBytes, nil
}

func TestRunStopsMidPageOnCancellation(t *testing.T) {
	h := newHarness(&fakeAPI{pages: feedOf(now, 4)})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d := &cancellingDownloader{cancel: cancel}
	h.pipeline.download = d

	res, err := h.pipeline.Run(ctx, Options{TenantKey: "acme"})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Equal(t, 1, d.calls)
	assert.Equal(t, 1, res.Downloaded)
	assert.Equal(t, 0, res.Failed)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 1, res.TotalAPIItems)
	assertInvariant(t, res)
}

func TestParseMediaSelection(t *testing.T) {
	sel, err := ParseMediaSelection("")
	require.NoError(t, err)
	assert.Equal(t, MediaFeed, sel)

	sel, err = ParseMediaSelection(" Both ")
	require.NoError(t, err)
	assert.Equal(t, MediaBoth, sel)

	_, err = ParseMediaSelection("reels")
	assert.Error(t, err)
}
