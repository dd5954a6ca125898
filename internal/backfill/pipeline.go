// Package backfill pulls historical Instagram media into the library.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/h2non/filetype"
	config "github.com/maheshrc27/reshare/configs"
	"github.com/maheshrc27/reshare/internal/apperrors"
	"github.com/maheshrc27/reshare/internal/models"
	"github.com/maheshrc27/reshare/internal/service"
	"github.com/maheshrc27/reshare/internal/storage"
	"github.com/maheshrc27/reshare/internal/transfer"
	"github.com/rs/zerolog/log"
)

// MediaAPI is the part of the Graph API a backfill reads.
type MediaAPI interface {
	ListMedia(ctx context.Context, accessToken, accountID, after string, pageSize int) (*transfer.InstagramMediaPage, error)
	ListStories(ctx context.Context, accessToken, accountID string) ([]transfer.InstagramMedia, error)
	ListChildren(ctx context.Context, accessToken, mediaID string) ([]transfer.InstagramMedia, error)
}

type CredentialResolver interface {
	Resolve(ctx context.Context, tenantKey string) (*service.ResolvedCredential, error)
}

type LibraryStore interface {
	Create(ctx context.Context, item *models.LibraryItem) (int64, error)
	GetKnownExternalIDs(ctx context.Context, tenantKey, sourceType string) (map[string]struct{}, error)
}

type MediaSelection string

const (
	MediaFeed    MediaSelection = "feed"
	MediaStories MediaSelection = "stories"
	MediaBoth    MediaSelection = "both"
)

func ParseMediaSelection(s string) (MediaSelection, error) {
	switch sel := MediaSelection(strings.ToLower(strings.TrimSpace(s))); sel {
	case "":
		return MediaFeed, nil
	case MediaFeed, MediaStories, MediaBoth:
		return sel, nil
	default:
		return "", fmt.Errorf("media selection %q must be feed, stories or both", s)
	}
}

func (m MediaSelection) feed() bool    { return m == MediaFeed || m == MediaBoth }
func (m MediaSelection) stories() bool { return m == MediaStories || m == MediaBoth }

type Options struct {
	TenantKey string
	// Limit caps processed units; zero means no limit.
	Limit int
	// Since stops the feed walk at the first item older than it. This relies
	// on the Graph API returning media newest first.
	Since      *time.Time
	MediaTypes MediaSelection
	DryRun     bool
	Category   string
}

type Pipeline struct {
	cfg      config.Backfill
	api      MediaAPI
	creds    CredentialResolver
	library  LibraryStore
	store    storage.ObjectStore
	download Downloader
	now      func() time.Time
}

func NewPipeline(cfg config.Backfill, api MediaAPI, creds CredentialResolver, library LibraryStore, store storage.ObjectStore, download Downloader) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		api:      api,
		creds:    creds,
		library:  library,
		store:    store,
		download: download,
		now:      time.Now,
	}
}

// run is the state of one backfill.
type run struct {
	*Pipeline
	opts   Options
	cred   *service.ResolvedCredential
	known  map[string]struct{}
	result *models.BackfillResult
}

// Run performs one backfill. Per-item failures are folded into the result;
// only credential, configuration and cancellation errors are returned, and
// then together with the partial result. Cancellation is checked before
// every unit, so items after it are neither processed nor counted.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*models.BackfillResult, error) {
	if opts.TenantKey == "" {
		return nil, errors.New("tenant key is empty")
	}
	if opts.MediaTypes == "" {
		opts.MediaTypes = MediaFeed
	}

	cred, err := p.creds.Resolve(ctx, opts.TenantKey)
	if err != nil {
		return nil, err
	}

	known, err := p.library.GetKnownExternalIDs(ctx, opts.TenantKey, models.SourceInstagram)
	if err != nil {
		return nil, err
	}

	r := &run{
		Pipeline: p,
		opts:     opts,
		cred:     cred,
		known:    known,
		result:   &models.BackfillResult{RunID: uuid.NewString(), DryRun: opts.DryRun},
	}

	log.Info().Str("run_id", r.result.RunID).Str("tenant", opts.TenantKey).Str("media", string(opts.MediaTypes)).
		Int("limit", opts.Limit).Bool("dry_run", opts.DryRun).Int("known", len(known)).Msg("backfill started")

	if opts.MediaTypes.feed() {
		err = r.walkFeed(ctx)
	}
	if err == nil && opts.MediaTypes.stories() && !r.limitReached() {
		err = r.walkStories(ctx)
	}

	res := r.result
	log.Info().Str("run_id", res.RunID).Int("downloaded", res.Downloaded).Int("duplicates", res.SkippedDuplicate).
		Int("unsupported", res.SkippedUnsupported).Int("failed", res.Failed).Int("seen", res.TotalAPIItems).
		Msg("backfill finished")
	return res, err
}

func (r *run) limitReached() bool {
	return r.opts.Limit > 0 && r.result.TotalProcessed() >= r.opts.Limit
}

// fetchFailed decides whether a listing error ends the run or only the walk.
func (r *run) fetchFailed(what string, err error) error {
	if apperrors.IsEscalated(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	log.Warn().Err(err).Str("run_id", r.result.RunID).Msg("backfill " + what + " failed")
	r.result.Note(fmt.Sprintf("%s: %v", what, err))
	return nil
}

func (r *run) walkFeed(ctx context.Context) error {
	after := ""
	for page := 1; page <= r.cfg.MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		resp, err := r.api.ListMedia(ctx, r.cred.AccessToken, r.cred.AccountID, after, r.cfg.PageSize)
		if err != nil {
			return r.fetchFailed(fmt.Sprintf("page %d", page), err)
		}

		for i := range resp.Data {
			if err := ctx.Err(); err != nil {
				return err
			}
			if r.limitReached() {
				return nil
			}
			m := resp.Data[i]
			if r.beforeCutoff(&m) {
				return nil
			}

			r.result.TotalAPIItems++
			if m.IsCarousel() {
				if err := r.expand(ctx, &m); err != nil {
					return err
				}
				continue
			}
			r.process(ctx, &m)
		}

		next, ok := resp.NextCursor()
		if !ok {
			return nil
		}
		after = next
	}

	log.Warn().Str("run_id", r.result.RunID).Int("max_pages", r.cfg.MaxPages).Msg("backfill stopped at page cap")
	return nil
}

func (r *run) beforeCutoff(m *transfer.InstagramMedia) bool {
	if r.opts.Since == nil {
		return false
	}
	taken, ok := m.TakenAt()
	return ok && taken.Before(*r.opts.Since)
}

// expand processes each child of a carousel as its own unit.
func (r *run) expand(ctx context.Context, parent *transfer.InstagramMedia) error {
	children, err := r.api.ListChildren(ctx, r.cred.AccessToken, parent.ID)
	if err != nil {
		if apperrors.IsEscalated(err) {
			return err
		}
		r.result.AddError(fmt.Sprintf("%s: expand carousel: %v", parent.ID, err))
		return nil
	}

	for i := range children {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.limitReached() {
			return nil
		}
		child := children[i]
		child.InheritFrom(parent)

		r.result.TotalAPIItems++
		r.process(ctx, &child)
	}
	return nil
}

func (r *run) walkStories(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	stories, err := r.api.ListStories(ctx, r.cred.AccessToken, r.cred.AccountID)
	if err != nil {
		return r.fetchFailed("stories", err)
	}

	for i := range stories {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.limitReached() {
			return nil
		}
		r.result.TotalAPIItems++
		r.process(ctx, &stories[i])
	}
	return nil
}

// process handles one unit and records exactly one outcome for it.
func (r *run) process(ctx context.Context, m *transfer.InstagramMedia) {
	res := r.result

	if _, seen := r.known[m.ID]; seen {
		res.SkippedDuplicate++
		return
	}

	switch strings.ToUpper(m.MediaType) {
	case transfer.MediaTypeImage, transfer.MediaTypeVideo:
	default:
		res.SkippedUnsupported++
		res.Note(fmt.Sprintf("%s: unsupported media type %q", m.ID, m.MediaType))
		return
	}

	if m.MediaURL == "" {
		res.AddError(fmt.Sprintf("%s: missing media url", m.ID))
		return
	}

	if r.opts.DryRun {
		r.known[m.ID] = struct{}{}
		res.Downloaded++
		return
	}

	data, err := r.download.Fetch(ctx, m.MediaURL)
	if err != nil {
		res.AddError(fmt.Sprintf("%s: %v", m.ID, err))
		return
	}
	if len(data) == 0 {
		res.AddError(fmt.Sprintf("%s: empty body", m.ID))
		return
	}

	kind, err := filetype.Match(data)
	if err != nil || !(filetype.IsImage(data) || filetype.IsVideo(data)) {
		res.SkippedUnsupported++
		res.Note(fmt.Sprintf("%s: %v", m.ID, apperrors.ErrUnsupportedMedia))
		return
	}

	taken, ok := m.TakenAt()
	if !ok {
		taken = r.now()
	}
	name := FileName(taken, m.ID, kind.Extension)
	key := path.Join(models.SourceInstagram, r.opts.TenantKey, name)

	location, err := r.store.Put(ctx, key, data, kind.MIME.Value)
	if err != nil {
		res.AddError(fmt.Sprintf("%s: store: %v", m.ID, err))
		return
	}

	item := &models.LibraryItem{
		TenantKey:   r.opts.TenantKey,
		SourceType:  models.SourceInstagram,
		ExternalID:  m.ID,
		ContentHash: storage.HashBytes(data),
		FileName:    name,
		Location:    location,
		MimeType:    kind.MIME.Value,
		FileSize:    int64(len(data)),
		Category:    r.opts.Category,
		Caption:     m.Caption,
		Permalink:   m.Permalink,
		Attribution: m.Username,
	}
	if ok {
		item.TakenAt = &taken
	}

	if _, err := r.library.Create(ctx, item); err != nil {
		if errors.Is(err, apperrors.ErrDuplicate) {
			r.known[m.ID] = struct{}{}
			res.SkippedDuplicate++
			return
		}
		res.AddError(fmt.Sprintf("%s: index: %v", m.ID, err))
		return
	}

	r.known[m.ID] = struct{}{}
	res.Downloaded++
}

// FileName builds YYYYMMDD_HHMMSS_<externalID>.<ext> in UTC.
func FileName(takenAt time.Time, externalID, ext string) string {
	name := takenAt.UTC().Format("20060102_150405") + "_" + externalID
	if ext != "" {
		name += "." + strings.TrimPrefix(ext, ".")
	}
	return name
}
