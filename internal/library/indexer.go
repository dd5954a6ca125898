// Package library indexes media sources into library items.
package library

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/maheshrc27/reshare/internal/apperrors"
	"github.com/maheshrc27/reshare/internal/models"
	"github.com/maheshrc27/reshare/internal/storage"
	"github.com/rs/zerolog/log"
)

type LibraryStore interface {
	Create(ctx context.Context, item *models.LibraryItem) (int64, error)
	GetKnownExternalIDs(ctx context.Context, tenantKey, sourceType string) (map[string]struct{}, error)
}

type IndexResult struct {
	Indexed int      `json:"indexed"`
	Skipped int      `json:"skipped_duplicate"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

func (r *IndexResult) addError(detail string) {
	r.Failed++
	if len(r.Errors) < models.MaxBackfillErrors {
		r.Errors = append(r.Errors, detail)
	}
}

// Indexer copies source files into the object store and records them as
// library items keyed by content hash. A file's top-level folder becomes its
// category.
type Indexer struct {
	library LibraryStore
	store   storage.ObjectStore
}

func NewIndexer(library LibraryStore, store storage.ObjectStore) *Indexer {
	return &Indexer{library: library, store: store}
}

func (i *Indexer) Index(ctx context.Context, tenantKey string, src storage.MediaSource) (*IndexResult, error) {
	if !src.IsConfigured() {
		return nil, apperrors.New(apperrors.ErrConfiguration, "index", fmt.Errorf("%s source is not configured", src.SourceType()))
	}

	known, err := i.library.GetKnownExternalIDs(ctx, tenantKey, src.SourceType())
	if err != nil {
		return nil, err
	}

	folders, err := src.GetFolders(ctx)
	if err != nil {
		log.Error().Err(err).Str("source", src.SourceType()).Msg("error listing folders")
		return nil, err
	}
	if len(folders) == 0 {
		folders = []string{""}
	}

	res := &IndexResult{}
	for _, folder := range folders {
		files, err := src.ListFiles(ctx, folder)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.addError(fmt.Sprintf("folder %q: %v", folder, err))
			continue
		}

		for _, f := range files {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			i.indexFile(ctx, tenantKey, src, f, known, res)
		}
	}

	log.Info().Str("tenant", tenantKey).Str("source", src.SourceType()).Int("indexed", res.Indexed).
		Int("skipped", res.Skipped).Int("failed", res.Failed).Msg("library indexed")
	return res, nil
}

func (i *Indexer) indexFile(ctx context.Context, tenantKey string, src storage.MediaSource, f storage.FileInfo, known map[string]struct{}, res *IndexResult) {
	hash, err := src.CalculateFileHash(ctx, f.ID)
	if err != nil {
		res.addError(fmt.Sprintf("%s: hash: %v", f.ID, err))
		return
	}
	if _, seen := known[hash]; seen {
		res.Skipped++
		return
	}

	data, err := src.DownloadFile(ctx, f.ID)
	if err != nil {
		res.addError(fmt.Sprintf("%s: %v", f.ID, err))
		return
	}

	key := path.Join(src.SourceType(), tenantKey, hash[:12]+"_"+f.Name)
	location, err := i.store.Put(ctx, key, data, f.MimeType)
	if err != nil {
		res.addError(fmt.Sprintf("%s: store: %v", f.ID, err))
		return
	}

	item := &models.LibraryItem{
		TenantKey:   tenantKey,
		SourceType:  src.SourceType(),
		ExternalID:  hash,
		ContentHash: hash,
		FileName:    f.Name,
		Location:    location,
		MimeType:    f.MimeType,
		FileSize:    f.Size,
		Category:    f.Folder,
	}
	if !f.ModifiedAt.IsZero() {
		modified := f.ModifiedAt
		item.TakenAt = &modified
	}

	if _, err := i.library.Create(ctx, item); err != nil && !errors.Is(err, apperrors.ErrDuplicate) {
		res.addError(fmt.Sprintf("%s: index: %v", f.ID, err))
		return
	} else if err != nil {
		res.Skipped++
	} else {
		res.Indexed++
	}
	known[hash] = struct{}{}
}
