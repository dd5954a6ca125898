package queue

import (
	"context"

	"github.com/maheshrc27/reshare/internal/backfill"
	"github.com/maheshrc27/reshare/internal/models"
	"github.com/maheshrc27/reshare/internal/service"
	"github.com/maheshrc27/reshare/internal/storage"
)

const (
	TaskTypePost     = "queue:post"
	TaskTypeBackfill = "backfill:run"
)

type ItemLoader interface {
	GetByID(ctx context.Context, tenantKey string, id int64) (*models.QueueItem, error)
}

type LibraryLoader interface {
	GetByID(ctx context.Context, tenantKey string, id int64) (*models.LibraryItem, error)
}

type CredentialResolver interface {
	Resolve(ctx context.Context, tenantKey string) (*service.ResolvedCredential, error)
}

type Publisher interface {
	Publish(ctx context.Context, accessToken, accountID, mediaURL, mimeType, caption string) (string, error)
}

type BackfillRunner interface {
	Run(ctx context.Context, opts backfill.Options) (*models.BackfillResult, error)
}

// Queue holds what the asynq handlers need to post an item or run a
// backfill.
type Queue struct {
	qs       service.QueueService
	items    ItemLoader
	library  LibraryLoader
	creds    CredentialResolver
	ig       Publisher
	store    storage.ObjectStore
	backfill BackfillRunner
}

func NewQueue(
	qs service.QueueService,
	items ItemLoader,
	library LibraryLoader,
	creds CredentialResolver,
	ig Publisher,
	store storage.ObjectStore,
	backfill BackfillRunner) *Queue {
	return &Queue{
		qs:       qs,
		items:    items,
		library:  library,
		creds:    creds,
		ig:       ig,
		store:    store,
		backfill: backfill,
	}
}
