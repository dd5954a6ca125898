package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	config "github.com/maheshrc27/reshare/configs"
	"github.com/maheshrc27/reshare/internal/apperrors"
	"github.com/maheshrc27/reshare/internal/library"
	"github.com/maheshrc27/reshare/internal/models"
	"github.com/maheshrc27/reshare/internal/repository"
	"github.com/maheshrc27/reshare/internal/service"
	"github.com/maheshrc27/reshare/internal/storage"
	"github.com/maheshrc27/reshare/internal/transfer"
)

type LibraryHandler struct {
	cfg     config.Config
	indexer *library.Indexer
	library repository.LibraryRepository
	ts      service.TokenService
}

func NewLibraryHandler(cfg config.Config, indexer *library.Indexer, library repository.LibraryRepository, ts service.TokenService) *LibraryHandler {
	return &LibraryHandler{cfg: cfg, indexer: indexer, library: library, ts: ts}
}

func (h *LibraryHandler) source(ctx context.Context, tenantKey, name string) (storage.MediaSource, error) {
	switch name {
	case "", models.SourceLocal:
		if h.cfg.LibraryDir == "" {
			return nil, apperrors.New(apperrors.ErrConfiguration, "library source", errors.New("LIBRARY_DIR is not set"))
		}
		return storage.NewLocalSource(h.cfg.LibraryDir), nil
	case models.SourceDrive:
		client, err := h.ts.GoogleClient(ctx, tenantKey)
		if err != nil {
			return nil, err
		}
		return storage.NewDriveSource(ctx, client, h.cfg.Google.DriveFolderID)
	default:
		return nil, apperrors.New(apperrors.ErrNotFound, "library source", errors.New(name))
	}
}

// Index scans a media source into the tenant's library.
func (h *LibraryHandler) Index(c *fiber.Ctx) error {
	var req transfer.IndexRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Unable to parse json")
		}
	}

	tenantKey := GetTenantKey(c)
	src, err := h.source(c.Context(), tenantKey, req.Source)
	if err != nil {
		return respondError(c, err, "Unable to open media source")
	}

	res, err := h.indexer.Index(c.Context(), tenantKey, src)
	if err != nil {
		return respondError(c, err, "Unable to index media source")
	}
	return c.JSON(res)
}

// Unqueued lists library items that are not in the queue.
func (h *LibraryHandler) Unqueued(c *fiber.Ctx) error {
	items, err := h.library.ListUnqueued(c.Context(), GetTenantKey(c), c.Query("category"), c.QueryInt("limit", 50))
	if err != nil {
		return respondError(c, err, "Failed to fetch library")
	}
	if items == nil {
		items = []*models.LibraryItem{}
	}
	return c.JSON(items)
}
