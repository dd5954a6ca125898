package handlers

import (
	"github.com/gofiber/fiber/v2"
	config "github.com/maheshrc27/reshare/configs"
	"github.com/maheshrc27/reshare/internal/models"
	"github.com/maheshrc27/reshare/internal/repository"
	"github.com/maheshrc27/reshare/internal/service"
	"github.com/maheshrc27/reshare/internal/transfer"
)

type QueueHandler struct {
	qs      service.QueueService
	history repository.HistoryRepository
	cfg     config.Queue
}

func NewQueueHandler(qs service.QueueService, history repository.HistoryRepository, cfg config.Queue) *QueueHandler {
	return &QueueHandler{qs: qs, history: history, cfg: cfg}
}

func (h *QueueHandler) List(c *fiber.Ctx) error {
	items, err := h.qs.List(c.Context(), GetTenantKey(c))
	if err != nil {
		return respondError(c, err, "Failed to fetch queue")
	}
	if items == nil {
		items = []*models.QueueItem{}
	}
	return c.JSON(transfer.QueueResponse{Items: items})
}

func (h *QueueHandler) Enqueue(c *fiber.Ctx) error {
	var req transfer.EnqueueRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Unable to parse json")
	}
	if len(req.LibraryItemIDs) == 0 {
		return badRequest(c, "library_item_ids is empty")
	}

	items, err := h.qs.Enqueue(c.Context(), GetTenantKey(c), req.LibraryItemIDs)
	if err != nil {
		return respondError(c, err, "Unable to enqueue items")
	}
	return c.Status(fiber.StatusCreated).JSON(transfer.QueueResponse{Items: items})
}

func (h *QueueHandler) ForcePost(c *fiber.Ctx) error {
	itemID, err := c.ParamsInt("id")
	if err != nil || itemID <= 0 {
		return badRequest(c, "Invalid queue item id")
	}

	plan, err := h.qs.ForcePost(c.Context(), GetTenantKey(c), int64(itemID))
	if err != nil {
		return respondError(c, err, "Unable to force post")
	}
	return c.Status(fiber.StatusAccepted).JSON(transfer.ForcePostResponse{
		ItemID:    int64(itemID),
		Shifted:   plan.Shifted,
		Discarded: plan.Discarded,
	})
}

func (h *QueueHandler) DeleteAll(c *fiber.Ctx) error {
	n, err := h.qs.DeleteAllPending(c.Context(), GetTenantKey(c))
	if err != nil {
		return respondError(c, err, "Unable to clear queue")
	}
	return c.JSON(fiber.Map{"deleted": n})
}

func (h *QueueHandler) Capacity(c *fiber.Ctx) error {
	remaining, err := h.qs.RemainingCapacity(c.Context(), GetTenantKey(c))
	if err != nil {
		return respondError(c, err, "Unable to compute capacity")
	}
	return c.JSON(transfer.CapacityResponse{Remaining: remaining, Window: h.cfg.RateWindow})
}

func (h *QueueHandler) History(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	if limit < 1 || limit > 500 {
		return badRequest(c, "limit must be between 1 and 500")
	}

	records, err := h.history.ListByTenant(c.Context(), GetTenantKey(c), limit)
	if err != nil {
		return respondError(c, err, "Failed to fetch history")
	}
	if records == nil {
		records = []*models.HistoryRecord{}
	}
	return c.JSON(records)
}
