package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/reshare/internal/queue"
	"github.com/maheshrc27/reshare/internal/transfer"
)

type BackfillHandler struct {
	client queue.Enqueuer
}

func NewBackfillHandler(client queue.Enqueuer) *BackfillHandler {
	return &BackfillHandler{client: client}
}

// Trigger validates the request and queues a backfill run for the worker.
func (h *BackfillHandler) Trigger(c *fiber.Ctx) error {
	var req transfer.BackfillRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Unable to parse json")
		}
	}

	tenantKey := GetTenantKey(c)
	if _, err := queue.BackfillOptions(tenantKey, req); err != nil {
		return badRequest(c, err.Error())
	}

	runID, err := queue.EnqueueBackfill(c.Context(), h.client, tenantKey, req)
	if err != nil {
		return respondError(c, err, "Unable to queue backfill")
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"run_id": runID})
}
