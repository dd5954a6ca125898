package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/reshare/internal/service"
	"github.com/maheshrc27/reshare/internal/transfer"
)

type SettingsHandler struct {
	s service.TenantService
}

func NewSettingsHandler(s service.TenantService) *SettingsHandler {
	return &SettingsHandler{s: s}
}

func (h *SettingsHandler) GetSettings(c *fiber.Ctx) error {
	settings, err := h.s.GetSettings(c.Context(), GetTenantKey(c))
	if err != nil {
		return respondError(c, err, "Unable to find settings")
	}
	return c.JSON(settings)
}

func (h *SettingsHandler) UpdateSettings(c *fiber.Ctx) error {
	var req transfer.SettingsUpdate
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Unable to parse json")
	}

	settings, err := h.s.GetSettings(c.Context(), GetTenantKey(c))
	if err != nil {
		return respondError(c, err, "Unable to find settings")
	}
	req.Apply(settings)

	if err := h.s.UpdateSettings(c.Context(), settings); err != nil {
		return badRequest(c, err.Error())
	}
	return c.JSON(settings)
}

func (h *SettingsHandler) Pause(c *fiber.Ctx) error {
	if err := h.s.Pause(c.Context(), GetTenantKey(c)); err != nil {
		return respondError(c, err, "Unable to pause queue")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *SettingsHandler) Resume(c *fiber.Ctx) error {
	if err := h.s.Resume(c.Context(), GetTenantKey(c)); err != nil {
		return respondError(c, err, "Unable to resume queue")
	}
	return c.SendStatus(fiber.StatusNoContent)
}
