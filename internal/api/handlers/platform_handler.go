package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/reshare/internal/models"
	"github.com/maheshrc27/reshare/internal/service"
)

type PlatformHandler struct {
	s service.TenantService
}

func NewPlatformHandler(s service.TenantService) *PlatformHandler {
	return &PlatformHandler{s: s}
}

func (h *PlatformHandler) ListAccounts(c *fiber.Ctx) error {
	accounts, err := h.s.ListAccounts(c.Context(), GetTenantKey(c))
	if err != nil {
		return respondError(c, err, "Failed to fetch accounts")
	}
	if accounts == nil {
		accounts = []*models.Account{}
	}
	return c.JSON(accounts)
}

func (h *PlatformHandler) ActivateAccount(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return badRequest(c, "Invalid account id")
	}
	if err := h.s.ActivateAccount(c.Context(), GetTenantKey(c), int64(id)); err != nil {
		return respondError(c, err, "Unable to activate account")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *PlatformHandler) RemoveAccount(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return badRequest(c, "Invalid account id")
	}
	if err := h.s.RemoveAccount(c.Context(), GetTenantKey(c), int64(id)); err != nil {
		return respondError(c, err, "Unable to delete account")
	}
	return c.SendStatus(fiber.StatusNoContent)
}
