package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/reshare/internal/api/middleware"
	"github.com/maheshrc27/reshare/internal/apperrors"
	"github.com/maheshrc27/reshare/internal/locker"
	"github.com/rs/zerolog/log"
)

func GetTenantKey(c *fiber.Ctx) string {
	tenantKey, _ := c.Locals(middleware.TenantKeyLocal).(string)
	return tenantKey
}

func statusFor(err error) int {
	if errors.Is(err, locker.ErrLockHeld) {
		return fiber.StatusConflict
	}
	switch apperrors.KindOf(err) {
	case apperrors.KindNotFound:
		return fiber.StatusNotFound
	case apperrors.KindInvalidTransition, apperrors.KindDuplicate:
		return fiber.StatusConflict
	case apperrors.KindRateLimited:
		return fiber.StatusTooManyRequests
	case apperrors.KindInvalidState:
		return fiber.StatusBadRequest
	case apperrors.KindCredentialExpired:
		return fiber.StatusPreconditionFailed
	case apperrors.KindTransientNetwork:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError logs err and writes it with a status derived from its kind.
func respondError(c *fiber.Ctx, err error, msg string) error {
	status := statusFor(err)
	ev := log.Warn()
	if status >= fiber.StatusInternalServerError {
		ev = log.Error()
	}
	ev.Err(err).Str("tenant", GetTenantKey(c)).Str("path", c.Path()).Msg(msg)

	return c.Status(status).JSON(fiber.Map{
		"error": msg,
		"kind":  apperrors.KindOf(err),
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": msg,
	})
}
