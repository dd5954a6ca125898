package handlers

import (
	"fmt"
	"net/url"

	"github.com/gofiber/fiber/v2"
	config "github.com/maheshrc27/reshare/configs"
	"github.com/maheshrc27/reshare/internal/service"
)

type AuthHandler struct {
	ts  service.TokenService
	cfg config.Config
}

func NewAuthHandler(cfg config.Config, ts service.TokenService) *AuthHandler {
	return &AuthHandler{ts: ts, cfg: cfg}
}

// Connect redirects the tenant to the provider's consent page.
func (h *AuthHandler) Connect(c *fiber.Ctx) error {
	authURL, err := h.ts.AuthURL(c.Context(), GetTenantKey(c), c.Params("provider"))
	if err != nil {
		return respondError(c, err, "Unable to start authorization")
	}
	return c.Redirect(authURL, fiber.StatusTemporaryRedirect)
}

func (h *AuthHandler) Callback(c *fiber.Ctx) error {
	provider := c.Params("provider")

	if reason := c.Query("error"); reason != "" {
		return h.redirect(c, provider, reason)
	}

	res, err := h.ts.CompleteAuthorization(c.Context(), provider, c.Query("code"), c.Query("state"), GetTenantKey(c))
	if err != nil {
		return respondError(c, err, "Unable to complete authorization")
	}

	if c.Accepts(fiber.MIMEApplicationJSON, fiber.MIMETextHTML) == fiber.MIMEApplicationJSON {
		return c.JSON(res)
	}
	return h.redirect(c, provider, "")
}

func (h *AuthHandler) redirect(c *fiber.Ctx, provider, reason string) error {
	params := url.Values{}
	params.Set("provider", provider)
	if reason != "" {
		params.Set("error", reason)
	}
	return c.Redirect(fmt.Sprintf("%s/dashboard/accounts?%s", h.cfg.FrontendURL, params.Encode()), fiber.StatusTemporaryRedirect)
}
