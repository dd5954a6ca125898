package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	config "github.com/maheshrc27/reshare/configs"
	"github.com/maheshrc27/reshare/pkg/utils"
	"github.com/rs/zerolog/log"
)

const TenantKeyLocal = "tenant_key"

type AuthMiddleware struct {
	cfg config.Config
}

func NewAuthMiddleware(cfg config.Config) *AuthMiddleware {
	return &AuthMiddleware{cfg: cfg}
}

// AuthMiddleware accepts a session token from the cookie or a bearer header
// and stores the tenant key in locals.
func (m *AuthMiddleware) AuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := m.sessionToken(c)
		if tokenString == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing session token",
			})
		}

		claims, err := utils.ValidateToken(m.cfg.JWTSecret, tokenString)
		if err != nil {
			c.Cookie(&fiber.Cookie{
				Name:   m.cfg.CookieName,
				Value:  "",
				Path:   "/",
				MaxAge: -1,
			})

			log.Warn().Err(err).Str("path", c.Path()).Msg("token validation failed")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals(TenantKeyLocal, claims.TenantKey)
		return c.Next()
	}
}

// OptionalAuth stores the tenant key when a valid session token is present
// and lets the request through either way.
func (m *AuthMiddleware) OptionalAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := m.sessionToken(c)
		if tokenString == "" {
			return c.Next()
		}
		if claims, err := utils.ValidateToken(m.cfg.JWTSecret, tokenString); err == nil {
			c.Locals(TenantKeyLocal, claims.TenantKey)
		}
		return c.Next()
	}
}

func (m *AuthMiddleware) sessionToken(c *fiber.Ctx) string {
	if token := c.Cookies(m.cfg.CookieName); token != "" {
		return token
	}
	if h := c.Get(fiber.HeaderAuthorization); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}
