// Package api wires the fiber app.
package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	config "github.com/maheshrc27/reshare/configs"
	"github.com/maheshrc27/reshare/internal/api/handlers"
	"github.com/maheshrc27/reshare/internal/api/middleware"
	"github.com/rs/zerolog/log"
)

type Handlers struct {
	Auth     *handlers.AuthHandler
	Queue    *handlers.QueueHandler
	Backfill *handlers.BackfillHandler
	Settings *handlers.SettingsHandler
	Platform *handlers.PlatformHandler
	Library  *handlers.LibraryHandler
}

func NewApp(cfg config.Config) *fiber.App {
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Minute,
		WriteTimeout: 10 * time.Minute,
		BodyLimit:    4 * 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	if cfg.AppEnv != "test" {
		app.Use(logger.New())
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.FrontendURL,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))
	return app
}

func Register(app *fiber.App, auth *middleware.AuthMiddleware, h Handlers) {
	app.Get("/healthz", func(c *fiber.Ctx) error { return c.SendString("ok") })

	app.Get("/auth/:provider", auth.AuthMiddleware(), h.Auth.Connect)
	app.Get("/auth/:provider/callback", auth.OptionalAuth(), h.Auth.Callback)

	api := app.Group("/api")
	api.Use(auth.AuthMiddleware())

	api.Get("/queue", h.Queue.List)
	api.Post("/queue", h.Queue.Enqueue)
	api.Delete("/queue", h.Queue.DeleteAll)
	api.Post("/queue/:id/force", h.Queue.ForcePost)
	api.Get("/capacity", h.Queue.Capacity)
	api.Get("/history", h.Queue.History)

	api.Post("/backfill", h.Backfill.Trigger)

	api.Get("/library", h.Library.Unqueued)
	api.Post("/library/index", h.Library.Index)

	api.Get("/settings", h.Settings.GetSettings)
	api.Put("/settings", h.Settings.UpdateSettings)
	api.Post("/pause", h.Settings.Pause)
	api.Post("/resume", h.Settings.Resume)

	api.Get("/accounts", h.Platform.ListAccounts)
	api.Post("/accounts/:id/activate", h.Platform.ActivateAccount)
	api.Delete("/accounts/:id", h.Platform.RemoveAccount)
}
