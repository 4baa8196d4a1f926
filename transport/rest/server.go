package rest

import (
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-router"
)

// NewServer builds a fiber backed server with the controller mounted at the
// root group.
func NewServer(c *Controller) router.Server[*fiber.App] {
	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			UnescapePath:          true,
			StrictRouting:         false,
			DisableStartupMessage: true,
		}))
	})

	RegisterRoutes(srv.Router().Group("/"), c)
	return srv
}
