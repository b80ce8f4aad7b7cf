package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/bankd/internal/store"
)

// RegisterHealthRoutes adds liveness/readiness style endpoints. The service
// is ready once the store answers and the bank object has loaded.
func RegisterHealthRoutes(app *fiber.App, d Deps) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		storeStatus := "ok"
		bankStatus := "ok"

		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if p, ok := d.Store.(store.Pinger); ok {
			if err := p.Ping(ctx); err != nil {
				storeStatus = err.Error()
			}
		}
		if d.Dispatcher.Bank() == nil {
			bankStatus = "loading"
		}
		status := http.StatusOK
		if storeStatus != "ok" || bankStatus != "ok" {
			status = http.StatusServiceUnavailable
		}
		return c.Status(status).JSON(fiber.Map{
			"status":    fiber.Map{"store": storeStatus, "bank": bankStatus},
			"backend":   d.Cfg.StoreBackend,
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}
