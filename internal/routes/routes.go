package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/congo-pay/bankd/internal/config"
	"github.com/congo-pay/bankd/internal/middleware"
	"github.com/congo-pay/bankd/internal/store"
	"github.com/congo-pay/bankd/internal/verbs"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg         config.Config
	Store       store.Store
	Dispatcher  *verbs.Dispatcher
	Idempotency middleware.IdempotencyStore
	Limiter     middleware.Limiter
	Logger      *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if d.Store == nil {
		return fmt.Errorf("a document store is required")
	}
	if d.Dispatcher == nil {
		return fmt.Errorf("a verb dispatcher is required")
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	// Plain text access log: [HH:MM:SS] 200 -  145ms METHOD /path
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))

	// Health
	RegisterHealthRoutes(app, d)

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.GetRequestID(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	var guards []fiber.Handler
	if d.Limiter != nil {
		guards = append(guards, middleware.RateLimit(d.Limiter))
	}
	if d.Idempotency != nil {
		guards = append(guards, middleware.Idempotency(d.Idempotency, d.Cfg.IdempotencyTTL, d.Logger))
	}
	RegisterBankRoutes(api, d.Dispatcher, guards...)

	return nil
}
