package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/bankd/internal/config"
	"github.com/congo-pay/bankd/internal/middleware"
	"github.com/congo-pay/bankd/internal/routes"
	"github.com/congo-pay/bankd/internal/store"
	"github.com/congo-pay/bankd/internal/verbs"
)

// Server wraps the Fiber application and shared dependencies.
type Server struct {
	app        *fiber.App
	cfg        config.Config
	dispatcher *verbs.Dispatcher
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
// When cache is nil, idempotency and rate limiting stay in process.
func New(cfg config.Config, st store.Store, cache *redis.Client, dispatcher *verbs.Dispatcher, logger *slog.Logger) (*Server, error) {
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorHandler: jsonErrorHandler,
	})

	deps := routes.Deps{
		Cfg:        cfg,
		Store:      st,
		Dispatcher: dispatcher,
		Logger:     logger,
	}
	if cache != nil {
		deps.Idempotency = middleware.NewRedisIdempotencyStore(cache)
	} else {
		deps.Idempotency = middleware.NewMemoryIdempotencyStore(cfg.IdempotencyTTL)
	}
	if cfg.RateLimitPerMinute > 0 {
		if cache != nil {
			deps.Limiter = middleware.NewRedisLimiter(cache, cfg.RateLimitPerMinute)
		} else {
			deps.Limiter = middleware.NewLocalLimiter(cfg.RateLimitPerMinute)
		}
	}

	if err := routes.Setup(app, deps); err != nil {
		return nil, err
	}

	return &Server{app: app, cfg: cfg, dispatcher: dispatcher}, nil
}

// App exposes the underlying Fiber application, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Address())
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func jsonErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
