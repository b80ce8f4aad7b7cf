package middleware

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

func rateLimitedApp(limiter Limiter) *fiber.App {
	app := fiber.New()
	app.Use(RateLimit(limiter))
	app.Post("/verb", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func postKey(t *testing.T, app *fiber.App, key string) int {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, "/verb", strings.NewReader(`{"key":"`+key+`"}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func TestRateLimitPerKey(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	limiters := map[string]Limiter{
		"redis": NewRedisLimiter(client, 2),
		"local": NewLocalLimiter(2),
	}
	for name, limiter := range limiters {
		t.Run(name, func(t *testing.T) {
			app := rateLimitedApp(limiter)
			for i := 0; i < 2; i++ {
				if status := postKey(t, app, "key-a"); status != fiber.StatusOK {
					t.Fatalf("request %d: expected 200 got %d", i, status)
				}
			}
			if status := postKey(t, app, "key-a"); status != fiber.StatusTooManyRequests {
				t.Fatalf("expected 429 got %d", status)
			}
			if status := postKey(t, app, "key-b"); status != fiber.StatusOK {
				t.Fatalf("expected other key to be unaffected, got %d", status)
			}
		})
	}
}

func TestRedisLimiterWindowExpires(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	limiter := NewRedisLimiter(client, 1)
	ctx := context.Background()
	if ok, _ := limiter.Allow(ctx, "k"); !ok {
		t.Fatalf("expected first request allowed")
	}
	if ok, _ := limiter.Allow(ctx, "k"); ok {
		t.Fatalf("expected second request denied")
	}
	mr.FastForward(time.Minute + time.Second)
	if ok, _ := limiter.Allow(ctx, "k"); !ok {
		t.Fatalf("expected request allowed in a new window")
	}
}

func TestRateLimitFailsOpen(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	app := rateLimitedApp(NewRedisLimiter(client, 1))
	for i := 0; i < 3; i++ {
		if status := postKey(t, app, "k"); status != fiber.StatusOK {
			t.Fatalf("expected fail-open 200, got %d", status)
		}
	}
}
