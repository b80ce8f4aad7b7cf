package middleware

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/bankd/internal/logging"
)

func setupTestApp(t *testing.T, store IdempotencyStore) (*fiber.App, *int) {
	t.Helper()
	calls := 0
	app := fiber.New()
	app.Use(Idempotency(store, time.Minute, logging.Discard()))
	app.Post("/resource", func(c *fiber.Ctx) error {
		calls++
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"ok": true, "call": calls})
	})
	return app, &calls
}

func redisStore(t *testing.T) IdempotencyStore {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return NewRedisIdempotencyStore(client)
}

func stores(t *testing.T) map[string]IdempotencyStore {
	return map[string]IdempotencyStore{
		"redis":  redisStore(t),
		"memory": NewMemoryIdempotencyStore(time.Minute),
	}
}

func post(t *testing.T, app *fiber.App, key string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, "/resource", strings.NewReader("{}"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if key != "" {
		req.Header.Set(idempotencyKeyHeader, key)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(payload)
}

func TestIdempotencyWithoutHeaderPassesThrough(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			app, calls := setupTestApp(t, store)
			post(t, app, "")
			status, _ := post(t, app, "")
			if status != fiber.StatusCreated {
				t.Fatalf("expected %d got %d", fiber.StatusCreated, status)
			}
			if *calls != 2 {
				t.Fatalf("expected handler to run twice, ran %d", *calls)
			}
		})
	}
}

func TestIdempotencyReturnsCachedResponse(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			app, calls := setupTestApp(t, store)

			status, payload := post(t, app, "abc123")
			if status != fiber.StatusCreated {
				t.Fatalf("expected status %d got %d", fiber.StatusCreated, status)
			}

			// The second request must replay without invoking the handler again.
			status2, cached := post(t, app, "abc123")
			if status2 != fiber.StatusCreated {
				t.Fatalf("expected cached status %d got %d", fiber.StatusCreated, status2)
			}
			if cached != payload {
				t.Fatalf("expected cached payload %s got %s", payload, cached)
			}
			if *calls != 1 {
				t.Fatalf("expected one handler call, got %d", *calls)
			}

			var decoded map[string]any
			if err := json.Unmarshal([]byte(cached), &decoded); err != nil {
				t.Fatalf("cached payload invalid json: %v", err)
			}

			post(t, app, "other")
			if *calls != 2 {
				t.Fatalf("expected a distinct key to run the handler, got %d calls", *calls)
			}
		})
	}
}

func TestIdempotencyRejectsInFlightDuplicate(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			app, calls := setupTestApp(t, store)
			reserved, err := store.Reserve(context.Background(), idempotencyPrefix+"/resource:busy", inProgressMarker, time.Minute)
			if err != nil || !reserved {
				t.Fatalf("reserve: %v %v", reserved, err)
			}

			status, _ := post(t, app, "busy")
			if status != fiber.StatusConflict {
				t.Fatalf("expected %d got %d", fiber.StatusConflict, status)
			}
			if *calls != 0 {
				t.Fatalf("handler must not run for an in-flight duplicate")
			}
		})
	}
}

func TestMemoryIdempotencyStoreReserveIsExclusive(t *testing.T) {
	store := NewMemoryIdempotencyStore(time.Minute)
	ctx := context.Background()

	first, _ := store.Reserve(ctx, "k", inProgressMarker, time.Minute)
	second, _ := store.Reserve(ctx, "k", inProgressMarker, time.Minute)
	if !first || second {
		t.Fatalf("expected only the first reservation to win, got %v %v", first, second)
	}
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if again, _ := store.Reserve(ctx, "k", inProgressMarker, time.Minute); !again {
		t.Fatalf("expected reservation after delete")
	}
}
