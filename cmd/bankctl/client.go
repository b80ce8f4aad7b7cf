package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/bankd/internal/verbs"
)

// postVerb sends req to the server and decodes whatever JSON comes back.
func postVerb(m *metadata, req verbs.Request, idempotencyKey string) (int, map[string]any, error) {
	agent := fiber.Post(strings.TrimRight(m.server, "/") + "/api/v1/bank/" + req.Verb)
	agent.Timeout(m.timeout)
	if idempotencyKey != "" {
		agent.Set("Idempotency-Key", idempotencyKey)
	}
	agent.JSON(req)
	return decode(agent)
}

// describeBank fetches the server's bank summary and verb list.
func describeBank(m *metadata) (map[string]any, error) {
	agent := fiber.Get(strings.TrimRight(m.server, "/") + "/api/v1/bank")
	agent.Timeout(m.timeout)
	_, body, err := decode(agent)
	return body, err
}

func decode(agent *fiber.Agent) (int, map[string]any, error) {
	if err := agent.Parse(); err != nil {
		return 0, nil, fmt.Errorf("prepare request: %w", err)
	}
	status, payload, errs := agent.Bytes()
	if len(errs) > 0 {
		return 0, nil, fmt.Errorf("request failed: %w", errors.Join(errs...))
	}
	var body map[string]any
	if err := json.Unmarshal(payload, &body); err != nil {
		return status, nil, fmt.Errorf("decode response (status %d): %w", status, err)
	}
	return status, body, nil
}

func printJson(handle io.Writer, message interface{}) error {
	b, err := json.MarshalIndent(message, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(handle, "%s\n", b)
	return nil
}
