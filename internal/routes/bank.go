package routes

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/bankd/internal/middleware"
	"github.com/congo-pay/bankd/internal/verbs"
)

// RegisterBankRoutes exposes the verb protocol. The path names the verb and
// the JSON body carries the rest of the request envelope.
func RegisterBankRoutes(r fiber.Router, d *verbs.Dispatcher, guards ...fiber.Handler) {
	r.Get("/bank", func(c *fiber.Ctx) error {
		resp := fiber.Map{"verbs": d.Verbs(), "ready": false}
		if b := d.Bank(); b != nil {
			resp["ready"] = true
			resp["bank"] = b.Ref()
		}
		return c.JSON(resp)
	})

	handlers := append(append([]fiber.Handler{}, guards...), dispatchVerb(d))
	r.Post("/bank/:verb", handlers...)
}

func dispatchVerb(d *verbs.Dispatcher) fiber.Handler {
	return func(c *fiber.Ctx) error {
		verb := c.Params("verb")
		c.Locals(middleware.LocalVerb, verb)

		var req verbs.Request
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return fiber.NewError(http.StatusBadRequest, err.Error())
			}
		}
		req.Verb = verb

		var reply *verbs.Reply
		out := verbs.ReplierFunc(func(_ context.Context, r verbs.Reply) {
			reply = &r
		})
		if err := d.Dispatch(c.UserContext(), req, out); err != nil {
			if errors.Is(err, verbs.ErrUnknownVerb) {
				return fiber.NewError(http.StatusNotFound, "unknown verb "+verb)
			}
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}

		if reply == nil {
			return c.Status(http.StatusAccepted).JSON(fiber.Map{"verb": verb, "xid": req.Xid})
		}
		if reply.Failed() {
			c.Locals(middleware.LocalVerbFailure, reply.Fail)
		}
		return c.Status(StatusForFailure(reply.Fail)).JSON(reply)
	}
}

// StatusForFailure maps a reply fail code to an HTTP status. An empty code is
// success.
func StatusForFailure(fail string) int {
	switch {
	case fail == "":
		return http.StatusOK
	case fail == verbs.FailAuth:
		return http.StatusForbidden
	case fail == verbs.FailUnready:
		return http.StatusServiceUnavailable
	case fail == verbs.FailNSF, fail == verbs.FailNotEmpty, fail == verbs.FailCurrExists, fail == verbs.FailOnceOnly:
		return http.StatusConflict
	case strings.HasSuffix(fail, "unwritable"):
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}
