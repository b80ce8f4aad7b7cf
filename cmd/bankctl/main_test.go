package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/bankd/internal/bank"
	"github.com/congo-pay/bankd/internal/config"
	"github.com/congo-pay/bankd/internal/logging"
	"github.com/congo-pay/bankd/internal/middleware"
	"github.com/congo-pay/bankd/internal/routes"
	"github.com/congo-pay/bankd/internal/store"
	"github.com/congo-pay/bankd/internal/verbs"
)

func startServer(t *testing.T) string {
	t.Helper()
	st := store.NewMemory()
	b, err := bank.Open(context.Background(), st, "bank")
	if err != nil {
		t.Fatalf("open bank: %v", err)
	}
	d := verbs.NewDispatcher(logging.Discard())
	d.SetBank(b)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	err = routes.Setup(app, routes.Deps{
		Cfg:         config.Config{IdempotencyTTL: time.Minute},
		Store:       st,
		Dispatcher:  d,
		Idempotency: middleware.NewMemoryIdempotencyStore(time.Minute),
		Logger:      logging.Discard(),
	})
	if err != nil {
		t.Fatalf("setup routes: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })
	return "http://" + ln.Addr().String()
}

func run(t *testing.T, args ...string) (map[string]any, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err := newApp(&out, &errOut).Run(append([]string{"bankctl"}, args...))
	if out.Len() == 0 {
		return nil, err
	}
	var reply map[string]any
	if jerr := json.Unmarshal(out.Bytes(), &reply); jerr != nil {
		t.Fatalf("decode output %q: %v", out.String(), jerr)
	}
	return reply, err
}

func TestBankctlDrivesVerbs(t *testing.T) {
	server := startServer(t)

	reply, err := run(t, "--server", server, "issuerootkey")
	if err != nil {
		t.Fatalf("issuerootkey: %v", err)
	}
	root := reply["rootkey"].(string)

	if _, err := run(t, "--server", server, "--key", root, "makecurrency", "--curr", "gold", "--memo", "shiny"); err != nil {
		t.Fatalf("makecurrency: %v", err)
	}
	reply, err = run(t, "--server", server, "--key", root, "makeaccounts", "--currs", "gold", "--memo", "ops")
	if err != nil {
		t.Fatalf("makeaccounts: %v", err)
	}
	account := reply["accounts"].([]any)[0].(string)

	reply, err = run(t, "--server", server, "--key", root, "mint", "--dst", account, "--amount", "70", "--idempotency-key", "m-1")
	if err != nil || reply["dstbal"] != float64(70) {
		t.Fatalf("mint: %v %v", reply, err)
	}

	reply, err = run(t, "--server", server, "--key", root, "unmint", "--src", account, "--amount", "500")
	if err == nil || !strings.HasPrefix(err.Error(), verbs.FailNSF) {
		t.Fatalf("expected nsf error, got %v", err)
	}
	if reply["fail"] != verbs.FailNSF {
		t.Fatalf("expected the failure reply printed, got %v", reply)
	}
}

func TestBankctlReleasesEncumbranceWithoutAmount(t *testing.T) {
	server := startServer(t)
	reply, err := run(t, "--server", server, "issuerootkey")
	if err != nil {
		t.Fatalf("issuerootkey: %v", err)
	}
	root := reply["rootkey"].(string)
	if _, err := run(t, "--server", server, "--key", root, "makecurrency", "--curr", "gold"); err != nil {
		t.Fatalf("makecurrency: %v", err)
	}
	reply, err = run(t, "--server", server, "--key", root, "makeaccounts", "--currs", "gold")
	if err != nil {
		t.Fatalf("makeaccounts: %v", err)
	}
	account := reply["accounts"].([]any)[0].(string)
	if _, err := run(t, "--server", server, "--key", root, "mint", "--dst", account, "--amount", "50"); err != nil {
		t.Fatalf("mint: %v", err)
	}
	reply, err = run(t, "--server", server, "--key", root, "encumber", "--src", account, "--amount", "20", "--expires", "never")
	if err != nil || reply["srcbal"] != float64(30) {
		t.Fatalf("encumber: %v %v", reply, err)
	}
	enc := reply["enc"].(string)

	reply, err = run(t, "--server", server, "--key", root, "releaseenc", "--enc", enc)
	if err != nil || reply["srcbal"] != float64(50) {
		t.Fatalf("releaseenc: %v %v", reply, err)
	}
}

func TestBankctlRequiresFields(t *testing.T) {
	_, err := run(t, "--server", "http://127.0.0.1:1", "mint", "--amount", "5")
	if err == nil || !strings.Contains(err.Error(), "--dst is required") {
		t.Fatalf("expected missing dst error, got %v", err)
	}
}

func TestBankctlListsVerbs(t *testing.T) {
	server := startServer(t)
	reply, err := run(t, "--server", server, "verbs")
	if err != nil {
		t.Fatalf("verbs: %v", err)
	}
	if reply["ready"] != true || len(reply["verbs"].([]any)) != len(verbDefs) {
		t.Fatalf("unexpected verbs reply %v", reply)
	}
}
