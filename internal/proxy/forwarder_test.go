package proxy

import (
	"bytes"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"

	"github.com/any-hub/signage-cache/internal/server"
)

const requestIDKey = "_signage_request_id"

func TestForwarderMissingHandler(t *testing.T) {
	app := fiber.New()
	defer app.Shutdown()

	ctx := app.AcquireCtx(new(fasthttp.RequestCtx))
	defer app.ReleaseCtx(ctx)
	ctx.Locals(requestIDKey, "missing-req")

	logger := logrus.New()
	logBuf := &bytes.Buffer{}
	logger.SetOutput(logBuf)

	forwarder := NewForwarder(nil, nil, logger)
	route := &server.Route{Host: "kiosk.local", SameOrigin: true}

	if err := forwarder.Handle(ctx, route); err != nil {
		t.Fatalf("forwarder.Handle returned unexpected error: %v", err)
	}
	if status := ctx.Response().StatusCode(); status != fiber.StatusInternalServerError {
		t.Fatalf("expected 500 for missing handler, got %d", status)
	}
	if body := string(ctx.Response().Body()); !strings.Contains(body, "handler_missing") {
		t.Fatalf("expected error body to mention handler_missing, got %s", body)
	}
	if got := string(ctx.Response().Header.Peek("X-Request-ID")); got != "missing-req" {
		t.Fatalf("expected request id header missing-req, got %s", got)
	}
	if !strings.Contains(logBuf.String(), "missing-req") {
		t.Fatalf("expected log to include request id, got %s", logBuf.String())
	}
}

func TestForwarderHandlerPanic(t *testing.T) {
	app := fiber.New()
	defer app.Shutdown()
	ctx := app.AcquireCtx(new(fasthttp.RequestCtx))
	defer app.ReleaseCtx(ctx)
	ctx.Locals(requestIDKey, "panic-req")

	logger := logrus.New()
	logBuf := &bytes.Buffer{}
	logger.SetOutput(logBuf)

	content := server.ProxyHandlerFunc(func(fiber.Ctx, *server.Route) error {
		panic("boom")
	})
	forwarder := NewForwarder(content, nil, logger)

	if err := forwarder.Handle(ctx, &server.Route{Host: "kiosk.local", SameOrigin: true}); err != nil {
		t.Fatalf("forwarder.Handle returned unexpected error: %v", err)
	}
	if status := ctx.Response().StatusCode(); status != fiber.StatusInternalServerError {
		t.Fatalf("expected 500 for handler panic, got %d", status)
	}
	if body := string(ctx.Response().Body()); !strings.Contains(body, "handler_panic") {
		t.Fatalf("expected error body to mention handler_panic, got %s", body)
	}
	if !strings.Contains(logBuf.String(), "panic: boom") {
		t.Fatalf("expected log to include panic value, got %s", logBuf.String())
	}
	if got := string(ctx.Response().Header.Peek("X-Request-ID")); got != "panic-req" {
		t.Fatalf("expected request id header panic-req, got %s", got)
	}
}

func TestForwarderSelectsBySameOrigin(t *testing.T) {
	app := fiber.New()
	defer app.Shutdown()
	ctx := app.AcquireCtx(new(fasthttp.RequestCtx))
	defer app.ReleaseCtx(ctx)

	var picked string
	content := server.ProxyHandlerFunc(func(c fiber.Ctx, _ *server.Route) error {
		picked = "content"
		return nil
	})
	passthrough := server.ProxyHandlerFunc(func(c fiber.Ctx, _ *server.Route) error {
		picked = "passthrough"
		return nil
	})
	forwarder := NewForwarder(content, passthrough, logrus.New())

	_ = forwarder.Handle(ctx, &server.Route{Host: "cdn.example.net"})
	if picked != "passthrough" {
		t.Fatalf("cross-origin route should use passthrough, got %s", picked)
	}
	_ = forwarder.Handle(ctx, &server.Route{Host: "kiosk.local", SameOrigin: true})
	if picked != "content" {
		t.Fatalf("same-origin route should use content handler, got %s", picked)
	}
}
