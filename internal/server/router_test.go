package server

import (
	"bytes"
	"io"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
)

func TestRouterRoutesSameOriginRequest(t *testing.T) {
	app := newTestApp(t, true)

	req := httptest.NewRequest("GET", "http://kiosk.local/media/intro.mp4", nil)
	req.Host = "kiosk.local"

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 204 status, got %d (body=%s)", resp.StatusCode, string(body))
	}
	if app.recorder.last == nil || !app.recorder.last.SameOrigin {
		t.Fatalf("expected same-origin route, got %+v", app.recorder.last)
	}
	if reqID := resp.Header.Get("X-Request-ID"); reqID == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}
}

func TestRouterPassesCrossOriginThrough(t *testing.T) {
	app := newTestApp(t, true)

	req := httptest.NewRequest("GET", "http://cdn.example.net/lib.js", nil)
	req.Host = "cdn.example.net"

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("expected 204 status, got %d", resp.StatusCode)
	}
	if app.recorder.last == nil || app.recorder.last.SameOrigin {
		t.Fatalf("expected passthrough route, got %+v", app.recorder.last)
	}
}

func TestRouterRejectsContentBeforeReady(t *testing.T) {
	app := newTestApp(t, false)

	req := httptest.NewRequest("GET", "http://kiosk.local/index.html", nil)
	req.Host = "kiosk.local"

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusServiceUnavailable {
		t.Fatalf("expected 503 status, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(body, []byte(`"worker_not_ready"`)) {
		t.Fatalf("expected worker_not_ready error, got %s", string(body))
	}
	if app.recorder.calls.Load() != 0 {
		t.Fatalf("proxy must not run before ready")
	}

	app.ready.Store(true)
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("expected 204 after ready, got %d", resp.StatusCode)
	}
}

type testApp struct {
	*fiber.App
	recorder *proxyRecorder
	ready    *atomic.Bool
}

func newTestApp(t *testing.T, ready bool) *testApp {
	t.Helper()

	table, err := NewOriginTable(testConfig())
	if err != nil {
		t.Fatalf("failed to create origin table: %v", err)
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	flag := &atomic.Bool{}
	flag.Store(ready)
	recorder := &proxyRecorder{}
	app, err := NewApp(AppOptions{
		Logger:     logger,
		Origins:    table,
		Proxy:      recorder,
		Ready:      flag.Load,
		ListenPort: 5000,
	})
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}

	return &testApp{App: app, recorder: recorder, ready: flag}
}

type proxyRecorder struct {
	last  *Route
	calls atomic.Int32
}

func (p *proxyRecorder) Handle(c fiber.Ctx, route *Route) error {
	p.last = route
	p.calls.Add(1)
	return c.SendStatus(fiber.StatusNoContent)
}
