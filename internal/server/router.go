package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ProxyHandler describes the component responsible for serving content
// requests. It allows injecting fake handlers during tests.
type ProxyHandler interface {
	Handle(fiber.Ctx, *Route) error
}

// ProxyHandlerFunc adapts a function to the ProxyHandler interface.
type ProxyHandlerFunc func(fiber.Ctx, *Route) error

// Handle makes ProxyHandlerFunc satisfy ProxyHandler.
func (f ProxyHandlerFunc) Handle(c fiber.Ctx, route *Route) error {
	return f(c, route)
}

// AppOptions controls how the Fiber application should behave.
type AppOptions struct {
	Logger  *logrus.Logger
	Origins *OriginTable
	Proxy   ProxyHandler
	// Ready reports whether install/activate has finished. Same-origin content
	// requests are rejected with 503 until it returns true.
	Ready      func() bool
	ListenPort int
}

const (
	contextKeyRoute     = "_signage_route"
	contextKeyRequestID = "_signage_request_id"
)

// NewApp builds a Fiber application with Host routing, the readiness barrier
// and structured error handling. Control routes under /-/ are registered by
// the routes package.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Origins == nil {
		return nil, errors.New("origin table is required")
	}
	if opts.Proxy == nil {
		return nil, errors.New("proxy handler is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware(opts))

	app.All("/*", func(c fiber.Ctx) error {
		if isDiagnosticsPath(string(c.Request().URI().Path())) {
			return c.Next()
		}
		route, _ := getRouteFromContext(c)
		if route == nil {
			return renderHostMissing(c, opts.Logger)
		}
		return opts.Proxy.Handle(c, route)
	})

	return app, nil
}

// requestContextMiddleware 负责生成请求 ID、按 Host 解析 Route，并在就绪前拒绝同源内容请求。
func requestContextMiddleware(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)

		if isDiagnosticsPath(string(c.Request().URI().Path())) {
			return c.Next()
		}

		route, ok := opts.Origins.Lookup(getHostHeader(c), c.Scheme())
		if !ok {
			return renderHostMissing(c, opts.Logger)
		}
		if route.SameOrigin && opts.Ready != nil && !opts.Ready() {
			return renderNotReady(c, opts.Logger, route)
		}

		c.Locals(contextKeyRoute, route)
		return c.Next()
	}
}

func renderHostMissing(c fiber.Ctx, logger *logrus.Logger) error {
	logger.WithFields(logrus.Fields{
		"action": "host_lookup",
		"path":   string(c.Request().URI().Path()),
	}).Warn("host missing")

	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": "host_missing",
	})
}

func renderNotReady(c fiber.Ctx, logger *logrus.Logger, route *Route) error {
	logger.WithFields(logrus.Fields{
		"action": "readiness",
		"host":   route.Host,
		"path":   string(c.Request().URI().Path()),
	}).Warn("content request before worker ready")

	c.Set(fiber.HeaderRetryAfter, "1")
	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error": "worker_not_ready",
	})
}

func getHostHeader(c fiber.Ctx) string {
	if raw := c.Request().Header.Peek(fiber.HeaderHost); len(raw) > 0 {
		return string(raw)
	}
	return c.Hostname()
}

func getRouteFromContext(c fiber.Ctx) (*Route, bool) {
	if value := c.Locals(contextKeyRoute); value != nil {
		if route, ok := value.(*Route); ok {
			return route, true
		}
	}
	return nil, false
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

func isDiagnosticsPath(path string) bool {
	return strings.HasPrefix(path, "/-/")
}
