package proxy

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/signage-cache/internal/fetch"
	"github.com/any-hub/signage-cache/internal/server"
)

// Passthrough 处理跨源请求：不分类、不查存储、不写存储，直接转发到请求自身的 Host。
type Passthrough struct {
	fetcher fetch.Fetcher
	logger  *logrus.Logger
}

// NewPassthrough 使用 fetcher 转发跨源请求。
func NewPassthrough(fetcher fetch.Fetcher, logger *logrus.Logger) *Passthrough {
	return &Passthrough{fetcher: fetcher, logger: logger}
}

// Handle 实现 server.ProxyHandler。
func (p *Passthrough) Handle(c fiber.Ctx, route *server.Route) error {
	started := time.Now()
	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	upstreamURL := resolveUpstreamURL(route.Upstream, c)
	fields := logrus.Fields{
		"action":     "passthrough",
		"upstream":   upstreamURL.String(),
		"request_id": server.RequestID(c),
	}

	req, err := buildUpstreamRequest(ctx, c, upstreamURL, route, false)
	if err != nil {
		p.logger.WithFields(fields).WithError(err).Error("passthrough_failed")
		return writeError(c, fiber.StatusBadRequest, "invalid_request")
	}

	resp, err := p.fetcher.Fetch(ctx, req)
	if err != nil {
		p.logger.WithFields(fields).WithError(err).Error("passthrough_failed")
		return writeError(c, fiber.StatusBadGateway, "upstream_failed")
	}
	defer resp.Body.Close()

	err = streamResponse(c, resp)
	fields["upstream_status"] = resp.StatusCode
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if err != nil {
		p.logger.WithFields(fields).WithError(err).Error("passthrough_failed")
		return fiber.NewError(fiber.StatusBadGateway, fmt.Sprintf("proxy stream failed: %v", err))
	}
	p.logger.WithFields(fields).Debug("passthrough_complete")
	return nil
}
