package proxy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/signage-cache/internal/classify"
	"github.com/any-hub/signage-cache/internal/logging"
	"github.com/any-hub/signage-cache/internal/server"
	"github.com/any-hub/signage-cache/internal/strategy"
)

// Handler 负责同源内容请求：解析到源站 → 分类 → 交给对应缓存策略 → 流式写回。
type Handler struct {
	dispatcher *strategy.Dispatcher
	logger     *logrus.Logger
}

// NewHandler constructs a content handler on top of the strategy dispatcher.
func NewHandler(dispatcher *strategy.Dispatcher, logger *logrus.Logger) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Handle 执行分类与缓存策略，任何阶段出错都会输出结构化日志。
func (h *Handler) Handle(c fiber.Ctx, route *server.Route) error {
	started := time.Now()
	requestID := server.RequestID(c)

	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	upstreamURL := resolveUpstreamURL(route.Upstream, c)
	class := classify.Classify(upstreamURL.Path)
	req, err := buildUpstreamRequest(ctx, c, upstreamURL, route, true)
	if err != nil {
		h.logResult(class, upstreamURL, requestID, "", 0, started, err)
		return writeError(c, fiber.StatusBadRequest, "invalid_request")
	}

	result, err := h.dispatcher.Serve(ctx, class, req)
	if err != nil {
		h.logResult(class, upstreamURL, requestID, "", 0, started, err)
		return writeError(c, fiber.StatusBadGateway, "upstream_failed")
	}

	if result.Source == strategy.SourceNone {
		// 数据请求网络失败且没有缓存：返回空结果而不是异常。
		h.logResult(class, upstreamURL, requestID, string(result.Source), fiber.StatusGatewayTimeout, started, nil)
		c.Set("X-Signage-Cache-Source", string(result.Source))
		return c.Status(fiber.StatusGatewayTimeout).JSON(fiber.Map{})
	}

	resp := result.Response
	defer resp.Body.Close()

	c.Set("X-Signage-Class", class.String())
	c.Set("X-Signage-Cache-Source", string(result.Source))
	err = streamResponse(c, resp)
	h.logResult(class, upstreamURL, requestID, string(result.Source), resp.StatusCode, started, err)
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, fmt.Sprintf("proxy stream failed: %v", err))
	}
	return nil
}

func (h *Handler) logResult(
	class classify.Class,
	upstream *url.URL,
	requestID string,
	source string,
	status int,
	started time.Time,
	err error,
) {
	fields := logging.RequestFields(class.String(), upstream.String(), source, source == string(strategy.SourceCache))
	fields["action"] = "proxy"
	fields["upstream_status"] = status
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if requestID != "" {
		fields["request_id"] = requestID
	}
	if err != nil {
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Error("proxy_failed")
		return
	}
	h.logger.WithFields(fields).Info("proxy_complete")
}

// streamResponse 复制允许透传的响应头后写出状态码与正文；HEAD 请求不写正文。
func streamResponse(c fiber.Ctx, resp *http.Response) error {
	copyResponseHeaders(c, resp.Header)
	c.Status(resp.StatusCode)
	if c.Method() == http.MethodHead {
		return nil
	}
	_, err := io.Copy(c.Response().BodyWriter(), resp.Body)
	return err
}

// buildUpstreamRequest 以客户端请求为模板构造回源请求。rewriteHost 为 true 时
// Host 改写为源站并补充 X-Forwarded-* 头；透传请求保持原样。
func buildUpstreamRequest(
	ctx context.Context,
	c fiber.Ctx,
	upstream *url.URL,
	route *server.Route,
	rewriteHost bool,
) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, c.Method(), upstream.String(), bytesReader(c.Body()))
	if err != nil {
		return nil, err
	}

	server.CopyHeaders(req.Header, fiberHeadersAsHTTP(c))
	req.Header.Del("Accept-Encoding")
	req.Host = upstream.Host
	req.Header.Del("Host")
	if !rewriteHost {
		return req, nil
	}

	req.Header.Set("X-Forwarded-Host", c.Hostname())
	if ip := c.IP(); ip != "" {
		if prior := req.Header.Get("X-Forwarded-For"); prior != "" {
			req.Header.Set("X-Forwarded-For", prior+", "+ip)
		} else {
			req.Header.Set("X-Forwarded-For", ip)
		}
	}
	req.Header.Set("X-Forwarded-Proto", c.Scheme())
	req.Header.Set("X-Forwarded-Port", routePort(route))
	return req, nil
}

func writeError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}

// normalizeRequestPath 清理 . 与 .. 段，保留结尾的 /，使资源键与 cache.ResolveKey 一致。
func normalizeRequestPath(raw string) string {
	if raw == "" {
		raw = "/"
	}
	cleaned := path.Clean("/" + raw)
	if strings.HasSuffix(raw, "/") && cleaned != "/" {
		cleaned += "/"
	}
	return cleaned
}

func bytesReader(b []byte) io.Reader {
	if len(b) == 0 {
		return http.NoBody
	}
	return bytes.NewReader(append([]byte(nil), b...))
}

func resolveUpstreamURL(base *url.URL, c fiber.Ctx) *url.URL {
	uri := c.Request().URI()
	clean := normalizeRequestPath(string(uri.Path()))
	relative := &url.URL{Path: clean}
	if query := uri.QueryString(); len(query) > 0 {
		relative.RawQuery = string(query)
	}
	return base.ResolveReference(relative)
}

func fiberHeadersAsHTTP(c fiber.Ctx) http.Header {
	header := http.Header{}
	c.Request().Header.VisitAll(func(key, value []byte) {
		header.Add(string(key), string(value))
	})
	return header
}

func copyResponseHeaders(c fiber.Ctx, headers http.Header) {
	for key, values := range headers {
		if server.IsHopByHopHeader(key) {
			continue
		}
		for _, value := range values {
			c.Set(key, value)
		}
	}
}

func routePort(route *server.Route) string {
	if route == nil || route.ListenPort <= 0 {
		return "0"
	}
	return fmt.Sprintf("%d", route.ListenPort)
}
