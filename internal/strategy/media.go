package strategy

import (
	"context"
	"fmt"
	"net/http"

	"github.com/any-hub/signage-cache/internal/cache"
	"github.com/any-hub/signage-cache/internal/fetch"
)

// Media 缓存优先：命中时不访问网络。
type Media struct {
	shared
	fetcher fetch.Fetcher
}

// Serve 实现 Strategy。网络失败原样返回给调用方，不做占位回退。
func (m *Media) Serve(ctx context.Context, req *http.Request) (Result, error) {
	if !cacheable(req) {
		return passthrough(ctx, m.fetcher, req)
	}

	store, err := m.registry.Media(ctx)
	if err != nil {
		return Result{}, err
	}
	key := cache.KeyFromURL(req.URL)
	if resp, ok := m.lookup(ctx, store, req, key); ok {
		return Result{Response: resp, Source: SourceCache}, nil
	}

	resp, err := m.fetcher.Fetch(ctx, fullRequest(ctx, req))
	if err != nil {
		return Result{}, fmt.Errorf("fetch %s: %w", key, err)
	}
	if !basicOK(req, resp) {
		return Result{Response: resp, Source: SourceNetwork}, nil
	}
	if err := m.put(ctx, store, "media", key, resp); err != nil {
		return Result{}, err
	}
	return Result{Response: resp, Source: SourceNetwork}, nil
}

// basicOK 只接受状态码 200 且最终地址（跟随重定向后）仍与请求同源的响应。
func basicOK(req *http.Request, resp *http.Response) bool {
	if resp == nil || resp.StatusCode != http.StatusOK {
		return false
	}
	final := req.URL
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL
	}
	return cache.SameOrigin(req.URL, final)
}

// partialHeaders 会让源站返回 206/304，而这两种响应都不会写入媒体存储。
var partialHeaders = []string{
	"Range",
	"If-Range",
	"If-Match",
	"If-None-Match",
	"If-Modified-Since",
	"If-Unmodified-Since",
}

// fullRequest 去掉分段与条件请求头，保证未命中时取回完整的 200 响应。
func fullRequest(ctx context.Context, req *http.Request) *http.Request {
	out := req.Clone(ctx)
	for _, h := range partialHeaders {
		out.Header.Del(h)
	}
	return out
}
