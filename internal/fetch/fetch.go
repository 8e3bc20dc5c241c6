// Package fetch is the network capability used by the caching strategies and
// the preload coordinator. Fetcher is deliberately tiny so tests can swap in
// a counting fake; the production implementation wraps a shared http.Client.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/any-hub/signage-cache/internal/cache"
	"github.com/any-hub/signage-cache/internal/version"
)

// ErrUnsuccessful 表示网络请求完成但状态码不是 2xx。
var ErrUnsuccessful = errors.New("unsuccessful response")

// Fetcher 执行一次网络请求。返回的响应由调用方关闭。
type Fetcher interface {
	Fetch(ctx context.Context, req *http.Request) (*http.Response, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, req *http.Request) (*http.Response, error)

// Fetch makes FetcherFunc satisfy Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	return f(ctx, req)
}

// HTTPFetcher 使用共享 http.Client 回源。
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher 包装 client；client 为空时使用 http.DefaultClient。
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{client: client}
}

// Fetch 绑定 ctx 后发出请求，缺省时补充 User-Agent。
func (f *HTTPFetcher) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", version.UserAgent())
	}
	return f.client.Do(req)
}

// Get 对 key 发起 GET。
func Get(ctx context.Context, f Fetcher, key cache.Key) (*http.Response, error) {
	req, err := NewRequest(ctx, key)
	if err != nil {
		return nil, err
	}
	return f.Fetch(ctx, req)
}

// NewRequest 为 key 构造 GET 请求。
func NewRequest(ctx context.Context, key cache.Key) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, key.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", key, err)
	}
	return req, nil
}

// IsOK 对应 fetch 的 response.ok：状态码在 200-299。
func IsOK(resp *http.Response) bool {
	return resp != nil && resp.StatusCode >= 200 && resp.StatusCode < 300
}
