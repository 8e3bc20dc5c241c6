package strategy

import (
	"context"
	"net/http"

	"github.com/any-hub/signage-cache/internal/cache"
	"github.com/any-hub/signage-cache/internal/fetch"
)

// Other 查媒体存储，未命中直接回源，回源结果不写入任何存储。
type Other struct {
	shared
	fetcher fetch.Fetcher
}

// Serve 实现 Strategy。
func (o *Other) Serve(ctx context.Context, req *http.Request) (Result, error) {
	if !cacheable(req) {
		return passthrough(ctx, o.fetcher, req)
	}

	store, err := o.registry.Media(ctx)
	if err != nil {
		return Result{}, err
	}
	if resp, ok := o.lookup(ctx, store, req, cache.KeyFromURL(req.URL)); ok {
		return Result{Response: resp, Source: SourceCache}, nil
	}
	return passthrough(ctx, o.fetcher, req)
}
