package strategy

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/signage-cache/internal/cache"
	"github.com/any-hub/signage-cache/internal/fetch"
)

// StructuredData 网络优先，数据存储独立于媒体存储。
type StructuredData struct {
	shared
	fetcher fetch.Fetcher
}

// Serve 实现 Strategy。网络失败时回退存储；回退未命中返回 SourceNone 而不是错误。
func (d *StructuredData) Serve(ctx context.Context, req *http.Request) (Result, error) {
	if !cacheable(req) {
		return passthrough(ctx, d.fetcher, req)
	}

	key := cache.KeyFromURL(req.URL)
	resp, fetchErr := d.fetcher.Fetch(ctx, req)
	if fetchErr == nil {
		if !fetch.IsOK(resp) {
			return Result{Response: resp, Source: SourceNetwork}, nil
		}
		store, err := d.registry.Data(ctx)
		if err != nil {
			resp.Body.Close()
			return Result{}, err
		}
		// 响应头到达后连接中断同样视为网络失败，走回退路径。
		fetchErr = d.put(ctx, store, "data", key, resp)
		if fetchErr == nil {
			return Result{Response: resp, Source: SourceNetwork}, nil
		}
	}

	store, err := d.registry.Data(ctx)
	if err != nil {
		return Result{}, err
	}
	cached, ok := d.lookup(ctx, store, req, key)
	d.logger.WithError(fetchErr).WithFields(logrus.Fields{
		"action":    "data_fallback",
		"asset_key": key.String(),
		"cache_hit": ok,
	}).Warn("network failed, falling back to data store")
	if !ok {
		return Result{Source: SourceNone}, nil
	}
	return Result{Response: cached, Source: SourceCache}, nil
}
