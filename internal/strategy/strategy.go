// Package strategy 实现三种按请求类别分派的缓存策略：
//
//   - Media：缓存优先，未命中时回源并写入媒体存储；
//   - StructuredData：网络优先，失败时回退到数据存储；
//   - Other：先查媒体存储（外壳文件也在其中），未命中直接回源且不写入。
//
// 策略每次请求都通过 registry 按名称打开存储，从不跨请求持有存储句柄。
// 写入在返回响应前完成，写入失败只记录日志与指标，不影响响应。
package strategy

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/signage-cache/internal/cache"
	"github.com/any-hub/signage-cache/internal/classify"
	"github.com/any-hub/signage-cache/internal/fetch"
	"github.com/any-hub/signage-cache/internal/logging"
	"github.com/any-hub/signage-cache/internal/metrics"
	"github.com/any-hub/signage-cache/internal/registry"
)

// Source 描述响应来自哪里。
type Source string

const (
	SourceCache   Source = "cache"
	SourceNetwork Source = "network"
	// SourceNone 表示网络失败且回退存储未命中，没有可返回的响应。
	SourceNone Source = "none"
)

// Result 是一次策略执行的结果。Source 为 SourceNone 时 Response 为空。
type Result struct {
	Response *http.Response
	Source   Source
}

// Strategy 处理一个已解析到源站的内容请求；req.URL 即资源键。
type Strategy interface {
	Serve(ctx context.Context, req *http.Request) (Result, error)
}

// Options 汇总策略依赖。MediaFetcher 为空时使用 Fetcher。
type Options struct {
	Registry     *registry.Registry
	Fetcher      fetch.Fetcher
	MediaFetcher fetch.Fetcher
	Logger       *logrus.Logger
	Metrics      *metrics.Metrics
}

// Dispatcher 按请求类别选择策略。
type Dispatcher struct {
	strategies map[classify.Class]Strategy
	metrics    *metrics.Metrics
}

// NewDispatcher 为每个类别构建策略。
func NewDispatcher(opts Options) *Dispatcher {
	if opts.Logger == nil {
		opts.Logger = logging.NewDiscardLogger()
	}
	mediaFetcher := opts.MediaFetcher
	if mediaFetcher == nil {
		mediaFetcher = opts.Fetcher
	}
	base := shared{registry: opts.Registry, logger: opts.Logger, metrics: opts.Metrics}
	return &Dispatcher{
		strategies: map[classify.Class]Strategy{
			classify.Media:          &Media{shared: base, fetcher: mediaFetcher},
			classify.StructuredData: &StructuredData{shared: base, fetcher: opts.Fetcher},
			classify.Other:          &Other{shared: base, fetcher: opts.Fetcher},
		},
		metrics: opts.Metrics,
	}
}

// For 返回类别对应的策略。
func (d *Dispatcher) For(class classify.Class) Strategy {
	return d.strategies[class]
}

// Serve 执行类别对应的策略并记录请求指标；失败记为 source=error。
func (d *Dispatcher) Serve(ctx context.Context, class classify.Class, req *http.Request) (Result, error) {
	result, err := d.For(class).Serve(ctx, req)
	source := string(result.Source)
	if err != nil {
		source = "error"
	}
	d.metrics.ObserveRequest(class.String(), source)
	return result, err
}

type shared struct {
	registry *registry.Registry
	logger   *logrus.Logger
	metrics  *metrics.Metrics
}

// lookup 查询存储；读取失败按未命中处理并记录日志。
func (s shared) lookup(ctx context.Context, store cache.Store, req *http.Request, key cache.Key) (*http.Response, bool) {
	entry, err := store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			s.logger.WithError(err).WithFields(logging.StoreFields("cache_read_failed", store.Name())).
				WithField("asset_key", key.String()).Warn("store read failed, treating as miss")
		}
		return nil, false
	}
	return entry.Response(req), true
}

// put 在返回响应前复制正文并写入存储。只有复制正文失败才返回错误：此时响应已不可用。
func (s shared) put(ctx context.Context, store cache.Store, kind string, key cache.Key, resp *http.Response) error {
	payload, err := cache.Duplicate(resp)
	if err != nil {
		return err
	}
	_, err = cache.PutResponse(ctx, store, key, resp, payload)
	s.metrics.ObserveStoreWrite(kind, err)
	if err != nil {
		s.logger.WithError(err).WithFields(logging.StoreFields("cache_write_failed", store.Name())).
			WithField("asset_key", key.String()).Error("store write failed")
	}
	return nil
}

// cacheable 只有 GET 请求参与缓存，其余方法直接回源。
func cacheable(req *http.Request) bool {
	return req.Method == http.MethodGet
}

func passthrough(ctx context.Context, f fetch.Fetcher, req *http.Request) (Result, error) {
	resp, err := f.Fetch(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("fetch %s: %w", req.URL, err)
	}
	return Result{Response: resp, Source: SourceNetwork}, nil
}
