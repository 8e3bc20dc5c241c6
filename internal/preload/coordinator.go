// Package preload 实现批量预加载：先与媒体存储做差集，只下载缺失的资源，
// 并把进度广播给所有观察者。
package preload

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/any-hub/signage-cache/internal/cache"
	"github.com/any-hub/signage-cache/internal/fetch"
	"github.com/any-hub/signage-cache/internal/logging"
	"github.com/any-hub/signage-cache/internal/metrics"
	"github.com/any-hub/signage-cache/internal/notify"
	"github.com/any-hub/signage-cache/internal/registry"
)

const defaultCheckConcurrency = 8

// Options 汇总协调器依赖。
type Options struct {
	Registry    *registry.Registry
	Fetcher     fetch.Fetcher
	Broadcaster notify.Broadcaster
	// Origin 用于把站内相对地址解析为资源键。
	Origin *url.URL
	// CheckConcurrency 限制成员检查的并发数。
	CheckConcurrency int
	Logger           *logrus.Logger
	Metrics          *metrics.Metrics
}

// Coordinator 串行执行预加载任务：后到的任务等待前一个结束后再做差集，
// 重叠的地址不会被重复下载，进度事件也不会交错。
type Coordinator struct {
	registry    *registry.Registry
	fetcher     fetch.Fetcher
	events      notify.Broadcaster
	origin      *url.URL
	concurrency int
	logger      *logrus.Logger
	metrics     *metrics.Metrics

	mu sync.Mutex
}

// Summary 汇总一次任务的结果，用于日志与测试。
type Summary struct {
	JobID         string
	Requested     int
	AlreadyCached int
	Downloaded    int
	Failed        []string
}

// New 构造 Coordinator。
func New(opts Options) *Coordinator {
	if opts.Logger == nil {
		opts.Logger = logging.NewDiscardLogger()
	}
	if opts.CheckConcurrency <= 0 {
		opts.CheckConcurrency = defaultCheckConcurrency
	}
	return &Coordinator{
		registry:    opts.Registry,
		fetcher:     opts.Fetcher,
		events:      opts.Broadcaster,
		origin:      opts.Origin,
		concurrency: opts.CheckConcurrency,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
	}
}

// Preload 运行一次预加载任务。单个资源失败只记录日志并跳过，不会中断任务也不会重试；
// 只有媒体存储不可用时返回错误。
func (c *Coordinator) Preload(ctx context.Context, urls []string) (Summary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	summary := Summary{JobID: uuid.NewString(), Requested: len(urls)}
	log := c.logger.WithFields(logging.JobFields(summary.JobID, len(urls)))
	c.metrics.ObservePreloadJob()

	store, err := c.registry.Media(ctx)
	if err != nil {
		return summary, fmt.Errorf("open media store: %w", err)
	}

	keys, cached := c.check(ctx, store, urls)
	pending := make([]int, 0, len(urls))
	for i := range urls {
		if cached[i] {
			summary.AlreadyCached++
			continue
		}
		pending = append(pending, i)
	}
	log.WithField("already_cached", summary.AlreadyCached).Info("preload_diff")

	if len(pending) == 0 {
		c.events.Broadcast(notify.AlreadyCached{Total: len(urls)})
		return summary, nil
	}

	for _, i := range pending {
		raw := urls[i]
		if err := c.download(ctx, store, keys[i], raw); err != nil {
			c.metrics.ObservePreloadDownload(err)
			summary.Failed = append(summary.Failed, raw)
			log.WithError(err).WithField("url", raw).Warn("preload_download_failed")
			continue
		}
		c.metrics.ObservePreloadDownload(nil)
		summary.Downloaded++
		c.events.Broadcast(notify.DownloadProgress{
			Current: summary.Downloaded,
			Total:   len(pending),
			URL:     raw,
		})
	}

	c.events.Broadcast(notify.DownloadComplete{
		Downloaded: summary.Downloaded,
		Total:      len(pending),
		TotalFiles: len(urls),
	})
	log.WithFields(logrus.Fields{
		"downloaded": summary.Downloaded,
		"failed":     len(summary.Failed),
	}).Info("preload_complete")
	return summary, nil
}

// check 并发检查成员关系，结果按下标写回以保持与输入一一对应。
// 无法解析的地址与检查出错的地址都视为未命中。
func (c *Coordinator) check(ctx context.Context, store cache.Store, urls []string) ([]cache.Key, []bool) {
	keys := make([]cache.Key, len(urls))
	cached := make([]bool, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, raw := range urls {
		g.Go(func() error {
			key, err := cache.ResolveKey(c.origin, raw)
			if err != nil {
				return nil
			}
			keys[i] = key
			has, err := store.Has(gctx, key)
			if err != nil {
				c.logger.WithError(err).WithFields(logging.StoreFields("preload_check_failed", store.Name())).
					WithField("url", raw).Warn("membership check failed, treating as miss")
				return nil
			}
			cached[i] = has
			return nil
		})
	}
	_ = g.Wait()
	return keys, cached
}

func (c *Coordinator) download(ctx context.Context, store cache.Store, key cache.Key, raw string) error {
	if key == "" {
		return fmt.Errorf("invalid asset url %q", raw)
	}
	resp, err := fetch.Get(ctx, c.fetcher, key)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if !fetch.IsOK(resp) {
		return fmt.Errorf("%w: status %d", fetch.ErrUnsuccessful, resp.StatusCode)
	}

	meta := cache.Meta{Status: resp.StatusCode, Header: resp.Header.Clone()}
	if _, err := store.Put(ctx, key, meta, resp.Body); err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	return nil
}
