// Package worker 管理缓存中间层的生命周期：安装（预缓存外壳页面）→ 激活（清理旧代际）→ 就绪，
// 并执行观察者发来的控制命令。就绪之前内容请求必须被拒绝。
package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/signage-cache/internal/cache"
	"github.com/any-hub/signage-cache/internal/fetch"
	"github.com/any-hub/signage-cache/internal/logging"
	"github.com/any-hub/signage-cache/internal/preload"
	"github.com/any-hub/signage-cache/internal/registry"
)

// ErrNotReady 表示安装/激活尚未完成。
var ErrNotReady = errors.New("worker not ready")

// Options 汇总 Worker 依赖。
type Options struct {
	Registry    *registry.Registry
	Fetcher     fetch.Fetcher
	Preloader   *preload.Coordinator
	Origin      *url.URL
	Generation  registry.Generation
	ShellAssets []string
	Logger      *logrus.Logger
}

// Worker 是进程内唯一的缓存中间层实例。
type Worker struct {
	registry    *registry.Registry
	fetcher     fetch.Fetcher
	preloader   *preload.Coordinator
	origin      *url.URL
	generation  registry.Generation
	shellAssets []string
	logger      *logrus.Logger

	ready     atomic.Bool
	installed chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	jobs      sync.WaitGroup

	// mu 串行化代际切换：skipWaiting、clearCache 与配置热更新。
	mu sync.Mutex
}

// New 构造 Worker，尚未就绪。
func New(opts Options) *Worker {
	if opts.Logger == nil {
		opts.Logger = logging.NewDiscardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		registry:    opts.Registry,
		fetcher:     opts.Fetcher,
		preloader:   opts.Preloader,
		origin:      opts.Origin,
		generation:  opts.Generation,
		shellAssets: append([]string(nil), opts.ShellAssets...),
		logger:      opts.Logger,
		installed:   make(chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start 激活当前代际后立即就绪；外壳预缓存随后在后台进行，源站挂起不会阻塞就绪。
// 激活失败（存储不可用）返回错误，调用方应终止启动。
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.ready.Load() {
		w.mu.Unlock()
		return nil
	}
	gen := w.generation
	if err := w.registry.Activate(ctx, gen); err != nil {
		w.mu.Unlock()
		return fmt.Errorf("activate: %w", err)
	}
	w.ready.Store(true)
	w.mu.Unlock()

	w.logger.WithFields(logrus.Fields{
		"action":      "ready",
		"media_store": gen.MediaStore(),
		"data_store":  gen.DataStore(),
	}).Info("worker ready")

	w.jobs.Add(1)
	go func() {
		defer w.jobs.Done()
		defer close(w.installed)
		w.installBackground(gen)
	}()
	return nil
}

// Ready 报告初始化屏障是否已通过。
func (w *Worker) Ready() bool {
	return w.ready.Load()
}

// Installed 在启动时的外壳预缓存结束（成功、失败或被取消）后关闭。
func (w *Worker) Installed() <-chan struct{} {
	return w.installed
}

// installBackground 在 Worker 生命周期内取回外壳；写入前确认代际未被切换，
// 避免向已被清理的存储写入。
func (w *Worker) installBackground(gen registry.Generation) {
	entries, err := w.fetchShell(w.ctx)
	if err != nil {
		w.logger.WithError(err).WithField("action", "install_failed").Warn("shell precache failed")
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.generation != gen {
		w.logger.WithFields(logging.StoreFields("install", gen.MediaStore())).
			Info("generation switched before shell precache finished")
		return
	}
	if err := w.writeShell(w.ctx, gen, entries); err != nil {
		w.logger.WithError(err).WithField("action", "install_failed").Warn("shell precache failed")
	}
}

// install 预缓存外壳页面到 gen 的媒体存储。与 cache.addAll 一致：
// 所有页面都成功取回后才写入，任一失败则一个也不写。
func (w *Worker) install(ctx context.Context, gen registry.Generation) error {
	entries, err := w.fetchShell(ctx)
	if err != nil {
		return err
	}
	return w.writeShell(ctx, gen, entries)
}

type shellEntry struct {
	key     cache.Key
	resp    *http.Response
	payload []byte
}

func (w *Worker) fetchShell(ctx context.Context) ([]shellEntry, error) {
	entries := make([]shellEntry, 0, len(w.shellAssets))
	for _, asset := range w.shellAssets {
		key, err := cache.ResolveKey(w.origin, asset)
		if err != nil {
			return nil, err
		}
		resp, err := fetch.Get(ctx, w.fetcher, key)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", key, err)
		}
		if !fetch.IsOK(resp) {
			resp.Body.Close()
			return nil, fmt.Errorf("fetch %s: %w: status %d", key, fetch.ErrUnsuccessful, resp.StatusCode)
		}
		payload, err := cache.Duplicate(resp)
		if err != nil {
			return nil, err
		}
		entries = append(entries, shellEntry{key: key, resp: resp, payload: payload})
	}
	return entries, nil
}

func (w *Worker) writeShell(ctx context.Context, gen registry.Generation, entries []shellEntry) error {
	if len(entries) == 0 {
		return nil
	}
	store, err := w.registry.Get(ctx, gen.MediaStore())
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if _, err := cache.PutResponse(ctx, store, entry.key, entry.resp, entry.payload); err != nil {
			return err
		}
	}
	w.logger.WithFields(logging.StoreFields("install", store.Name())).
		WithField("assets", len(entries)).Info("shell precached")
	return nil
}
