// Package registry owns store identity: it names the two logical stores of a
// generation, opens them, evicts stale generations at activation time and
// clears everything on request. Other components refer to stores by name and
// resolve them through Registry.Get on every use, so a generation switch never
// leaves them holding a handle to a deleted store.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/signage-cache/internal/cache"
	"github.com/any-hub/signage-cache/internal/logging"
)

const (
	mediaKind = "media"
	dataKind  = "data"
)

// ErrNotActivated 表示在 Activate 完成前访问了当前代际。
var ErrNotActivated = errors.New("store registry not activated")

// Generation 描述一对存储版本。
type Generation struct {
	MediaVersion string
	DataVersion  string
}

// MediaStore 返回该代际的媒体/外壳存储名称，例如 media-v4。
func (g Generation) MediaStore() string {
	return StoreName(mediaKind, g.MediaVersion)
}

// DataStore 返回该代际的结构化数据存储名称，例如 data-v4。
func (g Generation) DataStore() string {
	return StoreName(dataKind, g.DataVersion)
}

// StoreName 按 <kind>-<version> 拼接存储名称。
func StoreName(kind, version string) string {
	return kind + "-" + version
}

// Registry 是存储身份的唯一修改者。
type Registry struct {
	backend cache.Backend
	logger  *logrus.Logger

	mu      sync.RWMutex
	current Generation
	active  bool
	waiting *Generation
}

// New 构造 Registry；logger 为空时丢弃日志。
func New(backend cache.Backend, logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Registry{
		backend: backend,
		logger:  logger,
	}
}

// Activate 打开（必要时创建）当前代际的两个存储，然后删除所有名称不属于当前代际的存储。
// 调用是阻塞的：返回前内容请求不应被处理。存储不可用时返回错误。
func (r *Registry) Activate(ctx context.Context, gen Generation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activateLocked(ctx, gen)
}

func (r *Registry) activateLocked(ctx context.Context, gen Generation) error {
	media, data := gen.MediaStore(), gen.DataStore()
	for _, name := range []string{media, data} {
		if _, err := r.backend.Open(ctx, name); err != nil {
			return fmt.Errorf("activate %s: %w", name, err)
		}
	}

	names, err := r.backend.Names(ctx)
	if err != nil {
		return fmt.Errorf("enumerate stores: %w", err)
	}

	for _, name := range names {
		if name == media || name == data {
			continue
		}
		if err := r.backend.Delete(ctx, name); err != nil {
			return fmt.Errorf("evict %s: %w", name, err)
		}
		r.logger.WithFields(logging.StoreFields("store_evict", name)).Info("stale store deleted")
	}

	r.current = gen
	r.active = true
	if r.waiting != nil && *r.waiting == gen {
		r.waiting = nil
	}
	r.logger.WithFields(logrus.Fields{
		"action":      "activate",
		"media_store": media,
		"data_store":  data,
	}).Info("store generation activated")
	return nil
}

// Get 打开具名存储（不存在时创建）。只有底层存储不可用时才会失败。
func (r *Registry) Get(ctx context.Context, name string) (cache.Store, error) {
	store, err := r.backend.Open(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", name, err)
	}
	return store, nil
}

// Media 打开当前代际的媒体存储。
func (r *Registry) Media(ctx context.Context) (cache.Store, error) {
	name, err := r.currentName(Generation.MediaStore)
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, name)
}

// Data 打开当前代际的结构化数据存储。
func (r *Registry) Data(ctx context.Context) (cache.Store, error) {
	name, err := r.currentName(Generation.DataStore)
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, name)
}

func (r *Registry) currentName(pick func(Generation) string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.active {
		return "", ErrNotActivated
	}
	return pick(r.current), nil
}

// Current 返回当前代际；未激活时第二个返回值为 false。
func (r *Registry) Current() (Generation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current, r.active
}

// ClearAll 删除所有已知存储（不区分代际）。单个删除失败不会中断其余删除，
// 任一失败时返回 false。
func (r *Registry) ClearAll(ctx context.Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	names, err := r.backend.Names(ctx)
	if err != nil {
		r.logger.WithError(err).WithField("action", "clear_cache").Error("enumerate stores failed")
		return false
	}

	success := true
	for _, name := range names {
		if err := r.backend.Delete(ctx, name); err != nil {
			success = false
			r.logger.WithError(err).WithFields(logging.StoreFields("clear_cache", name)).Error("store delete failed")
		}
	}
	r.logger.WithFields(logrus.Fields{
		"action":  "clear_cache",
		"stores":  len(names),
		"success": success,
	}).Info("all caches cleared")
	return success
}

// Stage 记录一个等待中的代际；与当前代际相同时忽略。
func (r *Registry) Stage(gen Generation) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active && gen == r.current {
		r.waiting = nil
		return false
	}
	staged := gen
	r.waiting = &staged
	r.logger.WithFields(logrus.Fields{
		"action":      "stage",
		"media_store": gen.MediaStore(),
		"data_store":  gen.DataStore(),
	}).Info("store generation waiting")
	return true
}

// Waiting 返回等待中的代际。
func (r *Registry) Waiting() (Generation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.waiting == nil {
		return Generation{}, false
	}
	return *r.waiting, true
}

// Promote 立即激活等待中的代际；没有等待代际时返回 false 且不做任何事。
func (r *Registry) Promote(ctx context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.waiting == nil {
		return false, nil
	}
	if err := r.activateLocked(ctx, *r.waiting); err != nil {
		return false, err
	}
	return true, nil
}
