package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/signage-cache/internal/config"
	"github.com/any-hub/signage-cache/internal/notify"
	"github.com/any-hub/signage-cache/internal/registry"
)

// 控制命令的 action 取值。
const (
	ActionSkipWaiting  = "skipWaiting"
	ActionClearCache   = "clearCache"
	ActionPreloadMedia = "preloadMedia"
)

// ErrUnknownAction 表示命令 action 无法识别。
var ErrUnknownAction = errors.New("unknown action")

// Command 是观察者发来的控制消息。
type Command struct {
	Action string   `json:"action"`
	URLs   []string `json:"urls,omitempty"`
}

// ParseCommand 解析 JSON 命令并校验 action。
func ParseCommand(raw []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return Command{}, fmt.Errorf("decode command: %w", err)
	}
	switch cmd.Action {
	case ActionSkipWaiting, ActionClearCache, ActionPreloadMedia:
		return cmd, nil
	case "":
		return Command{}, fmt.Errorf("%w: action is required", ErrUnknownAction)
	default:
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownAction, cmd.Action)
	}
}

// SkipWaiting 立即激活等待中的代际：先为其预缓存外壳，再清理旧代际。
// 没有等待代际时返回 false。
func (w *Worker) SkipWaiting(ctx context.Context) (bool, error) {
	if !w.Ready() {
		return false, ErrNotReady
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.promoteLocked(ctx)
}

func (w *Worker) promoteLocked(ctx context.Context) (bool, error) {
	gen, ok := w.registry.Waiting()
	if !ok {
		return false, nil
	}
	if err := w.install(ctx, gen); err != nil {
		w.logger.WithError(err).WithField("action", "install_failed").Warn("shell precache failed")
	}
	promoted, err := w.registry.Promote(ctx)
	if err != nil {
		return false, err
	}
	if promoted {
		w.generation = gen
	}
	return promoted, nil
}

// ClearCache 删除全部存储并重新创建当前代际的空存储，返回一次性回复。
func (w *Worker) ClearCache(ctx context.Context) (notify.CacheClearResult, error) {
	if !w.Ready() {
		return notify.CacheClearResult{}, ErrNotReady
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	success := w.registry.ClearAll(ctx)
	if err := w.registry.Activate(ctx, w.generation); err != nil {
		w.logger.WithError(err).WithField("action", "clear_cache").Error("recreate stores failed")
		success = false
	}
	return notify.CacheClearResult{Success: success}, nil
}

// PreloadMedia 在后台运行预加载任务，任务与 Worker 生命周期绑定而不是与请求绑定。
func (w *Worker) PreloadMedia(urls []string) error {
	if !w.Ready() {
		return ErrNotReady
	}
	urls = append([]string(nil), urls...)
	w.jobs.Add(1)
	go func() {
		defer w.jobs.Done()
		if _, err := w.preloader.Preload(w.ctx, urls); err != nil {
			w.logger.WithError(err).WithField("action", "preload").Error("preload job aborted")
		}
	}()
	return nil
}

// ApplyConfig 响应配置热更新：版本变化时登记等待代际，AutoActivate 时立即切换。
// 其余配置项需要重启进程才会生效。
func (w *Worker) ApplyConfig(ctx context.Context, cfg *config.Config) (bool, error) {
	media, data := cfg.Generation()
	gen := registry.Generation{MediaVersion: media, DataVersion: data}

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.registry.Stage(gen) {
		return false, nil
	}
	if !cfg.Content.AutoActivate || !w.Ready() {
		w.logger.WithFields(logrus.Fields{
			"action":      "config_reload",
			"media_store": gen.MediaStore(),
			"data_store":  gen.DataStore(),
		}).Info("new generation waiting for skipWaiting")
		return false, nil
	}
	return w.promoteLocked(ctx)
}

// Shutdown 取消后台任务并等待其结束。
func (w *Worker) Shutdown() {
	w.cancel()
	w.jobs.Wait()
}

// Status 是 /-/status 输出的生命周期快照。
type Status struct {
	Ready        bool   `json:"ready"`
	MediaStore   string `json:"media_store,omitempty"`
	DataStore    string `json:"data_store,omitempty"`
	WaitingMedia string `json:"waiting_media_store,omitempty"`
	WaitingData  string `json:"waiting_data_store,omitempty"`
}

// Status 返回当前代际与等待代际。
func (w *Worker) Status() Status {
	status := Status{Ready: w.Ready()}
	if gen, ok := w.registry.Current(); ok {
		status.MediaStore = gen.MediaStore()
		status.DataStore = gen.DataStore()
	}
	if gen, ok := w.registry.Waiting(); ok {
		status.WaitingMedia = gen.MediaStore()
		status.WaitingData = gen.DataStore()
	}
	return status
}
