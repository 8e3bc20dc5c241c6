package cache

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"
)

// Backend 管理全部具名存储。磁盘布局遵循：
//
//	<StoragePath>/<StoreName>/<sha1(key)>.body    # 响应正文
//	<StoragePath>/<StoreName>/<sha1(key)>.meta    # Meta 的 JSON 编码
//
// 存储的生命周期（创建/删除）只应由 registry 包驱动。
type Backend interface {
	// Open 打开具名存储，不存在时创建。
	Open(ctx context.Context, name string) (Store, error)

	// Names 枚举当前存在的全部存储名称（按字典序）。
	Names(ctx context.Context) ([]string, error)

	// Delete 删除整个存储及其条目；存储不存在时返回 nil。
	Delete(ctx context.Context, name string) error
}

// Store 是单个具名存储：Key → 已缓存响应。条目写入后不可变，重复写入同一 Key 会整体覆盖。
type Store interface {
	// Name 返回存储名称，例如 media-v4。
	Name() string

	// Get 返回可流式读取的缓存条目。若不存在则返回 ErrNotFound。
	Get(ctx context.Context, key Key) (*ReadResult, error)

	// Has 只检查成员关系，不打开正文。
	Has(ctx context.Context, key Key) (bool, error)

	// Put 写入条目。实现需通过临时文件 + rename 保证写入原子性，并在失败时清理临时文件。
	Put(ctx context.Context, key Key, meta Meta, body io.Reader) (*Meta, error)

	// Remove 删除单个条目，不存在时返回 nil。
	Remove(ctx context.Context, key Key) error
}

// Meta 描述一个已缓存的响应（不含正文）。
type Meta struct {
	Key      Key         `json:"key"`
	Status   int         `json:"status"`
	Header   http.Header `json:"header,omitempty"`
	Size     int64       `json:"size"`
	StoredAt time.Time   `json:"stored_at"`
}

// ReadResult 组合 Meta 与正文 Reader，便于代理层直接将 Body 流式返回。
type ReadResult struct {
	Meta   Meta
	Reader io.ReadSeekCloser
}

var (
	// ErrNotFound 表示缓存条目不存在。
	ErrNotFound = errors.New("cache entry not found")
	// ErrInvalidStoreName 表示存储名称为空或包含路径分隔符。
	ErrInvalidStoreName = errors.New("invalid store name")
)
