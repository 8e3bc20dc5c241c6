package cache

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
)

const (
	bodySuffix = ".body"
	metaSuffix = ".meta"
)

// NewBackend 以 basePath 为根目录构建磁盘存储，整个进程复用一份实例。
func NewBackend(basePath string) (Backend, error) {
	if basePath == "" {
		return nil, errors.New("storage path required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}

	return newFSBackend(osfs.New(abs)), nil
}

// NewMemoryBackend 返回基于 memfs 的存储，语义与磁盘实现一致，供测试注入。
func NewMemoryBackend() Backend {
	return newFSBackend(memfs.New())
}

// fsBackend 在 billy.Filesystem 上按目录划分具名存储。
type fsBackend struct {
	fs  billy.Filesystem
	now func() time.Time

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

func newFSBackend(bfs billy.Filesystem) *fsBackend {
	return &fsBackend{
		fs:    bfs,
		now:   time.Now,
		locks: make(map[string]*entryLock),
	}
}

func (b *fsBackend) Open(ctx context.Context, name string) (Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateStoreName(name); err != nil {
		return nil, err
	}
	if err := b.fs.MkdirAll(name, 0o755); err != nil {
		return nil, fmt.Errorf("open store %s: %w", name, err)
	}
	return &fileStore{backend: b, name: name}, nil
}

func (b *fsBackend) Names(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	infos, err := b.fs.ReadDir("/")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list stores: %w", err)
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		if info.IsDir() {
			names = append(names, info.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (b *fsBackend) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateStoreName(name); err != nil {
		return err
	}
	if err := util.RemoveAll(b.fs, name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete store %s: %w", name, err)
	}
	return nil
}

// fileStore 通过 entryLock 避免同一 Key 并发写入；不同 Key 之间无锁。
type fileStore struct {
	backend *fsBackend
	name    string
}

func (s *fileStore) Name() string {
	return s.name
}

func (s *fileStore) Get(ctx context.Context, key Key) (*ReadResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	meta, err := s.readMeta(key)
	if err != nil {
		return nil, err
	}

	f, err := s.backend.fs.Open(s.entryPath(key, bodySuffix))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &ReadResult{
		Meta:   *meta,
		Reader: f,
	}, nil
}

func (s *fileStore) Has(ctx context.Context, key Key) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	info, err := s.backend.fs.Stat(s.entryPath(key, metaSuffix))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

func (s *fileStore) Put(ctx context.Context, key Key, meta Meta, body io.Reader) (*Meta, error) {
	unlock := s.backend.lockEntry(s.name, key)
	defer unlock()

	if err := s.backend.fs.MkdirAll(s.name, 0o755); err != nil {
		return nil, err
	}

	written, err := s.writeAtomic(ctx, s.entryPath(key, bodySuffix), body)
	if err != nil {
		return nil, err
	}

	meta.Key = key
	meta.Size = written
	if meta.StoredAt.IsZero() {
		meta.StoredAt = s.backend.now().UTC()
	}
	encoded, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode meta: %w", err)
	}
	// 正文先落盘、元数据后落盘：读者以 .meta 为准，看不到只写了一半的条目。
	if _, err := s.writeAtomic(ctx, s.entryPath(key, metaSuffix), bytes.NewReader(encoded)); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *fileStore) Remove(ctx context.Context, key Key) error {
	unlock := s.backend.lockEntry(s.name, key)
	defer unlock()

	for _, suffix := range []string{metaSuffix, bodySuffix} {
		if err := s.backend.fs.Remove(s.entryPath(key, suffix)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

func (s *fileStore) readMeta(key Key) (*Meta, error) {
	f, err := s.backend.fs.Open(s.entryPath(key, metaSuffix))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer f.Close()

	var meta Meta
	if err := json.NewDecoder(f).Decode(&meta); err != nil {
		return nil, fmt.Errorf("decode meta for %s: %w", key, err)
	}
	return &meta, nil
}

func (s *fileStore) writeAtomic(ctx context.Context, target string, body io.Reader) (int64, error) {
	tempFile, err := s.backend.fs.TempFile(s.name, ".cache-")
	if err != nil {
		return 0, err
	}
	tempName := tempFile.Name()

	written, err := copyWithContext(ctx, tempFile, body)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		s.backend.fs.Remove(tempName)
		return 0, err
	}

	if err := s.backend.fs.Rename(tempName, target); err != nil {
		s.backend.fs.Remove(tempName)
		return 0, err
	}
	return written, nil
}

func (s *fileStore) entryPath(key Key, suffix string) string {
	sum := sha1.Sum([]byte(key))
	return s.backend.fs.Join(s.name, hex.EncodeToString(sum[:])+suffix)
}

func (b *fsBackend) lockEntry(store string, key Key) func() {
	lockKey := store + "::" + string(key)
	b.mu.Lock()
	lock := b.locks[lockKey]
	if lock == nil {
		lock = &entryLock{}
		b.locks[lockKey] = lock
	}
	lock.refs++
	b.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		b.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(b.locks, lockKey)
		}
		b.mu.Unlock()
	}
}

func validateStoreName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidStoreName, name)
	}
	return nil
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	var copied int64
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			w, wErr := dst.Write(buf[:n])
			copied += int64(w)
			if wErr != nil {
				return copied, wErr
			}
			if w < n {
				return copied, io.ErrShortWrite
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return copied, nil
			}
			return copied, err
		}
	}
}
