package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/any-hub/signage-cache/internal/cache"
	"github.com/any-hub/signage-cache/internal/config"
	"github.com/any-hub/signage-cache/internal/logging"
)

type originStub struct {
	server *httptest.Server
	hits   map[string]*atomic.Int32
}

func newOriginStub(t *testing.T, paths ...string) *originStub {
	t.Helper()
	stub := &originStub{hits: make(map[string]*atomic.Int32)}
	for _, p := range paths {
		stub.hits[p] = &atomic.Int32{}
	}
	stub.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		counter, ok := stub.hits[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		counter.Add(1)
		_, _ = io.WriteString(w, "body:"+r.URL.Path)
	}))
	t.Cleanup(stub.server.Close)
	return stub
}

func loadServiceConfig(t *testing.T, origin string) *config.Config {
	t.Helper()
	path := writeConfigFile(t, fmt.Sprintf(`
StoragePath = "%s"
Origin = "%s"
Domains = ["localhost"]
MediaVersion = "v4"
DataVersion = "v4"
ShellAssets = ["/index.html"]
MaxRetries = 0
`, filepath.Join(t.TempDir(), "storage"), origin))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func TestServiceServesMediaCacheFirst(t *testing.T) {
	origin := newOriginStub(t, "/index.html", "/media/clip.mp4")
	cfg := loadServiceConfig(t, origin.server.URL)

	svc, err := newServiceWithBackend(cfg, logging.NewDiscardLogger(), cache.NewMemoryBackend())
	require.NoError(t, err)
	t.Cleanup(svc.worker.Shutdown)

	resp, err := svc.app.Test(httptest.NewRequest(http.MethodGet, "http://localhost/media/clip.mp4", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("Retry-After"))

	require.NoError(t, svc.worker.Start(context.Background()))
	<-svc.worker.Installed()
	require.EqualValues(t, 1, origin.hits["/index.html"].Load())

	for i := 0; i < 2; i++ {
		resp, err = svc.app.Test(httptest.NewRequest(http.MethodGet, "http://localhost/media/clip.mp4", nil))
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body, _ := io.ReadAll(resp.Body)
		require.Equal(t, "body:/media/clip.mp4", string(body))
	}
	require.EqualValues(t, 1, origin.hits["/media/clip.mp4"].Load())
	require.Equal(t, "cache", resp.Header.Get("X-Signage-Cache-Source"))

	resp, err = svc.app.Test(httptest.NewRequest(http.MethodGet, "http://localhost/index.html", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 1, origin.hits["/index.html"].Load(), "shell should be served from the install precache")
}

func TestServiceDataMissOffline(t *testing.T) {
	origin := newOriginStub(t, "/index.html")
	cfg := loadServiceConfig(t, origin.server.URL)

	svc, err := newServiceWithBackend(cfg, logging.NewDiscardLogger(), cache.NewMemoryBackend())
	require.NoError(t, err)
	t.Cleanup(svc.worker.Shutdown)
	require.NoError(t, svc.worker.Start(context.Background()))
	<-svc.worker.Installed()

	origin.server.Close()

	resp, err := svc.app.Test(httptest.NewRequest(http.MethodGet, "http://localhost/data/menu.json", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	require.JSONEq(t, `{}`, string(body))
}

func TestServiceControlEndpoints(t *testing.T) {
	origin := newOriginStub(t, "/index.html", "/media/a.jpg")
	cfg := loadServiceConfig(t, origin.server.URL)

	svc, err := newServiceWithBackend(cfg, logging.NewDiscardLogger(), cache.NewMemoryBackend())
	require.NoError(t, err)
	t.Cleanup(svc.worker.Shutdown)
	require.NoError(t, svc.worker.Start(context.Background()))

	resp, err := svc.app.Test(httptest.NewRequest(http.MethodGet, "http://localhost/-/status", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	require.Contains(t, string(body), `"ready":true`)
	require.Contains(t, string(body), `"media_store":"media-v4"`)

	_, err = svc.app.Test(httptest.NewRequest(http.MethodGet, "http://localhost/media/a.jpg", nil))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "http://localhost/-/commands", strings.NewReader(`{"action":"clearCache"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = svc.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ = io.ReadAll(resp.Body)
	require.JSONEq(t, `{"success":true}`, string(body))

	resp, err = svc.app.Test(httptest.NewRequest(http.MethodGet, "http://localhost/-/metrics", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ = io.ReadAll(resp.Body)
	require.Contains(t, string(body), "signage_cache_requests_total")
}

func TestServeWaitsForBackgroundWork(t *testing.T) {
	release := make(chan struct{})
	hung := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(hung.Close)
	t.Cleanup(func() { close(release) })

	cfg := loadServiceConfig(t, hung.URL)
	svc, err := newServiceWithBackend(cfg, logging.NewDiscardLogger(), cache.NewMemoryBackend())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serveUntilDone(ctx, svc, "127.0.0.1:0", svc.logger) }()

	require.Eventually(t, svc.worker.Ready, 2*time.Second, 10*time.Millisecond)
	select {
	case <-svc.worker.Installed():
		t.Fatalf("shell install should still be waiting on the origin")
	default:
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatalf("serve 未在取消后退出")
	}
	select {
	case <-svc.worker.Installed():
	default:
		t.Fatalf("serve returned before background work finished")
	}
}
