package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveRequest("media", "cache")
	m.ObserveRequest("media", "cache")
	m.ObserveRequest("data", "network")
	m.ObserveStoreWrite("media", nil)
	m.ObserveStoreWrite("media", errors.New("disk full"))
	m.ObservePreloadDownload(nil)
	m.ObservePreloadJob()
	m.ObserveBroadcast("downloadProgress")
	m.ObserveDropped()
	m.SetObservers(3)

	require.Equal(t, 2.0, testutil.ToFloat64(m.Requests.WithLabelValues("media", "cache")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("data", "network")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.StoreWrites.WithLabelValues("media", "error")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.StoreWrites.WithLabelValues("media", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.PreloadDownloads.WithLabelValues("ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.PreloadJobs))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Broadcasts.WithLabelValues("downloadProgress")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.DroppedEvents))
	require.Equal(t, 3.0, testutil.ToFloat64(m.Observers))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.ObserveRequest("other", "network")
		m.ObserveStoreWrite("data", nil)
		m.ObservePreloadDownload(nil)
		m.ObservePreloadJob()
		m.ObserveBroadcast("alreadyCached")
		m.ObserveDropped()
		m.SetObservers(1)
	})
}
