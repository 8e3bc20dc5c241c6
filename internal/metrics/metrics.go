// Package metrics 汇总缓存中间层的 Prometheus 指标。所有方法对 nil 接收者安全，
// 未启用指标时组件直接持有 nil 即可。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "signage_cache"

// Metrics holds all Prometheus collectors of the intermediary.
type Metrics struct {
	Requests         *prometheus.CounterVec
	StoreWrites      *prometheus.CounterVec
	PreloadDownloads *prometheus.CounterVec
	PreloadJobs      prometheus.Counter
	Broadcasts       *prometheus.CounterVec
	DroppedEvents    prometheus.Counter
	Observers        prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the provided registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_total",
		Help:      "Content requests handled, by request class and response source",
	}, []string{"class", "source"})

	storeWrites := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "store_writes_total",
		Help:      "Store writes by store kind and result",
	}, []string{"store", "result"})

	preloadDownloads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "preload_downloads_total",
		Help:      "Preload downloads by result",
	}, []string{"result"})

	preloadJobs := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "preload_jobs_total",
		Help:      "Preload jobs started",
	})

	broadcasts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "broadcasts_total",
		Help:      "Observer events broadcast, by action",
	}, []string{"action"})

	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "observer_events_dropped_total",
		Help:      "Events dropped because an observer buffer was full",
	})

	observers := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "observers",
		Help:      "Currently connected observers",
	})

	reg.MustRegister(requests, storeWrites, preloadDownloads, preloadJobs, broadcasts, dropped, observers)

	return &Metrics{
		Requests:         requests,
		StoreWrites:      storeWrites,
		PreloadDownloads: preloadDownloads,
		PreloadJobs:      preloadJobs,
		Broadcasts:       broadcasts,
		DroppedEvents:    dropped,
		Observers:        observers,
	}
}

// ObserveRequest 记录一次内容请求。
func (m *Metrics) ObserveRequest(class, source string) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(class, source).Inc()
}

// ObserveStoreWrite 记录一次存储写入，err 非空计为 error。
func (m *Metrics) ObserveStoreWrite(store string, err error) {
	if m == nil {
		return
	}
	m.StoreWrites.WithLabelValues(store, result(err)).Inc()
}

// ObservePreloadDownload 记录预加载单个资源的结果。
func (m *Metrics) ObservePreloadDownload(err error) {
	if m == nil {
		return
	}
	m.PreloadDownloads.WithLabelValues(result(err)).Inc()
}

// ObservePreloadJob 记录一次预加载任务。
func (m *Metrics) ObservePreloadJob() {
	if m == nil {
		return
	}
	m.PreloadJobs.Inc()
}

// ObserveBroadcast 记录一次事件广播。
func (m *Metrics) ObserveBroadcast(action string) {
	if m == nil {
		return
	}
	m.Broadcasts.WithLabelValues(action).Inc()
}

// ObserveDropped 记录一次因缓冲区已满被丢弃的事件。
func (m *Metrics) ObserveDropped() {
	if m == nil {
		return
	}
	m.DroppedEvents.Inc()
}

// SetObservers 更新当前观察者数量。
func (m *Metrics) SetObservers(n int) {
	if m == nil {
		return
	}
	m.Observers.Set(float64(n))
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
