package notify

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/signage-cache/internal/logging"
	"github.com/any-hub/signage-cache/internal/metrics"
)

const defaultBuffer = 16

// Broadcaster 是预加载协调器依赖的最小能力。
type Broadcaster interface {
	Broadcast(Event) int
}

// Hub 维护当前已连接的观察者集合。后连接的观察者不会收到历史事件。
type Hub struct {
	buffer  int
	logger  *logrus.Logger
	metrics *metrics.Metrics

	mu          sync.Mutex
	subscribers map[*Subscription]struct{}
}

// NewHub 构造 Hub；buffer 为每个观察者的事件缓冲长度。
func NewHub(buffer int, logger *logrus.Logger, m *metrics.Metrics) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Hub{
		buffer:      buffer,
		logger:      logger,
		metrics:     m,
		subscribers: make(map[*Subscription]struct{}),
	}
}

// Subscription 是一个观察者的事件队列。
type Subscription struct {
	hub    *Hub
	events chan Event
	once   sync.Once
}

// Subscribe 注册新的观察者。
func (h *Hub) Subscribe() *Subscription {
	sub := &Subscription{
		hub:    h,
		events: make(chan Event, h.buffer),
	}
	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	count := len(h.subscribers)
	h.mu.Unlock()

	h.metrics.SetObservers(count)
	return sub
}

// Events 返回事件通道；Close 之后通道被关闭。
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Close 取消订阅，可重复调用。
func (s *Subscription) Close() {
	s.once.Do(func() {
		h := s.hub
		h.mu.Lock()
		delete(h.subscribers, s)
		close(s.events)
		count := len(h.subscribers)
		h.mu.Unlock()

		h.metrics.SetObservers(count)
	})
}

// Broadcast 把事件投递给每个观察者，从不阻塞调用方：缓冲区已满的观察者会丢失这条事件。
// 返回实际投递成功的观察者数量。
func (h *Hub) Broadcast(event Event) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := 0
	for sub := range h.subscribers {
		select {
		case sub.events <- event:
			delivered++
		default:
			h.metrics.ObserveDropped()
			h.logger.WithFields(logrus.Fields{
				"action": "broadcast_dropped",
				"event":  event.Action(),
			}).Debug("observer buffer full")
		}
	}
	h.metrics.ObserveBroadcast(event.Action())
	return delivered
}

// Len 返回当前观察者数量。
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Close 关闭全部订阅，用于进程退出时结束所有事件流。
func (h *Hub) Close() {
	h.mu.Lock()
	subs := make([]*Subscription, 0, len(h.subscribers))
	for sub := range h.subscribers {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}
