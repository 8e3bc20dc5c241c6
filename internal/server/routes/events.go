package routes

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/signage-cache/internal/notify"
)

// RegisterEventRoutes 暴露 GET /-/events：每个连接是一个观察者，
// 以 Server-Sent Events 形式接收广播事件。连接断开或 Hub 关闭时取消订阅。
func RegisterEventRoutes(app *fiber.App, hub *notify.Hub, heartbeat time.Duration, logger *logrus.Logger) {
	if app == nil || hub == nil {
		return
	}

	app.Get("/-/events", func(c fiber.Ctx) error {
		c.Set(fiber.HeaderContentType, "text/event-stream")
		c.Set(fiber.HeaderCacheControl, "no-cache")
		c.Set(fiber.HeaderConnection, "keep-alive")
		c.Set("X-Accel-Buffering", "no")

		sub := hub.Subscribe()
		logger.WithFields(logrus.Fields{
			"action":    "observer_connect",
			"observers": hub.Len(),
		}).Debug("observer connected")

		return c.SendStreamWriter(func(w *bufio.Writer) {
			defer sub.Close()
			streamEvents(w, sub, heartbeat)
		})
	})
}

// streamEvents 持续写出事件直到订阅关闭或写入失败。心跳注释用于探测已断开的客户端。
func streamEvents(w *bufio.Writer, sub *notify.Subscription, heartbeat time.Duration) {
	if _, err := w.WriteString(": connected\n\n"); err != nil || w.Flush() != nil {
		return
	}

	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := writeEvent(w, event); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := w.WriteString(": ping\n\n"); err != nil || w.Flush() != nil {
				return
			}
		}
	}
}

func writeEvent(w *bufio.Writer, event notify.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Action(), payload); err != nil {
		return err
	}
	return w.Flush()
}
