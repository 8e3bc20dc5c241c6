package routes

import (
	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/signage-cache/internal/notify"
	"github.com/any-hub/signage-cache/internal/server"
	"github.com/any-hub/signage-cache/internal/version"
	"github.com/any-hub/signage-cache/internal/worker"
)

// StatusReporter 提供生命周期快照。
type StatusReporter interface {
	Status() worker.Status
}

type statusPayload struct {
	worker.Status
	Version   string   `json:"version"`
	Origin    string   `json:"origin"`
	Domains   []string `json:"domains"`
	Observers int      `json:"observers"`
}

// RegisterStatusRoutes 暴露 /-/status 诊断接口，供运维确认当前代际与就绪状态。
func RegisterStatusRoutes(app *fiber.App, reporter StatusReporter, origins *server.OriginTable, hub *notify.Hub) {
	if app == nil || reporter == nil || origins == nil {
		return
	}

	app.Get("/-/status", func(c fiber.Ctx) error {
		payload := statusPayload{
			Status:  reporter.Status(),
			Version: version.Full(),
			Origin:  origins.Origin().String(),
			Domains: origins.Domains(),
		}
		if hub != nil {
			payload.Observers = hub.Len()
		}
		return c.JSON(payload)
	})
}
