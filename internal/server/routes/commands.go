package routes

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/signage-cache/internal/notify"
	"github.com/any-hub/signage-cache/internal/server"
	"github.com/any-hub/signage-cache/internal/worker"
)

// Commander 是命令接口依赖的 Worker 能力。
type Commander interface {
	SkipWaiting(ctx context.Context) (bool, error)
	ClearCache(ctx context.Context) (notify.CacheClearResult, error)
	PreloadMedia(urls []string) error
}

// RegisterCommandRoutes 暴露 POST /-/commands。HTTP 响应即命令的一次性回复通道；
// 预加载进度只通过 /-/events 广播。
func RegisterCommandRoutes(app *fiber.App, commander Commander, logger *logrus.Logger) {
	if app == nil || commander == nil {
		return
	}

	app.Post("/-/commands", func(c fiber.Ctx) error {
		cmd, err := worker.ParseCommand(c.Body())
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":  "invalid_command",
				"detail": err.Error(),
			})
		}

		fields := logrus.Fields{
			"action":     "command",
			"command":    cmd.Action,
			"request_id": server.RequestID(c),
		}

		switch cmd.Action {
		case worker.ActionSkipWaiting:
			promoted, err := commander.SkipWaiting(c.Context())
			if err != nil {
				return commandError(c, logger, fields, err)
			}
			logger.WithFields(fields).WithField("promoted", promoted).Info("command_complete")
			return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"promoted": promoted})

		case worker.ActionClearCache:
			reply, err := commander.ClearCache(c.Context())
			if err != nil {
				return commandError(c, logger, fields, err)
			}
			logger.WithFields(fields).WithField("success", reply.Success).Info("command_complete")
			return c.JSON(reply)

		default:
			if err := commander.PreloadMedia(cmd.URLs); err != nil {
				return commandError(c, logger, fields, err)
			}
			logger.WithFields(fields).WithField("urls", len(cmd.URLs)).Info("command_accepted")
			return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
				"accepted": true,
				"urls":     len(cmd.URLs),
			})
		}
	})
}

func commandError(c fiber.Ctx, logger *logrus.Logger, fields logrus.Fields, err error) error {
	if errors.Is(err, worker.ErrNotReady) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "worker_not_ready"})
	}
	logger.WithFields(fields).WithError(err).Error("command_failed")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "command_failed"})
}
