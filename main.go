package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/signage-cache/internal/config"
	"github.com/any-hub/signage-cache/internal/logging"
	"github.com/any-hub/signage-cache/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

const shutdownTimeout = 5 * time.Second

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["origin"] = cfg.Content.Origin
		fields["domains"] = len(cfg.Content.Domains)
		fields["media_version"], fields["data_version"] = cfg.Generation()
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// 启动遵循“配置 → 日志 → 指标 → 存储 → Registry → Worker → Fiber server”顺序，
	// 所有请求共享同一份 Registry 与回源 client。
	svc, err := newService(cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化服务失败: %v\n", err)
		return 1
	}

	if err := config.Watch(opts.configPath, func(next *config.Config) {
		if _, err := svc.worker.ApplyConfig(context.Background(), next); err != nil {
			logger.WithError(err).WithField("action", "config_reload").Error("apply config failed")
		}
	}, func(err error) {
		logger.WithError(err).WithField("action", "config_reload").Warn("config reload rejected")
	}); err != nil {
		logger.WithError(err).WithField("action", "config_watch").Warn("config hot reload disabled")
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["origin"] = cfg.Content.Origin
	fields["domains"] = len(cfg.Content.Domains)
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := serve(svc, cfg.Global.ListenPort, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("signage-cache", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 SIGNAGE_CACHE_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("SIGNAGE_CACHE_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

// serve 在监听的同时执行安装/激活：就绪前同源内容请求返回 503，/-/ 下的控制接口可用。
// 激活失败（存储不可用）会停止服务并返回错误。
func serve(svc *service, port int, logger *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return serveUntilDone(ctx, svc, fmt.Sprintf(":%d", port), logger)
}

// serveUntilDone 在 ctx 结束时优雅退出，并在返回前等待 Worker 的后台任务全部结束。
func serveUntilDone(parent context.Context, svc *service, addr string, logger *logrus.Logger) error {
	ctx, stop := context.WithCancel(parent)
	defer stop()

	startErr := make(chan error, 1)
	go func() {
		if err := svc.worker.Start(ctx); err != nil {
			logger.WithError(err).WithField("action", "activate").Error("worker start failed")
			startErr <- err
			stop()
		}
	}()

	// Shutdown 必须发生在 Listen 开始之后，否则 Listen 会在关闭后继续阻塞。
	listening := make(chan struct{})
	var listenOnce sync.Once
	markListening := func() { listenOnce.Do(func() { close(listening) }) }
	svc.app.Hooks().OnListen(func(fiber.ListenData) error {
		markListening()
		return nil
	})

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		<-ctx.Done()
		<-listening
		svc.close(shutdownTimeout)
	}()

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"addr":   addr,
	}).Info("Fiber 服务启动")

	listenErr := svc.app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
	markListening()
	// Listen 返回后仍需等待后台任务（预加载、外壳安装）结束。
	stop()
	<-closed
	if listenErr != nil {
		return listenErr
	}

	select {
	case err := <-startErr:
		return errors.Join(errors.New("worker start failed"), err)
	default:
		return nil
	}
}
