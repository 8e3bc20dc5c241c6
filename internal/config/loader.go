package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// DefaultShellAssets 是安装阶段预缓存的静态页面。
var DefaultShellAssets = []string{
	"/",
	"/index.html",
	"/menu.html",
	"/category.html",
	"/product.html",
}

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	return decode(v)
}

// decode 将 viper 中的原始值解析为 Config，Load 与热更新共用。
func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	applyContentDefaults(&cfg.Content)
	applyObserverDefaults(&cfg.Observer)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absStorage, err := filepath.Abs(cfg.Global.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("无法解析缓存目录: %w", err)
	}
	cfg.Global.StoragePath = absStorage

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 5000)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("StoragePath", "./storage")
	v.SetDefault("MaxRetries", 2)
	v.SetDefault("InitialBackoff", "500ms")
	v.SetDefault("UpstreamTimeout", "0s")
	v.SetDefault("MetricsEnabled", true)
	v.SetDefault("MediaVersion", "v1")
	v.SetDefault("DataVersion", "v1")
	v.SetDefault("AutoActivate", false)
	v.SetDefault("PreloadCheckConcurrency", 8)
	v.SetDefault("EventBuffer", 64)
	v.SetDefault("EventHeartbeat", "15s")
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 5000
	}
	if g.LogLevel == "" {
		g.LogLevel = "info"
	}
	if g.InitialBackoff.DurationValue() == 0 {
		g.InitialBackoff = Duration(500 * time.Millisecond)
	}
}

func applyContentDefaults(c *ContentConfig) {
	c.Origin = strings.TrimRight(strings.TrimSpace(c.Origin), "/")
	c.MediaVersion = strings.TrimSpace(c.MediaVersion)
	c.DataVersion = strings.TrimSpace(c.DataVersion)
	if c.ShellAssets == nil {
		c.ShellAssets = append([]string(nil), DefaultShellAssets...)
	}
	domains := make([]string, 0, len(c.Domains))
	for _, domain := range c.Domains {
		if trimmed := strings.ToLower(strings.TrimSpace(domain)); trimmed != "" {
			domains = append(domains, trimmed)
		}
	}
	c.Domains = domains
}

func applyObserverDefaults(o *ObserverConfig) {
	if o.PreloadCheckConcurrency <= 0 {
		o.PreloadCheckConcurrency = 8
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = 64
	}
	if o.EventHeartbeat.DurationValue() <= 0 {
		o.EventHeartbeat = Duration(15 * time.Second)
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
