package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述进程级运行参数：监听端口、日志、存储目录与回源行为。
type GlobalConfig struct {
	ListenPort      int      `mapstructure:"ListenPort"`
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSize      int      `mapstructure:"LogMaxSize"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
	StoragePath     string   `mapstructure:"StoragePath"`
	MaxRetries      int      `mapstructure:"MaxRetries"`
	InitialBackoff  Duration `mapstructure:"InitialBackoff"`
	UpstreamTimeout Duration `mapstructure:"UpstreamTimeout"`
	MetricsEnabled  bool     `mapstructure:"MetricsEnabled"`
}

// ContentConfig 描述内容源站与缓存代际。
type ContentConfig struct {
	// Origin 是内容源站（scheme + host），所有同源请求都会解析到这里。
	Origin string `mapstructure:"Origin"`
	// Domains 列出被视为“同源”的 Host；其余 Host 一律透传。
	Domains []string `mapstructure:"Domains"`
	// MediaVersion/DataVersion 决定当前代际的存储名称，例如 media-v4 / data-v4。
	MediaVersion string `mapstructure:"MediaVersion"`
	DataVersion  string `mapstructure:"DataVersion"`
	// ShellAssets 在安装阶段预先写入媒体存储。
	ShellAssets []string `mapstructure:"ShellAssets"`
	// AutoActivate 为 true 时，配置热更新产生的新代际立即生效，无需 skipWaiting。
	AutoActivate bool `mapstructure:"AutoActivate"`
}

// ObserverConfig 控制预加载与事件推送。
type ObserverConfig struct {
	PreloadCheckConcurrency int      `mapstructure:"PreloadCheckConcurrency"`
	EventBuffer             int      `mapstructure:"EventBuffer"`
	EventHeartbeat          Duration `mapstructure:"EventHeartbeat"`
}

// Config 是 TOML 文件映射的整体结构，所有字段都位于顶层。
type Config struct {
	Global   GlobalConfig   `mapstructure:",squash"`
	Content  ContentConfig  `mapstructure:",squash"`
	Observer ObserverConfig `mapstructure:",squash"`
}

// Generation 返回当前配置声明的存储代际。
func (c *Config) Generation() (media, data string) {
	return c.Content.MediaVersion, c.Content.DataVersion
}
