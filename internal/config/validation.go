package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// 版本号会拼进存储名称（media-<version>），只允许文件名安全的字符。
var versionPattern = regexp.MustCompile(`^[A-Za-z0-9._]+$`)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("ListenPort", "必须在 1-65535")
	}
	if g.StoragePath == "" {
		return newFieldError("StoragePath", "不能为空")
	}
	if g.MaxRetries < 0 {
		return newFieldError("MaxRetries", "不能为负数")
	}
	if g.InitialBackoff.DurationValue() <= 0 {
		return newFieldError("InitialBackoff", "必须大于 0")
	}
	if g.UpstreamTimeout.DurationValue() < 0 {
		return newFieldError("UpstreamTimeout", "不能为负数（0 表示不限时）")
	}

	content := c.Content
	if err := validateOrigin(content.Origin); err != nil {
		return fmt.Errorf("Origin: %w", err)
	}
	if len(content.Domains) == 0 {
		return newFieldError("Domains", "至少需要一个同源 Host")
	}
	seen := map[string]struct{}{}
	for i, domain := range content.Domains {
		if err := validateDomain(domain); err != nil {
			return fmt.Errorf("%s: %w", indexedField("Domains", i), err)
		}
		if _, exists := seen[domain]; exists {
			return newFieldError(indexedField("Domains", i), "重复")
		}
		seen[domain] = struct{}{}
	}
	if !versionPattern.MatchString(content.MediaVersion) {
		return newFieldError("MediaVersion", "只能包含字母、数字、点与下划线")
	}
	if !versionPattern.MatchString(content.DataVersion) {
		return newFieldError("DataVersion", "只能包含字母、数字、点与下划线")
	}
	for i, asset := range content.ShellAssets {
		if !strings.HasPrefix(asset, "/") {
			return newFieldError(indexedField("ShellAssets", i), "必须是以 / 开头的站内路径")
		}
	}

	o := c.Observer
	if o.PreloadCheckConcurrency <= 0 {
		return newFieldError("PreloadCheckConcurrency", "必须大于 0")
	}
	if o.EventBuffer <= 0 {
		return newFieldError("EventBuffer", "必须大于 0")
	}
	if o.EventHeartbeat.DurationValue() <= 0 {
		return newFieldError("EventHeartbeat", "必须大于 0")
	}

	return nil
}

func validateDomain(domain string) error {
	if domain == "" {
		return errors.New("Domain 不能为空")
	}
	if strings.Contains(domain, "/") {
		return errors.New("Domain 不允许包含路径")
	}
	if strings.Contains(domain, " ") {
		return errors.New("Domain 不允许包含空格")
	}
	if strings.HasPrefix(domain, "http") {
		return errors.New("Domain 不应包含协议头")
	}
	return nil
}

func validateOrigin(raw string) error {
	if raw == "" {
		return errors.New("缺少源站地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，源站: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("源站缺少 Host: %s", raw)
	}
	if parsed.Path != "" || parsed.RawQuery != "" {
		return fmt.Errorf("源站只能包含 scheme 与 host: %s", raw)
	}
	return nil
}
