package server

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/any-hub/signage-cache/internal/config"
)

// Route 描述一次请求的去向：同源请求解析到内容源站并走缓存策略，
// 其余 Host 原样透传，不触碰任何存储。
type Route struct {
	// Host 是规范化后的请求 Host（不含端口）。
	Host string
	// SameOrigin 为 true 时请求会被分类并交给缓存策略处理。
	SameOrigin bool
	// Upstream 是回源基地址：同源时为配置的 Origin，透传时为请求自身的 scheme+host。
	Upstream *url.URL
	// ListenPort 记录当前监听端口，方便日志/转发头输出。
	ListenPort int
}

// OriginTable 提供 Host/Host:port 到 Route 的查询能力。
type OriginTable struct {
	origin     *url.URL
	domains    map[string]struct{}
	listenPort int
}

// NewOriginTable 根据配置构建同源 Host 集合。Origin 自身的 Host 也视为同源。
func NewOriginTable(cfg *config.Config) (*OriginTable, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	origin, err := url.Parse(cfg.Content.Origin)
	if err != nil {
		return nil, fmt.Errorf("invalid origin: %w", err)
	}
	if origin.Scheme == "" || origin.Host == "" {
		return nil, fmt.Errorf("origin must be absolute: %s", cfg.Content.Origin)
	}

	table := &OriginTable{
		origin:     origin,
		domains:    make(map[string]struct{}, len(cfg.Content.Domains)+1),
		listenPort: cfg.Global.ListenPort,
	}
	for _, domain := range cfg.Content.Domains {
		normalized := normalizeDomain(domain)
		if normalized == "" {
			return nil, fmt.Errorf("invalid domain %q", domain)
		}
		if _, exists := table.domains[normalized]; exists {
			return nil, fmt.Errorf("duplicate domain mapping detected for %s", normalized)
		}
		table.domains[normalized] = struct{}{}
	}
	table.domains[normalizeDomain(origin.Host)] = struct{}{}
	return table, nil
}

// Lookup 根据 Host 或 Host:port 解析 Route；Host 为空时返回 false。
// scheme 只用于透传请求，缺省为 http。
func (t *OriginTable) Lookup(host, scheme string) (*Route, bool) {
	if t == nil {
		return nil, false
	}
	raw := strings.TrimSpace(host)
	normalized, _ := normalizeHost(raw)
	if normalized == "" {
		return nil, false
	}

	if _, ok := t.domains[normalized]; ok {
		return &Route{
			Host:       normalized,
			SameOrigin: true,
			Upstream:   t.origin,
			ListenPort: t.listenPort,
		}, true
	}

	if scheme == "" {
		scheme = "http"
	}
	return &Route{
		Host:       normalized,
		SameOrigin: false,
		Upstream:   &url.URL{Scheme: scheme, Host: strings.ToLower(raw)},
		ListenPort: t.listenPort,
	}, true
}

// Origin 返回内容源站。
func (t *OriginTable) Origin() *url.URL {
	return t.origin
}

// Domains 返回排序后的同源 Host 列表，用于 /-/status 输出。
func (t *OriginTable) Domains() []string {
	if t == nil {
		return nil
	}
	result := make([]string, 0, len(t.domains))
	for domain := range t.domains {
		result = append(result, domain)
	}
	sort.Strings(result)
	return result
}

func normalizeDomain(domain string) string {
	host, _ := normalizeHost(domain)
	return host
}

func normalizeHost(raw string) (string, int) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", 0
	}

	host := raw
	port := 0

	if strings.Contains(raw, ":") {
		if h, p, err := net.SplitHostPort(raw); err == nil {
			host = h
			if parsedPort, err := strconv.Atoi(p); err == nil {
				port = parsedPort
			}
		} else if idx := strings.LastIndex(raw, ":"); idx > -1 && strings.Count(raw[idx+1:], ":") == 0 {
			if parsedPort, err := strconv.Atoi(raw[idx+1:]); err == nil {
				host = raw[:idx]
				port = parsedPort
			}
		}
	}

	host = strings.TrimSuffix(host, ".")
	host = strings.ToLower(host)
	return host, port
}
