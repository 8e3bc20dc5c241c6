package cache

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Key 是资源的规范身份：scheme://host/path?query，不含 fragment。
// 两个 Key 相等当且仅当规范化后的 URL 相同。
type Key string

// String 返回 Key 的 URL 形式。
func (k Key) String() string {
	return string(k)
}

// URL 将 Key 解析回 *url.URL。
func (k Key) URL() (*url.URL, error) {
	return url.Parse(string(k))
}

// KeyFromURL 对绝对 URL 做规范化：scheme/host 小写、去掉默认端口、空路径补 "/"、丢弃 fragment。
func KeyFromURL(u *url.URL) Key {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	if h, port, err := net.SplitHostPort(host); err == nil {
		if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
			host = h
		}
	}

	p := u.EscapedPath()
	if p == "" {
		p = "/"
	}

	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString("://")
	b.WriteString(host)
	b.WriteString(p)
	if u.RawQuery != "" {
		b.WriteByte('?')
		b.WriteString(u.RawQuery)
	}
	return Key(b.String())
}

// ResolveKey 将绝对地址或站内相对地址解析到 origin 之下并返回规范 Key。
func ResolveKey(origin *url.URL, raw string) (Key, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("empty asset url")
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse asset url %q: %w", raw, err)
	}
	if origin != nil {
		ref = origin.ResolveReference(ref)
	}
	if ref.Scheme == "" || ref.Host == "" {
		return "", fmt.Errorf("asset url %q is not absolute", raw)
	}
	return KeyFromURL(ref), nil
}

// SameOrigin 判断两个 URL 是否同源（scheme + host + port 一致）。
func SameOrigin(a, b *url.URL) bool {
	if a == nil || b == nil {
		return false
	}
	ka, kb := KeyFromURL(&url.URL{Scheme: a.Scheme, Host: a.Host}), KeyFromURL(&url.URL{Scheme: b.Scheme, Host: b.Host})
	return ka == kb
}
