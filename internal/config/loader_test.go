package config

import (
	"testing"
	"time"
)

func TestLoadFailsWithMissingFields(t *testing.T) {
	if _, err := Load(testConfigPath(t, "missing.toml")); err == nil {
		t.Fatalf("缺失字段的配置应返回错误")
	}
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	cfg := `
LogLevel = "info"
StoragePath = "./data"
InitialBackoff = "boom"
Origin = "https://signage.example.com"
Domains = ["kiosk.local"]
`
	path := writeTempConfig(t, cfg)
	if _, err := Load(path); err == nil {
		t.Fatalf("无效 Duration 应失败")
	}
}

func TestLoadParsesDurationsAndLists(t *testing.T) {
	cfg := `
StoragePath = "./data"
InitialBackoff = 2
UpstreamTimeout = "45s"
Origin = "https://signage.example.com/"
Domains = ["Kiosk.Local", " localhost "]
ShellAssets = ["/index.html"]
MediaVersion = "v5"
DataVersion = "v3"
AutoActivate = true
`
	path := writeTempConfig(t, cfg)
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if loaded.Global.InitialBackoff.DurationValue() != 2*time.Second {
		t.Fatalf("纯数字应按秒解析，得到 %s", loaded.Global.InitialBackoff.DurationValue())
	}
	if loaded.Global.UpstreamTimeout.DurationValue() != 45*time.Second {
		t.Fatalf("UpstreamTimeout 解析错误: %s", loaded.Global.UpstreamTimeout.DurationValue())
	}
	if loaded.Content.Origin != "https://signage.example.com" {
		t.Fatalf("Origin 末尾斜杠应被去除: %s", loaded.Content.Origin)
	}
	if len(loaded.Content.Domains) != 2 || loaded.Content.Domains[0] != "kiosk.local" || loaded.Content.Domains[1] != "localhost" {
		t.Fatalf("Domains 应被规范化: %v", loaded.Content.Domains)
	}
	if len(loaded.Content.ShellAssets) != 1 {
		t.Fatalf("显式 ShellAssets 不应被默认值覆盖: %v", loaded.Content.ShellAssets)
	}
	if !loaded.Content.AutoActivate {
		t.Fatalf("AutoActivate 应被解析")
	}
}
