package cache

import (
	"net/url"
	"testing"
)

func TestKeyFromURLCanonicalizes(t *testing.T) {
	cases := map[string]string{
		"HTTPS://Signage.Local/media/a.mp4":       "https://signage.local/media/a.mp4",
		"https://signage.local:443/a.png?v=2#top": "https://signage.local/a.png?v=2",
		"http://signage.local:80":                 "http://signage.local/",
		"http://signage.local:8080/x":             "http://signage.local:8080/x",
	}
	for raw, want := range cases {
		u, err := url.Parse(raw)
		if err != nil {
			t.Fatalf("parse %s: %v", raw, err)
		}
		if got := KeyFromURL(u); string(got) != want {
			t.Fatalf("KeyFromURL(%s) = %s, want %s", raw, got, want)
		}
	}
}

func TestResolveKeyAgainstOrigin(t *testing.T) {
	origin, _ := url.Parse("https://signage.local")
	key, err := ResolveKey(origin, "/media/a.mp4")
	if err != nil {
		t.Fatalf("resolve error: %v", err)
	}
	if key != "https://signage.local/media/a.mp4" {
		t.Fatalf("unexpected key: %s", key)
	}

	abs, err := ResolveKey(origin, "https://cdn.other/b.png")
	if err != nil || abs != "https://cdn.other/b.png" {
		t.Fatalf("absolute url should be kept: %s %v", abs, err)
	}

	if _, err := ResolveKey(origin, "  "); err == nil {
		t.Fatalf("empty url should fail")
	}
	if _, err := ResolveKey(nil, "/relative.png"); err == nil {
		t.Fatalf("relative url without origin should fail")
	}
}

func TestSameOrigin(t *testing.T) {
	a, _ := url.Parse("https://signage.local/a")
	b, _ := url.Parse("https://SIGNAGE.local:443/b")
	c, _ := url.Parse("http://signage.local/a")
	if !SameOrigin(a, b) {
		t.Fatalf("default port should not change origin")
	}
	if SameOrigin(a, c) {
		t.Fatalf("scheme difference must change origin")
	}
}
