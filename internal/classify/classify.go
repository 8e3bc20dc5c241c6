// Package classify maps a same-origin request path to the caching policy that
// serves it. Classification is a pure function of the path: it never fails and
// every path belongs to exactly one Class.
package classify

import (
	"path"
	"strings"
)

// Class 是请求类别。
type Class int

const (
	// Other 覆盖外壳页面、脚本、样式等其余资源。
	Other Class = iota
	// Media 是音视频与图片。
	Media
	// StructuredData 是 JSON 数据清单。
	StructuredData
)

// versionSentinel 出现在路径中时不按数据缓存，版本检查清单必须每次走网络。
const versionSentinel = "version.txt"

var mediaExtensions = map[string]struct{}{
	".mp4":  {},
	".webm": {},
	".ogg":  {},
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".webp": {},
	".mp3":  {},
	".wav":  {},
}

// Classify 根据路径后缀给出类别；媒体扩展名大小写不敏感。
func Classify(p string) Class {
	ext := strings.ToLower(path.Ext(p))
	if _, ok := mediaExtensions[ext]; ok {
		return Media
	}
	if ext == ".json" && !strings.Contains(p, versionSentinel) {
		return StructuredData
	}
	return Other
}

// String 返回用于日志与指标标签的类别名。
func (c Class) String() string {
	switch c {
	case Media:
		return "media"
	case StructuredData:
		return "data"
	default:
		return "other"
	}
}

// Classes 按固定顺序列出全部类别。
func Classes() []Class {
	return []Class{Media, StructuredData, Other}
}
