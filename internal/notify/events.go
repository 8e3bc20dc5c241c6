// Package notify 实现观察者通知通道：预加载进度等事件向所有已连接观察者扇出。
package notify

import "encoding/json"

// 广播事件的 action 取值。
const (
	ActionAlreadyCached    = "alreadyCached"
	ActionDownloadProgress = "downloadProgress"
	ActionDownloadComplete = "downloadComplete"
	ActionCacheClear       = "clearCache"
)

// Event 是一条可广播的事件，JSON 编码时带 action 字段。
type Event interface {
	Action() string
}

// AlreadyCached 表示本次预加载的资源都已在媒体存储中。
type AlreadyCached struct {
	Total int `json:"total"`
}

// DownloadProgress 在每个资源下载并写入成功后发送，Current 从 1 开始递增。
type DownloadProgress struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	URL     string `json:"url"`
}

// DownloadComplete 在一次预加载结束时发送且只发送一次。
type DownloadComplete struct {
	Downloaded int `json:"downloaded"`
	Total      int `json:"total"`
	TotalFiles int `json:"totalFiles"`
}

// CacheClearResult 是 clearCache 命令的一次性回复，不参与广播，编码为 {"success": bool}。
type CacheClearResult struct {
	Success bool `json:"success"`
}

func (AlreadyCached) Action() string    { return ActionAlreadyCached }
func (DownloadProgress) Action() string { return ActionDownloadProgress }
func (DownloadComplete) Action() string { return ActionDownloadComplete }
func (CacheClearResult) Action() string { return ActionCacheClear }

func (e AlreadyCached) MarshalJSON() ([]byte, error) {
	type alias AlreadyCached
	return json.Marshal(struct {
		Action string `json:"action"`
		alias
	}{e.Action(), alias(e)})
}

func (e DownloadProgress) MarshalJSON() ([]byte, error) {
	type alias DownloadProgress
	return json.Marshal(struct {
		Action string `json:"action"`
		alias
	}{e.Action(), alias(e)})
}

func (e DownloadComplete) MarshalJSON() ([]byte, error) {
	type alias DownloadComplete
	return json.Marshal(struct {
		Action string `json:"action"`
		alias
	}{e.Action(), alias(e)})
}
