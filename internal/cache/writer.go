package cache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
)

// Duplicate 在任何消费者读取之前复制响应正文：resp.Body 被替换为内存副本，
// 返回的 payload 与调用方随后读到的字节完全一致。
func Duplicate(resp *http.Response) ([]byte, error) {
	if resp == nil || resp.Body == nil {
		return nil, nil
	}
	payload, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		resp.Body = io.NopCloser(bytes.NewReader(nil))
		return nil, fmt.Errorf("duplicate response body: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(payload))
	resp.ContentLength = int64(len(payload))
	return payload, nil
}

// PutResponse 以 resp 的状态码与响应头为元数据，将 payload 写入 store 并等待写入完成。
func PutResponse(ctx context.Context, store Store, key Key, resp *http.Response, payload []byte) (*Meta, error) {
	meta := Meta{
		Key:    key,
		Status: resp.StatusCode,
		Header: resp.Header.Clone(),
	}
	return store.Put(ctx, key, meta, bytes.NewReader(payload))
}

// Response 将缓存条目还原为 *http.Response，Body 直接引用存储中的正文。
// 调用方负责关闭 Body。
func (r *ReadResult) Response(req *http.Request) *http.Response {
	header := r.Meta.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	header.Set("Content-Length", strconv.FormatInt(r.Meta.Size, 10))
	status := r.Meta.Status
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          r.Reader,
		ContentLength: r.Meta.Size,
		Request:       req,
	}
}
