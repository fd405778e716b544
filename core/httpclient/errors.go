package httpclient

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Envelope 是后端统一的响应包装：{success, data, message}。
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

// EnvelopeError 表示 HTTP 层成功但业务层失败（success=false）。
type EnvelopeError struct {
	Message string
}

func (e *EnvelopeError) Error() string {
	if e == nil || e.Message == "" {
		return "请求失败"
	}
	return e.Message
}

// StatusError 表示按状态码分类后的 HTTP 错误。
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return fmt.Sprintf("http %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("http %d: %s", e.Status, http.StatusText(e.Status))
}

// NetworkError 包装网络不可达类错误。
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("网络错误: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// TimeoutError 表示请求超时，与网络不可达分开上报。
type TimeoutError struct {
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("请求超时: %v", e.Err)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// DecodeError 表示响应解码失败。
type DecodeError struct {
	Status int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("解码失败(status=%d): %v", e.Status, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// statusMessage 把状态码映射为固定的用户提示文案。
func statusMessage(status int, fallback string) string {
	switch status {
	case http.StatusUnauthorized:
		return "登录已过期，请重新登录"
	case http.StatusForbidden:
		return "权限不足或令牌失效"
	case http.StatusNotFound:
		return "请求的资源不存在"
	case http.StatusRequestEntityTooLarge:
		return "上传的文件太大了"
	case http.StatusInternalServerError:
		return "服务器开小差了，请稍后再试"
	default:
		if fallback != "" {
			return fallback
		}
		return fmt.Sprintf("请求错误 %d", status)
	}
}
