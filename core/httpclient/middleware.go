package httpclient

import (
	"net/http"
	"strings"
)

// Middleware 是请求预处理钩子，用于注入令牌、UA、Content-Type 等。
type Middleware func(req *http.Request) error

// PrepareChain 代表按顺序执行的中间件集合。
type PrepareChain []Middleware

// Apply 依次执行链路中的中间件，遇到错误立即返回。
func (c PrepareChain) Apply(req *http.Request) error {
	for _, mw := range c {
		if mw == nil {
			continue
		}
		if err := mw(req); err != nil {
			return err
		}
	}
	return nil
}

// WithHeader 设置请求头。
func WithHeader(key, value string) Middleware {
	return func(req *http.Request) error {
		req.Header.Set(key, value)
		return nil
	}
}

// WithUserAgent 设置 User-Agent。
func WithUserAgent(ua string) Middleware {
	return WithHeader("User-Agent", ua)
}

// TokenSource 提供当前令牌，空串表示未登录。
type TokenSource func() string

// WithBearerToken 在令牌非空时注入 Authorization 头。
func WithBearerToken(source TokenSource) Middleware {
	return func(req *http.Request) error {
		if source == nil {
			return nil
		}
		if token := source(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		return nil
	}
}

// WithJSONHeaders 设置 JSON 默认头。multipart 请求体自带 boundary 的
// Content-Type，手工覆盖会破坏 boundary 导致服务端解析失败，因此已有
// multipart 头时必须跳过。
func WithJSONHeaders() Middleware {
	return func(req *http.Request) error {
		req.Header.Set("Accept", "application/json")
		ct := req.Header.Get("Content-Type")
		if strings.HasPrefix(ct, "multipart/") {
			return nil
		}
		if req.Body != nil && ct == "" {
			req.Header.Set("Content-Type", "application/json")
		}
		return nil
	}
}
