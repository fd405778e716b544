// Package api 封装 Veritas 博客后端的 HTTP 接口调用。
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	coreerrors "github.com/veritas-site/veritas-client/core/errors"
	"github.com/veritas-site/veritas-client/core/httpclient"
)

// DefaultBaseURL 本地开发环境的默认接口地址。
const DefaultBaseURL = "http://127.0.0.1:3000/api"

// Client 统一封装博客后端接口调用。
type Client struct {
	http    *httpclient.Client
	logger  httpclient.Logger
	baseURL string
}

// Option 自定义客户端配置。
type Option func(*Client)

// WithHTTPClient 注入自定义 httpclient.Client。
func WithHTTPClient(cli *httpclient.Client) Option {
	return func(c *Client) {
		if cli != nil {
			c.http = cli
		}
	}
}

// WithLogger 注入日志接口。
func WithLogger(logger httpclient.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
			if c.http != nil {
				c.http.Logger = logger
			}
		}
	}
}

// WithBaseURL 替换默认接口地址。
func WithBaseURL(base string) Option {
	return func(c *Client) {
		if base != "" {
			c.baseURL = strings.TrimRight(base, "/")
		}
	}
}

// NewClient 创建默认客户端。
func NewClient(opts ...Option) *Client {
	cli := &Client{
		http:    httpclient.NewClient(),
		logger:  httpclient.NopLogger{},
		baseURL: DefaultBaseURL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cli)
		}
	}
	if cli.http == nil {
		cli.http = httpclient.NewClient()
	}
	if cli.logger == nil {
		cli.logger = httpclient.NopLogger{}
	}
	cli.http.Logger = cli.logger
	return cli
}

// HTTP 暴露底层 httpclient，便于接入方追加中间件。
func (c *Client) HTTP() *httpclient.Client {
	return c.http
}

// Resolve 把后端返回的相对路径（如用户上传的图片）解析为绝对地址。
func (c *Client) Resolve(ref string) string {
	if ref == "" {
		return ""
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return ref
	}
	if !strings.HasPrefix(ref, "/") {
		ref = "/" + ref
	}
	base.Path = ref
	base.RawQuery = ""
	return base.String()
}

// get 构造 GET 请求并解析响应包装。
func (c *Client) get(ctx context.Context, path string, params map[string]string, out any) error {
	req, err := c.buildRequest(ctx, http.MethodGet, path, params, nil)
	if err != nil {
		return err
	}
	return c.http.Do(req, out)
}

// del 构造 DELETE 请求并解析响应包装。
func (c *Client) del(ctx context.Context, path string, out any) error {
	req, err := c.buildRequest(ctx, http.MethodDelete, path, nil, nil)
	if err != nil {
		return err
	}
	return c.http.Do(req, out)
}

// postJSON 构造 JSON POST 请求。
func (c *Client) postJSON(ctx context.Context, path string, payload any, out any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return coreerrors.Wrap(coreerrors.ErrCodeInvalidArgument, "api: 序列化请求体失败", err)
	}
	req, err := c.buildRequest(ctx, http.MethodPost, path, nil, raw)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.http.Do(req, out)
}

func (c *Client) buildRequest(ctx context.Context, method, path string, params map[string]string, body []byte) (*http.Request, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		vals := url.Values{}
		for k, v := range params {
			vals.Set(k, v)
		}
		if strings.Contains(u, "?") {
			u += "&" + vals.Encode()
		} else {
			u += "?" + vals.Encode()
		}
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, coreerrors.Wrap(coreerrors.ErrCodeInvalidArgument, "api: 构造请求失败", err)
	}
	if body != nil {
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
	}
	return req, nil
}
