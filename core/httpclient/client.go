package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"github.com/veritas-site/veritas-client/core/notify"
)

// Logger 由外部注入，满足 core 层无输出原则。
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// NopLogger 默认空日志实现。
type NopLogger struct{}

func (NopLogger) Debugf(string, ...any) {}
func (NopLogger) Infof(string, ...any)  {}
func (NopLogger) Warnf(string, ...any)  {}
func (NopLogger) Errorf(string, ...any) {}

const (
	// defaultExpireDebounce 是 401 提示的单次触发窗口。
	defaultExpireDebounce = 3 * time.Second
	// defaultRedirectDelay 是 401 后跳转回调的延迟。
	defaultRedirectDelay = time.Second
)

// Client 为统一 HTTP 客户端封装：中间件、重试、限流、
// 统一的响应包装解析与错误提示分发。
type Client struct {
	HTTP     *http.Client
	Jar      http.CookieJar
	Prepare  PrepareChain
	Retry    RetryPolicy
	Limiter  RateLimiter
	Logger   Logger
	Notifier notify.Notifier

	onClearSession   func()
	onSessionExpired func()
	expireDebounce   time.Duration
	redirectDelay    time.Duration

	expireMu sync.Mutex
	last401  time.Time
}

// Option 配置客户端。
type Option func(*Client)

// WithHTTPClient 自定义 http.Client。
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.HTTP = httpClient
	}
}

// WithRetryPolicy 设置重试策略。
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(c *Client) {
		c.Retry = policy
	}
}

// WithRateLimiter 设置限流。
func WithRateLimiter(limiter RateLimiter) Option {
	return func(c *Client) {
		c.Limiter = limiter
	}
}

// WithLogger 注入日志。
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.Logger = logger
	}
}

// WithNotifier 注入用户提示分发。
func WithNotifier(n notify.Notifier) Option {
	return func(c *Client) {
		c.Notifier = n
	}
}

// WithMiddlewares 设置请求中间件链。
func WithMiddlewares(mw ...Middleware) Option {
	return func(c *Client) {
		c.Prepare = append(c.Prepare, mw...)
	}
}

// WithSessionHooks 注入 401 处理回调：clear 立即清理本地会话，
// expired 在短暂延迟后触发（跳转登录页的等价物）。
func WithSessionHooks(clear, expired func()) Option {
	return func(c *Client) {
		c.onClearSession = clear
		c.onSessionExpired = expired
	}
}

// WithExpireWindows 自定义 401 的防抖窗口与跳转延迟，主要用于测试。
func WithExpireWindows(debounce, redirectDelay time.Duration) Option {
	return func(c *Client) {
		if debounce > 0 {
			c.expireDebounce = debounce
		}
		if redirectDelay >= 0 {
			c.redirectDelay = redirectDelay
		}
	}
}

// NewClient 创建带默认重试、CookieJar 的客户端。
func NewClient(opts ...Option) *Client {
	// cookiejar.New(nil) 传入 nil 时不会返回错误，可以安全忽略
	jar, _ := cookiejar.New(nil)
	client := &Client{
		HTTP:           &http.Client{Jar: jar},
		Jar:            jar,
		Prepare:        PrepareChain{},
		Logger:         NopLogger{},
		Notifier:       notify.NopNotifier{},
		expireDebounce: defaultExpireDebounce,
		redirectDelay:  defaultRedirectDelay,
	}
	client.Retry = NewExponentialBackoffRetry(DefaultRetryConfig())
	for _, opt := range opts {
		opt(client)
	}
	if client.HTTP == nil {
		client.HTTP = &http.Client{}
	}
	if client.Logger == nil {
		client.Logger = NopLogger{}
	}
	if client.Notifier == nil {
		client.Notifier = notify.NopNotifier{}
	}
	if client.Jar == nil {
		client.Jar = client.HTTP.Jar
	}
	if client.HTTP.Jar == nil {
		client.HTTP.Jar = client.Jar
	}
	return client
}

// Use 添加中间件。
func (c *Client) Use(mw ...Middleware) {
	c.Prepare = append(c.Prepare, mw...)
}

// Do 发送请求并解析统一响应包装，包含重试、限流、中间件与错误提示。
// out 接收包装内的 data 字段，传 nil 时仅校验业务是否成功。
func (c *Client) Do(req *http.Request, out any) error {
	if req == nil {
		return errors.New("httpclient: 请求为空")
	}
	if c.HTTP == nil {
		return errors.New("httpclient: http.Client 未配置")
	}
	attempt := 0
	for {
		clonedReq, cloneErr := c.cloneRequest(req, attempt)
		if cloneErr != nil {
			return cloneErr
		}
		resp, err := c.execute(clonedReq, out)
		if err == nil {
			return nil
		}
		if resp != nil && resp.Body != nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
		if c.Retry == nil {
			c.report(err)
			return err
		}
		retry, wait, policyErr := c.Retry.ShouldRetry(clonedReq, resp, err, attempt)
		if policyErr != nil {
			c.report(policyErr)
			return policyErr
		}
		if !retry {
			c.report(err)
			return err
		}
		attempt++
		if wait > 0 {
			time.Sleep(wait)
		}
	}
}

func (c *Client) execute(req *http.Request, out any) (*http.Response, error) {
	if c.Prepare != nil {
		if err := c.Prepare.Apply(req); err != nil {
			return nil, err
		}
	}
	if c.Limiter != nil {
		if err := c.Limiter.Wait(req.Context(), req); err != nil {
			return nil, err
		}
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		sErr := c.statusError(resp)
		if sErr.Status == http.StatusUnauthorized {
			c.handleUnauthorized()
		}
		return resp, sErr
	}

	var env Envelope
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber() // 保留数字精度
	if decodeErr := dec.Decode(&env); decodeErr != nil {
		if decodeErr == io.EOF {
			// 空响应体，视为成功
			return resp, nil
		}
		return resp, &DecodeError{Status: resp.StatusCode, Err: decodeErr}
	}
	if !env.Success {
		msg := env.Message
		if msg == "" {
			msg = "请求失败"
		}
		return resp, &EnvelopeError{Message: msg}
	}
	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if decodeErr := json.Unmarshal(env.Data, out); decodeErr != nil {
			return resp, &DecodeError{Status: resp.StatusCode, Err: decodeErr}
		}
	}
	return resp, nil
}

// statusError 读取错误响应体，尽量带上服务端消息。
func (c *Client) statusError(resp *http.Response) *StatusError {
	fallback := ""
	var env Envelope
	if decodeErr := json.NewDecoder(resp.Body).Decode(&env); decodeErr == nil {
		fallback = env.Message
	}
	return &StatusError{
		Status:  resp.StatusCode,
		Message: statusMessage(resp.StatusCode, fallback),
	}
}

// handleUnauthorized 处理登录过期：本地会话立即清理，
// 提示与跳转回调在防抖窗口内只触发一次，避免提示风暴。
func (c *Client) handleUnauthorized() {
	if c.onClearSession != nil {
		c.onClearSession()
	}
	c.expireMu.Lock()
	now := time.Now()
	if !c.last401.IsZero() && now.Sub(c.last401) < c.expireDebounce {
		c.expireMu.Unlock()
		return
	}
	c.last401 = now
	c.expireMu.Unlock()

	c.Logger.Warnf("登录已过期，准备跳转登录")
	c.Notifier.Notify(notify.New(notify.SeverityError, "登录已过期，请重新登录"))
	if c.onSessionExpired != nil {
		time.AfterFunc(c.redirectDelay, c.onSessionExpired)
	}
}

// report 在请求最终失败后分发一次用户提示。
func (c *Client) report(err error) {
	if err == nil || c.Notifier == nil {
		return
	}
	var envErr *EnvelopeError
	var timeoutErr *TimeoutError
	var netErr *NetworkError
	var statusErr *StatusError
	switch {
	case errors.As(err, &envErr):
		c.Notifier.Notify(notify.New(notify.ClassifySeverity(envErr.Message), envErr.Error()))
	case errors.As(err, &timeoutErr):
		c.Notifier.Notify(notify.New(notify.SeverityError, "请求超时，请检查网络"))
	case errors.As(err, &netErr):
		c.Notifier.Notify(notify.New(notify.SeverityError, "网络连接异常"))
	case errors.As(err, &statusErr):
		// 401 的提示已在 handleUnauthorized 中做过防抖处理。
		if statusErr.Status != http.StatusUnauthorized {
			c.Notifier.Notify(notify.New(notify.SeverityError, statusErr.Message))
		}
	}
}

// classifyTransport 区分超时与网络不可达。
func classifyTransport(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Err: err}
	}
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Timeout() {
		return &TimeoutError{Err: err}
	}
	return &NetworkError{Err: err}
}

func (c *Client) cloneRequest(req *http.Request, attempt int) (*http.Request, error) {
	cloned := req.Clone(req.Context())
	cloned.Header = req.Header.Clone()
	cloned.GetBody = req.GetBody
	cloned.ContentLength = req.ContentLength
	cloned.TransferEncoding = append([]string(nil), req.TransferEncoding...)
	if req.Body != nil {
		if attempt == 0 {
			cloned.Body = req.Body
		} else {
			if req.GetBody == nil {
				return nil, fmt.Errorf("httpclient: 请求体不可重试")
			}
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			cloned.Body = body
		}
	}
	return cloned, nil
}
