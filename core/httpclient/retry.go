package httpclient

import (
	"errors"
	"net/http"
	"time"
)

// RetryPolicy 定义重试策略。
type RetryPolicy interface {
	ShouldRetry(req *http.Request, resp *http.Response, err error, attempt int) (bool, time.Duration, error)
}

// RetryConfig 配置指数退避重试。
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Logger     Logger
}

// DefaultRetryConfig 返回默认重试配置。
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 2,
		BaseDelay:  200 * time.Millisecond,
		MaxDelay:   2 * time.Second,
	}
}

// ExponentialBackoffRetry 实现指数退避重试。
// 仅对网络错误与 5xx 重试；业务失败（success=false）与 4xx 不重试。
type ExponentialBackoffRetry struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	logger     Logger
}

// NewExponentialBackoffRetry 创建重试策略。
func NewExponentialBackoffRetry(cfg RetryConfig) *ExponentialBackoffRetry {
	logger := cfg.Logger
	if logger == nil {
		logger = NopLogger{}
	}
	return &ExponentialBackoffRetry{
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.BaseDelay,
		maxDelay:   cfg.MaxDelay,
		logger:     logger,
	}
}

// ShouldRetry 根据错误类型决定是否重试。
func (r *ExponentialBackoffRetry) ShouldRetry(req *http.Request, resp *http.Response, err error, attempt int) (bool, time.Duration, error) {
	if r == nil || err == nil {
		return false, 0, nil
	}
	if attempt >= r.maxRetries {
		return false, 0, nil
	}
	// 非 GET 且请求体不可重放时放弃重试。
	if req != nil && req.Method != http.MethodGet && req.Body != nil && req.GetBody == nil {
		return false, 0, nil
	}

	var netErr *NetworkError
	var timeoutErr *TimeoutError
	var statusErr *StatusError
	switch {
	case errors.As(err, &netErr), errors.As(err, &timeoutErr):
		r.logger.Debugf("网络错误，第 %d 次重试", attempt+1)
		return true, r.backoff(attempt), nil
	case errors.As(err, &statusErr) && statusErr.Status >= http.StatusInternalServerError:
		r.logger.Debugf("服务端错误 %d，第 %d 次重试", statusErr.Status, attempt+1)
		return true, r.backoff(attempt), nil
	default:
		return false, 0, nil
	}
}

func (r *ExponentialBackoffRetry) backoff(attempt int) time.Duration {
	delay := r.baseDelay << uint(attempt)
	if r.maxDelay > 0 && delay > r.maxDelay {
		delay = r.maxDelay
	}
	return delay
}
