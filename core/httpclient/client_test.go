package httpclient

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veritas-site/veritas-client/core/notify"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	rec := httptest.NewRecorder()
	rec.Header().Set("Content-Type", "application/json")
	rec.WriteHeader(status)
	rec.Body.WriteString(body)
	return rec.Result()
}

// recordingNotifier 收集提示，供断言用。
type recordingNotifier struct {
	mu    sync.Mutex
	items []notify.Notification
}

func (r *recordingNotifier) Notify(n notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
}

func (r *recordingNotifier) all() []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Notification(nil), r.items...)
}

func newTestClient(rt roundTripFunc, opts ...Option) *Client {
	base := []Option{WithHTTPClient(&http.Client{Transport: rt})}
	return NewClient(append(base, opts...)...)
}

func TestDoSuccess(t *testing.T) {
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"success":true,"data":{"username":"alice"}}`), nil
	})
	req, _ := http.NewRequest(http.MethodGet, "http://mock/api/user/profile", nil)
	var out struct {
		Username string `json:"username"`
	}
	require.NoError(t, client.Do(req, &out), "预期成功")
	assert.Equal(t, "alice", out.Username, "data 字段解析错误")
}

func TestDoEmptyBodyIsSuccess(t *testing.T) {
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, ""), nil
	})
	req, _ := http.NewRequest(http.MethodDelete, "http://mock/api/admin/emails/1", nil)
	assert.NoError(t, client.Do(req, nil), "空响应体应视为成功")
}

func TestEnvelopeFailureNoRetry(t *testing.T) {
	attempts := 0
	notifier := &recordingNotifier{}
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		attempts++
		return jsonResponse(http.StatusOK, `{"success":false,"message":"操作失败"}`), nil
	}, WithNotifier(notifier))

	req, _ := http.NewRequest(http.MethodGet, "http://mock/api/site/configs", nil)
	err := client.Do(req, nil)
	require.Error(t, err)
	var envErr *EnvelopeError
	require.True(t, errors.As(err, &envErr), "错误类型应为 EnvelopeError，实际: %v", err)
	assert.Equal(t, 1, attempts, "业务失败不应重试")

	ns := notifier.all()
	require.Len(t, ns, 1)
	assert.Equal(t, notify.SeverityError, ns[0].Severity)
	assert.Equal(t, "操作失败", ns[0].Message)
}

func TestEnvelopeFailureGuidanceIsWarning(t *testing.T) {
	notifier := &recordingNotifier{}
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"success":false,"message":"该邮箱尚未注册"}`), nil
	}, WithNotifier(notifier))

	req, _ := http.NewRequest(http.MethodGet, "http://mock/api/user/profile", nil)
	require.Error(t, client.Do(req, nil))

	ns := notifier.all()
	require.Len(t, ns, 1)
	// 引导性的业务失败（尚未/未注册）降级为 warning。
	assert.Equal(t, notify.SeverityWarning, ns[0].Severity)
}

func TestStatusMessages(t *testing.T) {
	cases := []struct {
		status  int
		message string
	}{
		{http.StatusForbidden, "权限不足或令牌失效"},
		{http.StatusNotFound, "请求的资源不存在"},
		{http.StatusRequestEntityTooLarge, "上传的文件太大了"},
		{http.StatusInternalServerError, "服务器开小差了，请稍后再试"},
	}
	for _, tc := range cases {
		notifier := &recordingNotifier{}
		client := newTestClient(func(req *http.Request) (*http.Response, error) {
			return jsonResponse(tc.status, `{"success":false}`), nil
		}, WithNotifier(notifier), WithRetryPolicy(nil))

		req, _ := http.NewRequest(http.MethodGet, "http://mock/api/x", nil)
		err := client.Do(req, nil)
		require.Error(t, err, "状态码 %d 应返回错误", tc.status)
		var sErr *StatusError
		require.True(t, errors.As(err, &sErr))
		assert.Equal(t, tc.status, sErr.Status)
		assert.Equal(t, tc.message, sErr.Message, "状态码 %d 的文案不匹配", tc.status)

		ns := notifier.all()
		require.Len(t, ns, 1, "状态码 %d 应提示一次", tc.status)
		assert.Equal(t, tc.message, ns[0].Message)
	}
}

func TestUnauthorizedClearsSessionAndDebounces(t *testing.T) {
	notifier := &recordingNotifier{}
	var cleared, expired atomic.Int32
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusUnauthorized, `{"success":false}`), nil
	},
		WithNotifier(notifier),
		WithRetryPolicy(nil),
		WithSessionHooks(func() { cleared.Add(1) }, func() { expired.Add(1) }),
		WithExpireWindows(time.Hour, 0),
	)

	req1, _ := http.NewRequest(http.MethodGet, "http://mock/api/a", nil)
	req2, _ := http.NewRequest(http.MethodGet, "http://mock/api/b", nil)
	require.Error(t, client.Do(req1, nil))
	require.Error(t, client.Do(req2, nil))

	// 每次 401 都清理本地会话，但提示与跳转在防抖窗口内只触发一次。
	assert.Equal(t, int32(2), cleared.Load(), "会话清理应每次都执行")
	assert.Eventually(t, func() bool { return expired.Load() == 1 },
		time.Second, 10*time.Millisecond, "跳转回调应触发且仅触发一次")

	ns := notifier.all()
	require.Len(t, ns, 1, "401 提示在防抖窗口内只应出现一次")
	assert.Equal(t, "登录已过期，请重新登录", ns[0].Message)
}

type timeoutNetErr struct{}

func (timeoutNetErr) Error() string   { return "i/o timeout" }
func (timeoutNetErr) Timeout() bool   { return true }
func (timeoutNetErr) Temporary() bool { return true }

func TestTimeoutDistinctFromNetworkError(t *testing.T) {
	notifier := &recordingNotifier{}
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		return nil, timeoutNetErr{}
	}, WithNotifier(notifier), WithRetryPolicy(nil))

	req, _ := http.NewRequest(http.MethodGet, "http://mock/api/slow", nil)
	err := client.Do(req, nil)
	var tErr *TimeoutError
	require.True(t, errors.As(err, &tErr), "超时应归类为 TimeoutError，实际: %v", err)

	ns := notifier.all()
	require.Len(t, ns, 1)
	assert.Equal(t, "请求超时，请检查网络", ns[0].Message)

	notifier2 := &recordingNotifier{}
	client2 := newTestClient(func(req *http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	}, WithNotifier(notifier2), WithRetryPolicy(nil))
	err = client2.Do(req.Clone(req.Context()), nil)
	var nErr *NetworkError
	require.True(t, errors.As(err, &nErr), "网络不可达应归类为 NetworkError，实际: %v", err)
	ns2 := notifier2.all()
	require.Len(t, ns2, 1)
	assert.Equal(t, "网络连接异常", ns2[0].Message)
}

func TestRetryOnServerError(t *testing.T) {
	attempts := 0
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		attempts++
		if attempts < 3 {
			return jsonResponse(http.StatusInternalServerError, `{"success":false}`), nil
		}
		return jsonResponse(http.StatusOK, `{"success":true}`), nil
	}, WithRetryPolicy(NewExponentialBackoffRetry(RetryConfig{
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
	})))

	req, _ := http.NewRequest(http.MethodGet, "http://mock/api/flaky", nil)
	require.NoError(t, client.Do(req, nil), "5xx 重试后应成功")
	assert.Equal(t, 3, attempts)
}

func TestNoRetryOnClientError(t *testing.T) {
	attempts := 0
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		attempts++
		return jsonResponse(http.StatusNotFound, `{"success":false}`), nil
	})
	req, _ := http.NewRequest(http.MethodGet, "http://mock/api/missing", nil)
	require.Error(t, client.Do(req, nil))
	assert.Equal(t, 1, attempts, "4xx 不应重试")
}

func TestBearerMiddleware(t *testing.T) {
	token := ""
	var got string
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		got = req.Header.Get("Authorization")
		return jsonResponse(http.StatusOK, `{"success":true}`), nil
	}, WithMiddlewares(WithBearerToken(func() string { return token })))

	req, _ := http.NewRequest(http.MethodGet, "http://mock/api/user/profile", nil)
	require.NoError(t, client.Do(req, nil))
	assert.Empty(t, got, "未登录时不应注入 Authorization")

	token = "abc123"
	req2, _ := http.NewRequest(http.MethodGet, "http://mock/api/user/profile", nil)
	require.NoError(t, client.Do(req2, nil))
	assert.Equal(t, "Bearer abc123", got)
}

func TestJSONHeadersSkipMultipart(t *testing.T) {
	mw := WithJSONHeaders()

	req, _ := http.NewRequest(http.MethodPost, "http://mock/api/wallpaper/upload",
		strings.NewReader("--boundary--"))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=boundary")
	require.NoError(t, mw(req))
	assert.Equal(t, "multipart/form-data; boundary=boundary", req.Header.Get("Content-Type"),
		"multipart 的 Content-Type 不应被覆盖")

	req2, _ := http.NewRequest(http.MethodPost, "http://mock/api/login",
		strings.NewReader(`{"username":"alice"}`))
	require.NoError(t, mw(req2))
	assert.Equal(t, "application/json", req2.Header.Get("Content-Type"))
}

func TestRetrySkipsNonReplayableBody(t *testing.T) {
	attempts := 0
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		attempts++
		return jsonResponse(http.StatusInternalServerError, `{"success":false}`), nil
	})
	req, _ := http.NewRequest(http.MethodPost, "http://mock/api/upload", strings.NewReader("body"))
	req.GetBody = nil
	require.Error(t, client.Do(req, nil))
	assert.Equal(t, 1, attempts, "请求体不可重放时不应重试")
}
