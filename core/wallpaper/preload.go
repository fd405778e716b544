package wallpaper

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Outcome 预加载结果。
type Outcome int

const (
	// OutcomeOK 加载成功。
	OutcomeOK Outcome = iota
	// OutcomeTimeout 超时，结果存疑：不算硬失败，调用方仍可乐观提交。
	OutcomeTimeout
	// OutcomeBroken 结构性失效：资源不存在或不是图片。
	OutcomeBroken
)

// Preloader 在提交壁纸前验证地址可加载。
type Preloader interface {
	Preload(ctx context.Context, url string) Outcome
}

// defaultPreloadTimeout 单次预加载的墙钟上限。
const defaultPreloadTimeout = 3 * time.Second

// Resolver 把相对路径解析为绝对地址（通常由 api.Client.Resolve 提供）。
type Resolver func(ref string) string

// HTTPPreloader 通过 HTTP 拉取并校验内容是否为图片。
type HTTPPreloader struct {
	client  *http.Client
	resolve Resolver
	timeout time.Duration
}

// NewHTTPPreloader 创建预加载器，client 传 nil 时使用默认客户端。
func NewHTTPPreloader(client *http.Client, resolve Resolver) *HTTPPreloader {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPPreloader{
		client:  client,
		resolve: resolve,
		timeout: defaultPreloadTimeout,
	}
}

// Preload 拉取地址并判定结果：超时为存疑，状态码 >=400 或内容
// 不是图片为结构性失效。
func (p *HTTPPreloader) Preload(ctx context.Context, target string) Outcome {
	if target == "" {
		return OutcomeBroken
	}
	if p.resolve != nil {
		target = p.resolve(target)
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return OutcomeBroken
	}
	resp, err := p.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return OutcomeTimeout
		}
		return OutcomeBroken
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		return OutcomeBroken
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && strings.HasPrefix(ct, "image/") {
		return OutcomeOK
	}
	// 没有可信的 Content-Type 时嗅探内容。
	head := make([]byte, 512)
	n, _ := io.ReadFull(resp.Body, head)
	if n == 0 {
		return OutcomeBroken
	}
	if strings.HasPrefix(http.DetectContentType(head[:n]), "image/") {
		return OutcomeOK
	}
	return OutcomeBroken
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.Timeout()
	}
	return false
}
