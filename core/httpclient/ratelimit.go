package httpclient

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// RateLimiter 在请求发出前按需阻塞，保护后端免受突发流量。
type RateLimiter interface {
	Wait(ctx context.Context, req *http.Request) error
}

// HostLimiter 按目标 host 区分的简化令牌桶限流。
type HostLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	qps     float64
	burst   int
}

type bucket struct {
	mu     sync.Mutex
	tokens float64
	last   time.Time
}

// NewHostLimiter 创建限流器，qps<=0 时不限流。
func NewHostLimiter(qps float64, burst int) *HostLimiter {
	if burst < 1 {
		burst = 1
	}
	return &HostLimiter{
		buckets: make(map[string]*bucket),
		qps:     qps,
		burst:   burst,
	}
}

// Wait 阻塞直到拿到令牌或上下文取消。
func (l *HostLimiter) Wait(ctx context.Context, req *http.Request) error {
	if l == nil || l.qps <= 0 {
		return nil
	}
	b := l.bucketFor(req)
	for {
		wait := l.reserve(b, time.Now())
		if wait <= 0 {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (l *HostLimiter) bucketFor(req *http.Request) *bucket {
	key := "default"
	if req != nil && req.URL != nil && req.URL.Host != "" {
		key = req.URL.Host
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.burst), last: time.Now()}
		l.buckets[key] = b
	}
	return b
}

func (l *HostLimiter) reserve(b *bucket, now time.Time) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	elapsed := now.Sub(b.last).Seconds()
	b.tokens += elapsed * l.qps
	if b.tokens > float64(l.burst) {
		b.tokens = float64(l.burst)
	}
	b.last = now
	if b.tokens >= 1 {
		b.tokens--
		return 0
	}
	need := 1 - b.tokens
	return time.Duration(need / l.qps * float64(time.Second))
}
