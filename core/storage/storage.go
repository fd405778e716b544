package storage

import (
	"encoding/json"

	coreerrors "github.com/veritas-site/veritas-client/core/errors"
)

// Durable 抽象跨重启持久化的键值存储（浏览器 localStorage 的等价物）。
type Durable interface {
	// Get 读取键值，不存在时 ok 为 false。
	Get(key string) (value string, ok bool)
	// Set 写入键值。
	Set(key, value string) error
	// Delete 删除键，键不存在不报错。
	Delete(key string) error
	// Clear 清空全部键值。
	Clear() error
}

// Scoped 抽象仅进程生命周期内有效的键值存储（sessionStorage 的等价物），
// 额外提供 Keys 以支持按前缀批量清理缓存键。
type Scoped interface {
	Durable
	Keys() []string
}

// ErrStoreClosed 在存储已关闭后继续读写时返回。
var ErrStoreClosed = coreerrors.New(coreerrors.ErrCodeInvalidState, "storage: 存储已关闭")

// GetJSON 读取并反序列化 JSON 键值。解析失败视为缓存损坏：
// 删除该键并返回 false，调用方回退到默认状态。
func GetJSON(s Durable, key string, out any) bool {
	raw, ok := s.Get(key)
	if !ok || raw == "" {
		return false
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		_ = s.Delete(key)
		return false
	}
	return true
}

// SetJSON 序列化并写入 JSON 键值。
func SetJSON(s Durable, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return coreerrors.Wrap(coreerrors.ErrCodeInvalidArgument, "storage: 序列化失败", err)
	}
	return s.Set(key, string(raw))
}
