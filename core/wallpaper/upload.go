package wallpaper

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/veritas-site/veritas-client/core/storage"
)

// UploadUserWallpaper 上传自定义壁纸。未登录直接拒绝且不发起网络请求；
// 内容经嗅探确认为图片后才上传。成功后写入会话级缓存、切换到自定义
// 模式并立即提交为当前壁纸。
func (s *Store) UploadUserWallpaper(ctx context.Context, filename string, content []byte) (string, error) {
	if s.session == nil || !s.session.IsLoggedIn() {
		return "", ErrNotLoggedIn
	}
	if len(content) == 0 || !strings.HasPrefix(http.DetectContentType(content), "image/") {
		return "", ErrNotImage
	}
	user := s.session.User()
	if user == nil || user.ID == "" {
		return "", ErrNotLoggedIn
	}

	rawURL, err := s.api.UploadUserWallpaper(ctx, user.ID, user.Username, filename, bytes.NewReader(content))
	if err != nil {
		s.logger.Errorf("上传壁纸失败: %v", err)
		return "", err
	}
	clean := normalizeURL(rawURL)

	_ = storage.SetJSON(s.scoped, storage.UserWallpaperKey(user.ID), cachedUserWallpaper{
		URL:       clean,
		Timestamp: time.Now().UnixMilli(),
	})

	s.mu.Lock()
	s.cache.userCustom = clean
	s.userHasCustom = true
	s.current = clean
	s.mode = ModeUserCustom
	_ = s.durable.Set(storage.KeyWallpaperMode, string(ModeUserCustom))
	s.mu.Unlock()

	s.logger.Infof("壁纸上传成功")
	return clean, nil
}
