package wallpaper

import (
	"context"
	"time"

	"github.com/veritas-site/veritas-client/core/model"
	"github.com/veritas-site/veritas-client/core/storage"
)

// cachedConfig 会话级存储中的全局配置缓存条目。
type cachedConfig struct {
	Data      *model.WallpaperConfig `json:"data"`
	Timestamp int64                  `json:"timestamp"`
}

// cachedUserWallpaper 会话级存储中的用户壁纸缓存条目。
type cachedUserWallpaper struct {
	URL       string `json:"url"`
	Timestamp int64  `json:"timestamp"`
}

// defaultConfig 全局配置请求失败时的兜底配置。
func (s *Store) defaultConfig() *model.WallpaperConfig {
	return &model.WallpaperConfig{
		Mode:       string(ModeWebsite),
		WebsiteURL: s.defaultURL,
		DailyURL:   s.defaultURL,
		RandomURLs: nil,
	}
}

// configTTL 每日模式下配置缓存放宽到 1 小时，其余 10 分钟。
func (s *Store) configTTL() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == ModeDaily {
		return dailyConfigTTL
	}
	return defaultConfigTTL
}

// fetchGlobalConfig 获取全局壁纸配置，优先使用未过期的会话级缓存。
// 请求失败回退到兜底配置，调用方无需判空。
func (s *Store) fetchGlobalConfig(ctx context.Context) *model.WallpaperConfig {
	var cached cachedConfig
	if storage.GetJSON(s.scoped, storage.KeyGlobalWallpaperConfig, &cached) && cached.Data != nil {
		age := time.Since(time.UnixMilli(cached.Timestamp))
		if age >= 0 && age < s.configTTL() {
			s.logger.Debugf("使用缓存的全局配置")
			return cached.Data
		}
	}

	s.logger.Debugf("请求全局壁纸配置")
	cfg, err := s.api.GetGlobalWallpaper(ctx, false)
	if err != nil || cfg == nil {
		s.logger.Errorf("获取全局配置失败: %v", err)
		return s.defaultConfig()
	}
	_ = storage.SetJSON(s.scoped, storage.KeyGlobalWallpaperConfig, cachedConfig{
		Data:      cfg,
		Timestamp: time.Now().UnixMilli(),
	})
	return cfg
}

// ForceRefreshGlobalConfig 绕过缓存强制拉取全局配置并立即更新内存缓存。
func (s *Store) ForceRefreshGlobalConfig(ctx context.Context) (*model.WallpaperConfig, error) {
	_ = s.scoped.Delete(storage.KeyGlobalWallpaperConfig)
	s.logger.Debugf("强制刷新全局配置")

	cfg, err := s.api.GetGlobalWallpaper(ctx, true)
	if err != nil || cfg == nil {
		s.logger.Errorf("强制刷新全局配置失败: %v", err)
		return nil, err
	}
	_ = storage.SetJSON(s.scoped, storage.KeyGlobalWallpaperConfig, cachedConfig{
		Data:      cfg,
		Timestamp: time.Now().UnixMilli(),
	})
	s.mu.Lock()
	s.cache.website = cfg.WebsiteURL
	s.cache.daily = cfg.DailyURL
	s.cache.random = append([]string(nil), cfg.RandomURLs...)
	s.mu.Unlock()
	return cfg, nil
}

// FetchUserWallpaper 获取当前用户的自定义壁纸，带 15 分钟会话级缓存
// 与单飞保护：已有获取在进行中时直接跳过。未登录返回空。
func (s *Store) FetchUserWallpaper(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.fetchingUser {
		s.mu.Unlock()
		s.logger.Debugf("用户壁纸获取已在进行中，跳过")
		return "", nil
	}
	s.fetchingUser = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.fetchingUser = false
		s.mu.Unlock()
	}()

	if s.session == nil || !s.session.IsLoggedIn() {
		return "", nil
	}
	user := s.session.User()
	if user == nil || user.ID == "" {
		return "", nil
	}

	key := storage.UserWallpaperKey(user.ID)
	var cached cachedUserWallpaper
	if storage.GetJSON(s.scoped, key, &cached) && cached.URL != "" {
		age := time.Since(time.UnixMilli(cached.Timestamp))
		if age >= 0 && age < userWallpaperTTL {
			s.logger.Debugf("使用缓存的用户壁纸")
			s.mu.Lock()
			s.userHasCustom = true
			s.cache.userCustom = cached.URL
			s.mu.Unlock()
			return cached.URL, nil
		}
	}

	res, err := s.api.GetUserWallpaper(ctx, user.ID)
	if err != nil {
		s.logger.Errorf("获取用户壁纸失败: %v", err)
		s.mu.Lock()
		s.userHasCustom = false
		s.mu.Unlock()
		return "", err
	}
	if res != nil && res.HasCustom && res.URL != "" {
		clean := normalizeURL(res.URL)
		_ = storage.SetJSON(s.scoped, key, cachedUserWallpaper{
			URL:       clean,
			Timestamp: time.Now().UnixMilli(),
		})
		s.mu.Lock()
		s.userHasCustom = true
		s.cache.userCustom = clean
		s.mu.Unlock()
		return clean, nil
	}

	s.mu.Lock()
	s.userHasCustom = false
	s.mu.Unlock()
	return "", nil
}
