package wallpaper

import (
	"context"

	"github.com/veritas-site/veritas-client/core/storage"
)

// URLReport 单个地址的检查结果。
type URLReport struct {
	URL   string
	Valid bool
}

// RandomReport 随机壁纸列表的检查结果。
type RandomReport struct {
	Valid     bool
	ValidURLs []string
}

// Report 健康检查报告。
type Report struct {
	Website    URLReport
	Daily      URLReport
	Random     RandomReport
	UserCustom URLReport
}

// HealthCheck 诊断工具：预加载全部已知壁纸地址并给出逐项报告。
// 无效的用户自定义壁纸会被自动清除；当前展示的壁纸若被判定无效，
// 强制切回网站默认。不属于稳态路径。
func (s *Store) HealthCheck(ctx context.Context) Report {
	report := Report{Random: RandomReport{Valid: true}}
	s.logger.Infof("开始壁纸健康检查")

	cfg := s.fetchGlobalConfig(ctx)

	if cfg.WebsiteURL != "" {
		report.Website.URL = cfg.WebsiteURL
		report.Website.Valid = s.preload(ctx, cfg.WebsiteURL) == OutcomeOK
	}
	if cfg.DailyURL != "" {
		report.Daily.URL = cfg.DailyURL
		report.Daily.Valid = s.preload(ctx, cfg.DailyURL) == OutcomeOK
	}
	if len(cfg.RandomURLs) > 0 {
		for _, u := range cfg.RandomURLs {
			if s.preload(ctx, u) == OutcomeOK {
				report.Random.ValidURLs = append(report.Random.ValidURLs, u)
			}
		}
		report.Random.Valid = len(report.Random.ValidURLs) > 0
	}

	userURL, _ := s.FetchUserWallpaper(ctx)
	if userURL != "" {
		report.UserCustom.URL = userURL
		report.UserCustom.Valid = s.preload(ctx, userURL) == OutcomeOK
		if !report.UserCustom.Valid {
			s.logger.Warnf("用户壁纸无效，已自动清除")
			var userID string
			if s.session != nil {
				if user := s.session.User(); user != nil {
					userID = user.ID
				}
			}
			s.mu.Lock()
			if userID != "" {
				_ = s.scoped.Delete(storage.UserWallpaperKey(userID))
			}
			s.cache.userCustom = ""
			s.userHasCustom = false
			s.mu.Unlock()
		}
	}

	s.mu.Lock()
	invalidCurrent := s.current == "" || (s.mode == ModeUserCustom && !report.UserCustom.Valid)
	if invalidCurrent && report.Website.Valid {
		s.logger.Warnf("当前壁纸无效，自动切换到默认")
		s.current = cfg.WebsiteURL
		s.mode = ModeWebsite
		_ = s.durable.Set(storage.KeyWallpaperMode, string(ModeWebsite))
	}
	s.mu.Unlock()

	s.logger.Infof("健康检查完成")
	return report
}
