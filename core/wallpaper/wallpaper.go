// Package wallpaper 管理背景图状态：四种模式的候选地址解析、
// 多级缓存（会话级配置缓存、内存图片预加载缓存）、两阶段切换
// 与失效兜底。
package wallpaper

import (
	"context"
	"io"
	"math/rand"
	"strings"
	"sync"
	"time"

	coreerrors "github.com/veritas-site/veritas-client/core/errors"
	"github.com/veritas-site/veritas-client/core/httpclient"
	"github.com/veritas-site/veritas-client/core/model"
	"github.com/veritas-site/veritas-client/core/storage"
)

// Mode 壁纸模式。
type Mode string

const (
	ModeWebsite    Mode = "website"
	ModeDaily      Mode = "daily"
	ModeRandom     Mode = "random"
	ModeUserCustom Mode = "userCustom"
)

// ParseMode 解析模式字符串，未知值回退到网站默认。
func ParseMode(s string) Mode {
	switch Mode(s) {
	case ModeDaily, ModeRandom, ModeUserCustom:
		return Mode(s)
	default:
		return ModeWebsite
	}
}

// DefaultWallpaperURL 所有兜底都失败后的最终默认图，保证可见状态永不为空。
const DefaultWallpaperURL = "https://images.unsplash.com/photo-1493246507139-91e8fad9978e"

const (
	// dailyConfigTTL 每日模式下全局配置的缓存时长（每日壁纸一天最多换一次）。
	dailyConfigTTL = time.Hour
	// defaultConfigTTL 其余模式下全局配置的缓存时长。
	defaultConfigTTL = 10 * time.Minute
	// userWallpaperTTL 用户自定义壁纸缓存时长。
	userWallpaperTTL = 15 * time.Minute
)

var (
	// ErrNotLoggedIn 未登录时上传自定义壁纸返回。
	ErrNotLoggedIn = coreerrors.New(coreerrors.ErrCodeUnauthorized, "请先登录才能上传自定义壁纸")
	// ErrNotImage 上传内容不是图片时返回。
	ErrNotImage = coreerrors.New(coreerrors.ErrCodeInvalidArgument, "请选择有效的图片文件")
)

// API 是壁纸所需的后端能力子集。
type API interface {
	GetGlobalWallpaper(ctx context.Context, force bool) (*model.WallpaperConfig, error)
	GetUserWallpaper(ctx context.Context, userID string) (*model.UserWallpaper, error)
	UploadUserWallpaper(ctx context.Context, userID, username, filename string, image io.Reader) (string, error)
}

// SessionState 是壁纸对登录态的只读依赖。
type SessionState interface {
	IsLoggedIn() bool
	User() *model.Profile
	OnLoginChange(fn func(loggedIn bool))
}

type urlCache struct {
	website    string
	daily      string
	random     []string
	userCustom string
}

// Store 壁纸状态管理器。
type Store struct {
	mu        sync.Mutex
	api       API
	session   SessionState
	durable   storage.Durable
	scoped    storage.Scoped
	preloader Preloader
	logger    httpclient.Logger

	current       string
	mode          Mode
	userHasCustom bool
	loading       bool
	initialized   bool
	fetchingUser  bool // 用户壁纸获取的单飞标记

	cache  urlCache
	images map[string]struct{} // 预加载成功的地址；失败不记忆，下次重试

	defaultURL     string
	invalidMarkers []string
	randFn         func(n int) int
}

// Option 配置 Store。
type Option func(*Store)

// WithLogger 注入日志。
func WithLogger(logger httpclient.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithPreloader 注入图片预加载实现，便于测试。
func WithPreloader(p Preloader) Option {
	return func(s *Store) {
		if p != nil {
			s.preloader = p
		}
	}
}

// WithDefaultURL 自定义最终兜底图地址。
func WithDefaultURL(u string) Option {
	return func(s *Store) {
		if u != "" {
			s.defaultURL = u
		}
	}
}

// WithInvalidMarkers 配置已知无效资源的特征片段。命中片段的加载失败
// 按失效用户壁纸处理。上传/查询接口给出明确有效性信号前的过渡手段。
func WithInvalidMarkers(markers ...string) Option {
	return func(s *Store) {
		s.invalidMarkers = append(s.invalidMarkers, markers...)
	}
}

// WithRandFn 注入随机数生成，便于测试。
func WithRandFn(fn func(n int) int) Option {
	return func(s *Store) {
		if fn != nil {
			s.randFn = fn
		}
	}
}

// NewStore 创建壁纸管理器，并在提供登录态时订阅其变更。
func NewStore(backend API, sess SessionState, durable storage.Durable, scoped storage.Scoped, opts ...Option) *Store {
	s := &Store{
		api:        backend,
		session:    sess,
		durable:    durable,
		scoped:     scoped,
		logger:     httpclient.NopLogger{},
		mode:       ModeWebsite,
		images:     make(map[string]struct{}),
		defaultURL: DefaultWallpaperURL,
		randFn:     rand.Intn,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.preloader == nil {
		s.preloader = NewHTTPPreloader(nil, nil)
	}
	if sess != nil {
		sess.OnLoginChange(s.onLoginChange)
	}
	return s
}

// Current 返回当前展示的壁纸地址。
func (s *Store) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// CurrentMode 返回当前模式。
func (s *Store) CurrentMode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// UserHasCustom 当前用户是否有自定义壁纸。
func (s *Store) UserHasCustom() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userHasCustom
}

// IsInitialized 壁纸系统是否已完成初始化。
func (s *Store) IsInitialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// IsLoading 是否处于初始化加载中。
func (s *Store) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// normalizeURL 统一地址形态：相对路径（用户上传图片）补前导斜杠。
// 地址通常已编码，二次编码会导致加载失败，保持原样。
func normalizeURL(u string) string {
	if u == "" {
		return ""
	}
	if !strings.HasPrefix(u, "http") && !strings.HasPrefix(u, "/") {
		return "/" + u
	}
	return u
}

// ResolveURL 按模式解析候选地址：
// daily 依次回退 缓存→配置 dailyUrl→websiteUrl；random 每次重新抽取，
// 列表为空回退 websiteUrl；userCustom 只用已缓存地址，没有则为空。
func (s *Store) ResolveURL(mode Mode, cfg *model.WallpaperConfig) string {
	if cfg == nil {
		cfg = &model.WallpaperConfig{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch mode {
	case ModeUserCustom:
		return s.cache.userCustom
	case ModeDaily:
		if s.cache.daily != "" {
			return s.cache.daily
		}
		if cfg.DailyURL != "" {
			return cfg.DailyURL
		}
		return cfg.WebsiteURL
	case ModeRandom:
		list := cfg.RandomURLs
		if len(list) == 0 {
			list = s.cache.random
		}
		if len(list) > 0 {
			return list[s.randFn(len(list))]
		}
		return cfg.WebsiteURL
	default:
		return cfg.WebsiteURL
	}
}

// switchWallpaper 两阶段切换：先解析候选地址，再预加载后提交。
// 超时视为存疑仍乐观提交；结构性失效触发用户壁纸缓存清除并
// 回退到网站默认图。
func (s *Store) switchWallpaper(ctx context.Context, mode Mode, cfg *model.WallpaperConfig) string {
	url := s.ResolveURL(mode, cfg)
	if url == "" {
		s.logger.Errorf("无法获取壁纸地址 [%s]", mode)
		return ""
	}
	s.logger.Debugf("开始加载壁纸 [%s]: %s", mode, url)
	outcome := s.preload(ctx, url)
	switch outcome {
	case OutcomeOK:
		s.logger.Debugf("壁纸切换成功 [%s]", mode)
	case OutcomeTimeout:
		s.logger.Warnf("壁纸预加载超时，仍尝试显示 [%s]", mode)
	case OutcomeBroken:
		if s.handleBroken(url) {
			// 回退地址同样走预加载，保持两阶段语义；网站默认已是
			// 最后防线，结果不再改变提交。
			url = cfg.WebsiteURL
			if url != "" {
				s.preload(ctx, url)
			}
		}
	}
	s.mu.Lock()
	s.current = url
	s.mu.Unlock()
	return url
}

// preload 预加载地址。只有加载成功才写入内存缓存，失败不记忆。
func (s *Store) preload(ctx context.Context, url string) Outcome {
	normalized := normalizeURL(url)
	s.mu.Lock()
	if _, ok := s.images[normalized]; ok {
		s.mu.Unlock()
		return OutcomeOK
	}
	s.mu.Unlock()

	outcome := s.preloader.Preload(ctx, normalized)
	if outcome == OutcomeOK {
		s.mu.Lock()
		s.images[normalized] = struct{}{}
		s.mu.Unlock()
		s.logger.Debugf("图片预加载成功: %s", normalized)
	}
	return outcome
}

// handleBroken 处理结构性加载失败：失败地址是当前用户壁纸或命中
// 无效特征时，清除用户壁纸缓存并在必要时把模式切回网站默认。
// 返回是否发生了清除。
func (s *Store) handleBroken(url string) bool {
	normalized := normalizeURL(url)
	var userID string
	if s.session != nil {
		if user := s.session.User(); user != nil {
			userID = user.ID
		}
	}

	s.mu.Lock()
	isUserCustom := normalized != "" && normalized == normalizeURL(s.cache.userCustom)
	if !isUserCustom && !s.matchesMarkerLocked(normalized) {
		s.mu.Unlock()
		return false
	}
	if userID != "" {
		_ = s.scoped.Delete(storage.UserWallpaperKey(userID))
	}
	s.cache.userCustom = ""
	s.userHasCustom = false
	if s.mode == ModeUserCustom {
		s.mode = ModeWebsite
		_ = s.durable.Set(storage.KeyWallpaperMode, string(ModeWebsite))
	}
	s.mu.Unlock()
	s.logger.Warnf("检测到无效的用户壁纸，自动清除并切换到默认: %s", normalized)
	return true
}

func (s *Store) matchesMarkerLocked(url string) bool {
	for _, marker := range s.invalidMarkers {
		if marker != "" && strings.Contains(url, marker) {
			return true
		}
	}
	return false
}

// Initialize 初始化壁纸系统：加载全局配置与用户壁纸、确定生效模式
//（本地偏好 > 后端默认 > 网站默认）并完成两阶段切换。重复调用被
// 初始化标记拦截，除非强制刷新。无论中途失败与否，结束后当前壁纸
// 一定非空。
func (s *Store) Initialize(ctx context.Context, forceRefresh bool) error {
	s.mu.Lock()
	if s.initialized && !forceRefresh {
		s.mu.Unlock()
		s.logger.Infof("壁纸已初始化，跳过重复请求")
		return nil
	}
	s.loading = true
	s.mu.Unlock()
	s.logger.Infof("初始化壁纸系统 forceRefresh=%v", forceRefresh)

	var cfg *model.WallpaperConfig
	var err error
	if forceRefresh {
		cfg, err = s.ForceRefreshGlobalConfig(ctx)
	} else {
		cfg = s.fetchGlobalConfig(ctx)
	}
	if cfg == nil {
		s.mu.Lock()
		s.current = s.defaultURL
		s.loading = false
		s.mu.Unlock()
		s.logger.Errorf("壁纸初始化失败，使用默认壁纸: %v", err)
		return err
	}

	userURL, _ := s.FetchUserWallpaper(ctx)

	s.mu.Lock()
	s.cache.website = cfg.WebsiteURL
	s.cache.daily = cfg.DailyURL
	s.cache.random = append([]string(nil), cfg.RandomURLs...)
	if userURL != "" {
		s.cache.userCustom = userURL
	}
	saved, _ := s.durable.Get(storage.KeyWallpaperMode)
	effective := ModeWebsite
	switch {
	case saved != "":
		effective = ParseMode(saved)
	case cfg.Mode != "":
		effective = ParseMode(cfg.Mode)
	}
	// 模式必须在切换前落位：切换过程里发现壁纸失效时会把模式改回
	// 网站默认，之后不能再被这里覆盖。
	s.mode = effective
	s.mu.Unlock()
	s.logger.Debugf("壁纸模式: %s", effective)

	s.switchWallpaper(ctx, effective, cfg)

	s.mu.Lock()
	if s.current == "" {
		if cfg.WebsiteURL != "" {
			s.current = cfg.WebsiteURL
		} else {
			s.current = s.defaultURL
		}
	}
	s.initialized = true
	s.loading = false
	current := s.current
	s.mu.Unlock()
	s.logger.Infof("壁纸初始化完成: %s", current)
	return nil
}

// ChangeWallpaper 切换模式并完成两阶段切换。模式未变化时为空操作，
// random 模式例外（每次重新抽取）。
func (s *Store) ChangeWallpaper(ctx context.Context, mode Mode, forceRefresh bool) error {
	s.mu.Lock()
	if mode == s.mode && mode != ModeRandom && !forceRefresh {
		s.mu.Unlock()
		return nil
	}
	s.mode = mode
	_ = s.durable.Set(storage.KeyWallpaperMode, string(mode))
	s.mu.Unlock()

	var cfg *model.WallpaperConfig
	var err error
	if forceRefresh {
		cfg, err = s.ForceRefreshGlobalConfig(ctx)
		if cfg == nil {
			s.logger.Errorf("壁纸切换失败: %v", err)
			return err
		}
	} else {
		cfg = s.fetchGlobalConfig(ctx)
	}
	s.switchWallpaper(ctx, mode, cfg)
	s.logger.Debugf("壁纸切换完成: %s", mode)
	return nil
}

// RefreshWallpaper 清空缓存后强制重新初始化，返回刷新后的壁纸地址。
func (s *Store) RefreshWallpaper(ctx context.Context) (string, error) {
	s.logger.Infof("手动刷新壁纸")
	s.ClearCache()
	err := s.Initialize(ctx, true)
	return s.Current(), err
}

// ResetInitialization 重置初始化标记。
func (s *Store) ResetInitialization() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialized = false
}

// ClearCache 清空内存地址缓存、图片预加载缓存与全部会话级壁纸缓存键，
// 并重置初始化标记。
func (s *Store) ClearCache() {
	s.mu.Lock()
	s.cache = urlCache{}
	s.images = make(map[string]struct{})
	for _, key := range s.scoped.Keys() {
		if key == storage.KeyGlobalWallpaperConfig || strings.HasPrefix(key, storage.UserWallpaperKeyPrefix) {
			_ = s.scoped.Delete(key)
		}
	}
	s.initialized = false
	s.mu.Unlock()
}

// onLoginChange 响应登录态变化：登录后补拉用户壁纸；登出时清空
// 用户壁纸缓存，处于自定义模式时切回网站默认并重新初始化。
func (s *Store) onLoginChange(loggedIn bool) {
	if loggedIn {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			url, _ := s.FetchUserWallpaper(ctx)
			if url == "" {
				return
			}
			s.mu.Lock()
			if s.mode == ModeUserCustom {
				s.current = url
			}
			s.mu.Unlock()
		}()
		return
	}

	s.mu.Lock()
	s.userHasCustom = false
	s.cache.userCustom = ""
	wasCustom := s.mode == ModeUserCustom
	if wasCustom {
		s.mode = ModeWebsite
		_ = s.durable.Set(storage.KeyWallpaperMode, string(ModeWebsite))
		s.initialized = false
	}
	s.mu.Unlock()

	if wasCustom {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = s.Initialize(ctx, false)
		}()
	}
}
