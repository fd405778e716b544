// Package session 管理登录态：用户资料、令牌、归属地，以及它们在
// 持久化存储中的镜像。浏览器端靠单线程事件循环保证的"原子"多字段
// 更新，这里统一用互斥锁保护。
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/veritas-site/veritas-client/core/api"
	coreerrors "github.com/veritas-site/veritas-client/core/errors"
	"github.com/veritas-site/veritas-client/core/httpclient"
	"github.com/veritas-site/veritas-client/core/model"
	"github.com/veritas-site/veritas-client/core/storage"
)

var (
	// ErrTokenInvalid 表示令牌缺失或解析失败。
	ErrTokenInvalid = coreerrors.New(coreerrors.ErrCodeDecode, "session: 令牌解析失败")
)

const (
	// defaultProfileTTL 用户资料内存缓存的有效期。
	defaultProfileTTL = 2 * time.Minute
	// defaultRefreshDelay 恢复登录态后后台静默刷新的延迟，
	// 避免阻塞首屏。
	defaultRefreshDelay = time.Second
)

// API 是会话所需的后端能力子集，便于测试注入。
type API interface {
	GetProfile(ctx context.Context, username string) (*model.Profile, error)
	GetLocation(ctx context.Context) (*api.LocationResult, error)
}

type profileCache struct {
	data *model.Profile
	at   time.Time
}

// Store 登录态管理器。
type Store struct {
	mu      sync.Mutex
	api     API
	durable storage.Durable
	logger  httpclient.Logger

	user     *model.Profile
	token    string
	location *model.Location

	cache      profileCache
	profileTTL time.Duration

	restoring       bool // checkLoginStatus 的单飞标记
	loadingLocation bool

	refreshDelay    time.Duration
	locationOnLogin bool

	watchers []func(loggedIn bool)
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

// WithProfileTTL 自定义用户资料缓存有效期。
func WithProfileTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.profileTTL = ttl
		}
	}
}

// WithRefreshDelay 自定义恢复登录态后的静默刷新延迟，主要用于测试。
func WithRefreshDelay(d time.Duration) Option {
	return func(s *Store) {
		if d >= 0 {
			s.refreshDelay = d
		}
	}
}

// WithLocationOnLogin 控制登录成功后是否自动拉取归属地。
func WithLocationOnLogin(enabled bool) Option {
	return func(s *Store) {
		s.locationOnLogin = enabled
	}
}

// NewStore 创建登录态管理器。
func NewStore(backend API, durable storage.Durable, opts ...Option) *Store {
	s := &Store{
		api:             backend,
		durable:         durable,
		logger:          httpclient.NopLogger{},
		profileTTL:      defaultProfileTTL,
		refreshDelay:    defaultRefreshDelay,
		locationOnLogin: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// IsLoggedIn 当且仅当用户资料与令牌同时存在。
func (s *Store) IsLoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loggedInLocked()
}

func (s *Store) loggedInLocked() bool {
	return s.user != nil && s.token != ""
}

// User 返回当前用户资料的拷贝。
func (s *Store) User() *model.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user.Clone()
}

// Token 返回当前令牌，空串表示未登录。配合 httpclient.WithBearerToken 使用。
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// CurrentLocation 返回当前归属地的拷贝。
func (s *Store) CurrentLocation() *model.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.location.Clone()
}

// OnLoginChange 注册登录态变更回调，回调在持锁外执行。
func (s *Store) OnLoginChange(fn func(loggedIn bool)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.watchers = append(s.watchers, fn)
	s.mu.Unlock()
}

func (s *Store) fireLoginChange(was, now bool) {
	if was == now {
		return
	}
	s.mu.Lock()
	watchers := append(make([]func(bool), 0, len(s.watchers)), s.watchers...)
	s.mu.Unlock()
	for _, fn := range watchers {
		fn(now)
	}
}

// SetUser 设置用户资料并同步持久化（传 nil 清除）。
func (s *Store) SetUser(p *model.Profile) {
	s.mu.Lock()
	was := s.loggedInLocked()
	s.setUserLocked(p)
	now := s.loggedInLocked()
	s.mu.Unlock()
	s.fireLoginChange(was, now)
}

func (s *Store) setUserLocked(p *model.Profile) {
	s.user = p.Clone()
	if p != nil {
		_ = storage.SetJSON(s.durable, storage.KeyUser, p)
		_ = s.durable.Set(storage.KeyUsername, p.Username)
	} else {
		_ = s.durable.Delete(storage.KeyUser)
		_ = s.durable.Delete(storage.KeyUsername)
	}
}

// SetToken 更新令牌并持久化。
func (s *Store) SetToken(token string) {
	s.mu.Lock()
	was := s.loggedInLocked()
	s.token = token
	_ = s.durable.Set(storage.KeyToken, token)
	now := s.loggedInLocked()
	s.mu.Unlock()
	s.fireLoginChange(was, now)
}

// Login 写入登录态并持久化，随后尽力而为地拉取一次归属地，
// 归属地失败不回滚登录。
func (s *Store) Login(profile *model.Profile, token string) {
	s.mu.Lock()
	was := s.loggedInLocked()
	s.setUserLocked(profile)
	s.token = token
	_ = s.durable.Set(storage.KeyToken, token)
	_ = s.durable.Set(storage.KeyIsLoggedIn, "true")
	now := s.loggedInLocked()
	s.mu.Unlock()

	s.logger.Infof("用户登录成功: %s", profile.Username)
	s.fireLoginChange(was, now)

	if s.locationOnLogin {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_, _ = s.GetLocation(ctx)
		}()
	}
}

// UpdateUser 合并更新用户资料的非空字段，未登录时返回 false。
func (s *Store) UpdateUser(patch model.Profile) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return false
	}
	merged := *s.user
	if patch.Username != "" {
		merged.Username = patch.Username
	}
	if patch.Nickname != "" {
		merged.Nickname = patch.Nickname
	}
	if patch.Email != "" {
		merged.Email = patch.Email
	}
	if patch.Avatar != "" {
		merged.Avatar = patch.Avatar
	}
	if patch.Role != "" {
		merged.Role = patch.Role
	}
	if patch.Bio != "" {
		merged.Bio = patch.Bio
	}
	s.user = &merged
	_ = storage.SetJSON(s.durable, storage.KeyUser, &merged)
	_ = s.durable.Set(storage.KeyUsername, merged.Username)
	return true
}

// Logout 幂等清空登录态：内存字段、资料缓存、归属地以及全部相关持久化键。
// 显式登出、401 处理与恢复失败都会调用这里，重复调用安全。
func (s *Store) Logout() {
	s.mu.Lock()
	was := s.loggedInLocked()
	s.user = nil
	s.token = ""
	s.location = nil
	s.cache = profileCache{}
	s.restoring = false
	_ = s.durable.Delete(storage.KeyToken)
	_ = s.durable.Delete(storage.KeyUser)
	_ = s.durable.Delete(storage.KeyUsername)
	_ = s.durable.Delete(storage.KeyIsLoggedIn)
	_ = s.durable.Delete(storage.KeyUserLocation)
	s.mu.Unlock()

	s.logger.Infof("用户已登出")
	s.fireLoginChange(was, false)
}

// RefreshUserInfo 拉取最新用户资料。缓存未过期时直接返回缓存值，
// 不发起网络请求；遇到 401 强制登出。
func (s *Store) RefreshUserInfo(ctx context.Context) (*model.Profile, error) {
	s.mu.Lock()
	if s.user == nil || s.user.Username == "" {
		s.mu.Unlock()
		return nil, nil
	}
	username := s.user.Username
	if s.cache.data != nil && time.Since(s.cache.at) < s.profileTTL {
		s.user = s.cache.data.Clone()
		cached := s.user.Clone()
		s.mu.Unlock()
		s.logger.Debugf("使用缓存的用户信息")
		return cached, nil
	}
	s.mu.Unlock()

	profile, err := s.api.GetProfile(ctx, username)
	if err != nil {
		if isUnauthorized(err) {
			s.Logout()
		}
		s.logger.Errorf("刷新用户信息失败: %v", err)
		return nil, err
	}

	s.mu.Lock()
	s.user = profile.Clone()
	s.cache = profileCache{data: profile.Clone(), at: time.Now()}
	_ = storage.SetJSON(s.durable, storage.KeyUser, profile)
	_ = s.durable.Set(storage.KeyUsername, profile.Username)
	s.mu.Unlock()
	return profile.Clone(), nil
}

// CheckLoginStatus 恢复登录态：存储中同时有令牌、用户与登录标记时，
// 先同步恢复缓存资料避免阻塞首屏，再延迟触发一次后台静默刷新；
// 并发调用由单飞标记保证只安排一次刷新。只有令牌时走令牌恢复。
func (s *Store) CheckLoginStatus(ctx context.Context) error {
	s.mu.Lock()
	if s.restoring {
		s.mu.Unlock()
		return nil
	}
	token, _ := s.durable.Get(storage.KeyToken)
	flag, _ := s.durable.Get(storage.KeyIsLoggedIn)
	var stored model.Profile
	hasUser := storage.GetJSON(s.durable, storage.KeyUser, &stored)

	if flag == "true" && token != "" && hasUser {
		s.restoring = true
		was := s.loggedInLocked()
		s.user = &stored
		s.token = token
		var loc model.Location
		if storage.GetJSON(s.durable, storage.KeyUserLocation, &loc) {
			s.location = &loc
		}
		now := s.loggedInLocked()
		s.mu.Unlock()

		s.fireLoginChange(was, now)
		time.AfterFunc(s.refreshDelay, func() {
			refreshCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_, _ = s.RefreshUserInfo(refreshCtx)
			s.mu.Lock()
			s.restoring = false
			s.mu.Unlock()
		})
		return nil
	}
	s.mu.Unlock()

	if token != "" {
		return s.RestoreUserFromToken(ctx, token)
	}
	return nil
}

func isUnauthorized(err error) bool {
	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status == 401
	}
	return false
}
