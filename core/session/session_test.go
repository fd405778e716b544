package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veritas-site/veritas-client/core/api"
	"github.com/veritas-site/veritas-client/core/httpclient"
	"github.com/veritas-site/veritas-client/core/model"
	"github.com/veritas-site/veritas-client/core/storage"
)

type fakeAPI struct {
	mu            sync.Mutex
	profile       *model.Profile
	profileErr    error
	profileCalls  int
	location      *api.LocationResult
	locationErr   error
	locationCalls int
	locationGate  chan struct{} // 非空时阻塞归属地请求，模拟在途状态
}

func (f *fakeAPI) GetProfile(ctx context.Context, username string) (*model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profileCalls++
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	if f.profile != nil {
		p := *f.profile
		return &p, nil
	}
	return &model.Profile{ID: "1", Username: username}, nil
}

func (f *fakeAPI) GetLocation(ctx context.Context) (*api.LocationResult, error) {
	f.mu.Lock()
	f.locationCalls++
	gate := f.locationGate
	err := f.locationErr
	loc := f.location
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	if loc != nil {
		l := *loc
		return &l, nil
	}
	return &api.LocationResult{Country: "中国", RegionName: "浙江", City: "杭州"}, nil
}

func (f *fakeAPI) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.profileCalls, f.locationCalls
}

// makeToken 构造未签名校验场景下可解析的 JWT。
func makeToken(t *testing.T, claims map[string]any) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	payload, err := json.Marshal(claims)
	require.NoError(t, err)
	return header + "." + base64.RawURLEncoding.EncodeToString(payload) + ".sig"
}

func newTestStore(t *testing.T, backend *fakeAPI, opts ...Option) (*Store, *storage.MemoryStore) {
	t.Helper()
	durable := storage.NewMemoryStore()
	base := []Option{WithLocationOnLogin(false)}
	return NewStore(backend, durable, append(base, opts...)...), durable
}

func TestLoginLogoutLifecycle(t *testing.T) {
	backend := &fakeAPI{}
	s, durable := newTestStore(t, backend)

	var events []bool
	s.OnLoginChange(func(loggedIn bool) { events = append(events, loggedIn) })

	assert.False(t, s.IsLoggedIn(), "初始状态不应是已登录")

	s.Login(&model.Profile{ID: "1", Username: "alice"}, "tok-1")
	require.True(t, s.IsLoggedIn())
	assert.Equal(t, "alice", s.User().Username)
	assert.Equal(t, "tok-1", s.Token())

	tok, _ := durable.Get(storage.KeyToken)
	assert.Equal(t, "tok-1", tok, "令牌应已持久化")
	flag, _ := durable.Get(storage.KeyIsLoggedIn)
	assert.Equal(t, "true", flag)

	// 重复登录不触发变更事件。
	s.Login(&model.Profile{ID: "1", Username: "alice"}, "tok-2")
	assert.Equal(t, []bool{true}, events)

	s.Logout()
	assert.False(t, s.IsLoggedIn())
	assert.Nil(t, s.User())
	for _, key := range []string{storage.KeyToken, storage.KeyUser, storage.KeyUsername, storage.KeyIsLoggedIn, storage.KeyUserLocation} {
		_, ok := durable.Get(key)
		assert.Falsef(t, ok, "登出后 %s 应被清除", key)
	}
	assert.Equal(t, []bool{true, false}, events)

	// 幂等：重复登出不报错也不再触发事件。
	s.Logout()
	assert.Equal(t, []bool{true, false}, events)
}

func TestLoginChangeWatcherSnapshot(t *testing.T) {
	backend := &fakeAPI{}
	s, _ := newTestStore(t, backend)

	var first, second, late []bool
	s.OnLoginChange(func(loggedIn bool) {
		first = append(first, loggedIn)
		// 回调持锁外执行，期间注册新监听不应死锁。
		s.OnLoginChange(func(loggedIn bool) { late = append(late, loggedIn) })
	})
	s.OnLoginChange(func(loggedIn bool) { second = append(second, loggedIn) })

	s.Login(&model.Profile{ID: "1", Username: "alice"}, "tok")
	assert.Equal(t, []bool{true}, first)
	assert.Equal(t, []bool{true}, second)
	assert.Empty(t, late, "本次变更只通知快照内的监听者")

	s.Logout()
	assert.Equal(t, []bool{true, false}, first)
	assert.Equal(t, []bool{true, false}, second)
	assert.Equal(t, []bool{false}, late)
}

func TestUpdateUserMergesNonEmptyFields(t *testing.T) {
	backend := &fakeAPI{}
	s, _ := newTestStore(t, backend)

	assert.False(t, s.UpdateUser(model.Profile{Nickname: "新昵称"}), "未登录时应返回 false")

	s.Login(&model.Profile{ID: "1", Username: "alice", Nickname: "旧昵称", Email: "a@x.com"}, "tok")
	require.True(t, s.UpdateUser(model.Profile{Nickname: "新昵称"}))

	u := s.User()
	assert.Equal(t, "新昵称", u.Nickname)
	assert.Equal(t, "a@x.com", u.Email, "未提供的字段应保留原值")
}

func TestRefreshUserInfoUsesCache(t *testing.T) {
	backend := &fakeAPI{profile: &model.Profile{ID: "1", Username: "alice", Nickname: "Alice"}}
	s, _ := newTestStore(t, backend, WithProfileTTL(time.Hour))
	s.Login(&model.Profile{ID: "1", Username: "alice"}, "tok")

	ctx := context.Background()
	first, err := s.RefreshUserInfo(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := s.RefreshUserInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Alice", second.Nickname)

	profileCalls, _ := backend.calls()
	assert.Equal(t, 1, profileCalls, "缓存有效期内只应发起一次请求")
}

func TestRefreshUserInfoAnonymousIsNoop(t *testing.T) {
	backend := &fakeAPI{}
	s, _ := newTestStore(t, backend)
	profile, err := s.RefreshUserInfo(context.Background())
	require.NoError(t, err)
	assert.Nil(t, profile)
	profileCalls, _ := backend.calls()
	assert.Zero(t, profileCalls, "未登录时不应发起请求")
}

func TestRefreshUserInfoUnauthorizedForcesLogout(t *testing.T) {
	backend := &fakeAPI{profileErr: &httpclient.StatusError{Status: 401, Message: "登录已过期，请重新登录"}}
	s, durable := newTestStore(t, backend)
	s.Login(&model.Profile{ID: "1", Username: "alice"}, "tok")

	_, err := s.RefreshUserInfo(context.Background())
	require.Error(t, err)
	assert.False(t, s.IsLoggedIn(), "401 后应强制登出")
	_, ok := durable.Get(storage.KeyToken)
	assert.False(t, ok)
}

func TestCheckLoginStatusRestoresFromStorage(t *testing.T) {
	backend := &fakeAPI{profile: &model.Profile{ID: "1", Username: "alice", Nickname: "刷新后"}}
	s, durable := newTestStore(t, backend, WithRefreshDelay(10*time.Millisecond))

	require.NoError(t, storage.SetJSON(durable, storage.KeyUser, &model.Profile{ID: "1", Username: "alice", Nickname: "缓存中"}))
	require.NoError(t, durable.Set(storage.KeyToken, "tok"))
	require.NoError(t, durable.Set(storage.KeyIsLoggedIn, "true"))

	require.NoError(t, s.CheckLoginStatus(context.Background()))

	// 恢复是同步的，不等网络。
	require.True(t, s.IsLoggedIn())
	assert.Equal(t, "缓存中", s.User().Nickname)

	// 延迟后的后台静默刷新覆盖缓存值。
	require.Eventually(t, func() bool {
		return s.User() != nil && s.User().Nickname == "刷新后"
	}, time.Second, 10*time.Millisecond, "后台刷新未生效")
	profileCalls, _ := backend.calls()
	assert.Equal(t, 1, profileCalls)
}

func TestCheckLoginStatusSingleFlight(t *testing.T) {
	backend := &fakeAPI{}
	s, durable := newTestStore(t, backend, WithRefreshDelay(20*time.Millisecond))

	require.NoError(t, storage.SetJSON(durable, storage.KeyUser, &model.Profile{ID: "1", Username: "alice"}))
	require.NoError(t, durable.Set(storage.KeyToken, "tok"))
	require.NoError(t, durable.Set(storage.KeyIsLoggedIn, "true"))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.CheckLoginStatus(context.Background())
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		profileCalls, _ := backend.calls()
		return profileCalls == 1
	}, time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	profileCalls, _ := backend.calls()
	assert.Equal(t, 1, profileCalls, "并发恢复只应触发一次后台刷新")
}

func TestCheckLoginStatusTokenOnly(t *testing.T) {
	backend := &fakeAPI{profile: &model.Profile{ID: "2", Username: "bob"}}
	s, durable := newTestStore(t, backend)
	require.NoError(t, durable.Set(storage.KeyToken, makeToken(t, map[string]any{"username": "bob"})))

	require.NoError(t, s.CheckLoginStatus(context.Background()))
	require.True(t, s.IsLoggedIn())
	assert.Equal(t, "bob", s.User().Username)
	flag, _ := durable.Get(storage.KeyIsLoggedIn)
	assert.Equal(t, "true", flag, "令牌恢复成功后应补全登录标记")
}

func TestRestoreUserFromTokenFailures(t *testing.T) {
	t.Run("令牌无法解析", func(t *testing.T) {
		backend := &fakeAPI{}
		s, durable := newTestStore(t, backend)
		require.NoError(t, durable.Set(storage.KeyToken, "不是一个令牌"))

		err := s.RestoreUserFromToken(context.Background(), "不是一个令牌")
		require.Error(t, err)
		assert.False(t, s.IsLoggedIn())
		_, ok := durable.Get(storage.KeyToken)
		assert.False(t, ok, "恢复失败应清空残留令牌")
	})

	t.Run("负载缺少用户名", func(t *testing.T) {
		backend := &fakeAPI{}
		s, _ := newTestStore(t, backend)
		err := s.RestoreUserFromToken(context.Background(), makeToken(t, map[string]any{"sub": "1"}))
		require.ErrorIs(t, err, ErrTokenInvalid)
		assert.False(t, s.IsLoggedIn())
	})

	t.Run("拉取资料失败", func(t *testing.T) {
		backend := &fakeAPI{profileErr: errors.New("boom")}
		s, _ := newTestStore(t, backend)
		err := s.RestoreUserFromToken(context.Background(), makeToken(t, map[string]any{"username": "bob"}))
		require.Error(t, err)
		assert.False(t, s.IsLoggedIn(), "不允许出现半登录状态")
	})
}

func TestGetLocationFallback(t *testing.T) {
	backend := &fakeAPI{locationErr: errors.New("服务不可用")}
	s, _ := newTestStore(t, backend)

	loc, err := s.GetLocation(context.Background())
	require.NoError(t, err, "归属地失败走兜底，不向上抛错")
	require.NotNil(t, loc)
	assert.Equal(t, "位置获取失败", loc.Text)
	assert.Equal(t, "中国", loc.Country)
}

func TestGetLocationWhileLoadingNeverNil(t *testing.T) {
	gate := make(chan struct{})
	backend := &fakeAPI{locationGate: gate}
	s, _ := newTestStore(t, backend)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.GetLocation(context.Background())
	}()

	require.Eventually(t, func() bool {
		_, locationCalls := backend.calls()
		return locationCalls == 1
	}, time.Second, 5*time.Millisecond, "首个请求未进入在途状态")

	loc, err := s.GetLocation(context.Background())
	require.NoError(t, err)
	require.NotNil(t, loc, "请求在途期间也不应返回空归属地")
	assert.Equal(t, "位置获取失败", loc.Text)

	close(gate)
	<-done
}

func TestGetLocationCacheHit(t *testing.T) {
	backend := &fakeAPI{location: &api.LocationResult{Country: "中国", RegionName: "广东", City: "深圳"}}
	s, durable := newTestStore(t, backend)

	cached := &model.Location{Country: "中国", Region: "浙江", City: "杭州", Text: "浙江 · 杭州"}
	require.NoError(t, storage.SetJSON(durable, storage.KeyUserLocation, cached))

	loc, err := s.GetLocation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "浙江 · 杭州", loc.Text, "缓存命中应立即返回缓存值")

	// 后台静默校准最终会覆盖缓存。
	require.Eventually(t, func() bool {
		current := s.CurrentLocation()
		return current != nil && current.City == "深圳"
	}, time.Second, 10*time.Millisecond)
}

func TestFormatLocationText(t *testing.T) {
	cases := []struct {
		name string
		in   *api.LocationResult
		want string
	}{
		{"国内直辖市去重", &api.LocationResult{Country: "中国", RegionName: "北京", City: "北京"}, "中国 · 北京"},
		{"国内省市", &api.LocationResult{Country: "中国", RegionName: "浙江", City: "杭州"}, "浙江 · 杭州"},
		{"海外", &api.LocationResult{Country: "日本", RegionName: "東京都", City: "東京"}, "日本 · 東京"},
		{"海外缺失城市", &api.LocationResult{Country: "美国", RegionName: "California"}, "美国 · California"},
		{"空结果", nil, "位置获取失败"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, formatLocationText(tc.in))
		})
	}
}
