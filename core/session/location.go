package session

import (
	"context"
	"time"

	"github.com/veritas-site/veritas-client/core/api"
	"github.com/veritas-site/veritas-client/core/model"
	"github.com/veritas-site/veritas-client/core/storage"
)

// fallbackLocation 归属地获取失败时的固定兜底值，
// 保证界面绑定不需要判空。
func fallbackLocation() *model.Location {
	return &model.Location{
		Country: "中国",
		Region:  "未知",
		City:    "未知",
		Text:    "位置获取失败",
	}
}

// formatLocationText 生成展示文案，国内地址做省市去重处理。
func formatLocationText(res *api.LocationResult) string {
	if res == nil {
		return "位置获取失败"
	}
	region := res.EffectiveRegion()
	if res.Country == "中国" {
		if region == res.City {
			return res.Country + " · " + region
		}
		return region + " · " + res.City
	}
	city := res.City
	if city == "" {
		city = region
	}
	return res.Country + " · " + city
}

// fetchLocationFromBackend 请求后端归属地并写入状态与持久化缓存。
func (s *Store) fetchLocationFromBackend(ctx context.Context) (*model.Location, error) {
	res, err := s.api.GetLocation(ctx)
	if err != nil {
		s.logger.Errorf("后端获取位置失败: %v", err)
		return nil, err
	}
	loc := &model.Location{
		Country: res.Country,
		Region:  res.EffectiveRegion(),
		City:    res.City,
		Text:    formatLocationText(res),
		IP:      res.IP,
	}
	if loc.Country == "" {
		loc.Country = "中国"
	}
	if loc.Region == "" {
		loc.Region = "未知"
	}
	if loc.City == "" {
		loc.City = "未知"
	}
	s.mu.Lock()
	s.location = loc
	_ = storage.SetJSON(s.durable, storage.KeyUserLocation, loc)
	s.mu.Unlock()
	return loc.Clone(), nil
}

// GetLocation 获取归属地：缓存命中时立即返回并在后台静默校准，
// 未命中时同步请求；失败退回固定兜底值而不是留空。
func (s *Store) GetLocation(ctx context.Context) (*model.Location, error) {
	s.mu.Lock()
	if s.loadingLocation {
		current := s.location.Clone()
		s.mu.Unlock()
		// 已有请求在途且还没有任何结果时也不返回空，界面绑定不判空。
		if current == nil {
			current = fallbackLocation()
		}
		return current, nil
	}
	var cached model.Location
	if storage.GetJSON(s.durable, storage.KeyUserLocation, &cached) {
		s.location = &cached
		s.mu.Unlock()
		go func() {
			revalidateCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_, _ = s.fetchLocationFromBackend(revalidateCtx)
		}()
		return cached.Clone(), nil
	}
	s.loadingLocation = true
	s.mu.Unlock()

	loc, err := s.fetchLocationFromBackend(ctx)
	s.mu.Lock()
	s.loadingLocation = false
	if err != nil {
		s.location = fallbackLocation()
		loc = s.location.Clone()
	}
	s.mu.Unlock()
	return loc, nil
}

// RefreshLocation 清除缓存后强制重新获取归属地。
func (s *Store) RefreshLocation(ctx context.Context) (*model.Location, error) {
	s.mu.Lock()
	_ = s.durable.Delete(storage.KeyUserLocation)
	s.location = nil
	s.mu.Unlock()
	return s.GetLocation(ctx)
}

// UpdateLocation 直接替换归属地并持久化。
func (s *Store) UpdateLocation(loc *model.Location) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.location = loc.Clone()
	if loc != nil {
		_ = storage.SetJSON(s.durable, storage.KeyUserLocation, loc)
	}
}

// ClearLocation 清空归属地状态与缓存。
func (s *Store) ClearLocation() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.location = nil
	_ = s.durable.Delete(storage.KeyUserLocation)
}
