package api

import (
	"context"
	"errors"

	coreerrors "github.com/veritas-site/veritas-client/core/errors"
	"github.com/veritas-site/veritas-client/core/model"
)

// LocationResult 归属地接口的原始返回，regionName 与 region 两种字段都兼容。
type LocationResult struct {
	Country    string `json:"country,omitempty"`
	RegionName string `json:"regionName,omitempty"`
	Region     string `json:"region,omitempty"`
	City       string `json:"city,omitempty"`
	IP         string `json:"ip,omitempty"`
}

// EffectiveRegion 返回优先取 regionName 的省份字段。
func (l *LocationResult) EffectiveRegion() string {
	if l == nil {
		return ""
	}
	if l.RegionName != "" {
		return l.RegionName
	}
	return l.Region
}

// GetProfile 按用户名查询用户资料。
func (c *Client) GetProfile(ctx context.Context, username string) (*model.Profile, error) {
	if c == nil {
		return nil, coreerrors.Wrap(coreerrors.ErrCodeInvalidConfig, "客户端未初始化", errors.New("api: Client 未初始化"))
	}
	if username == "" {
		return nil, coreerrors.New(coreerrors.ErrCodeInvalidArgument, "api: 用户名不能为空")
	}
	var rsp model.Profile
	if err := c.get(ctx, "/user/profile", map[string]string{"username": username}, &rsp); err != nil {
		return nil, err
	}
	return &rsp, nil
}

// GetLocation 查询当前访问者的归属地。
func (c *Client) GetLocation(ctx context.Context) (*LocationResult, error) {
	if c == nil {
		return nil, coreerrors.Wrap(coreerrors.ErrCodeInvalidConfig, "客户端未初始化", errors.New("api: Client 未初始化"))
	}
	var rsp LocationResult
	if err := c.get(ctx, "/user/location", nil, &rsp); err != nil {
		return nil, err
	}
	return &rsp, nil
}
