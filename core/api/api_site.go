package api

import (
	"context"
	"errors"

	coreerrors "github.com/veritas-site/veritas-client/core/errors"
	"github.com/veritas-site/veritas-client/core/model"
)

// GetSiteConfigs 获取站点元信息（标题、标语、SEO 等）。
func (c *Client) GetSiteConfigs(ctx context.Context) (*model.SiteInfo, error) {
	if c == nil {
		return nil, coreerrors.Wrap(coreerrors.ErrCodeInvalidConfig, "客户端未初始化", errors.New("api: Client 未初始化"))
	}
	var rsp model.SiteInfo
	if err := c.get(ctx, "/site/configs", nil, &rsp); err != nil {
		return nil, err
	}
	return &rsp, nil
}
