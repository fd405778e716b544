package api

import (
	"context"
	"errors"
	"net/url"
	"strconv"

	coreerrors "github.com/veritas-site/veritas-client/core/errors"
	"github.com/veritas-site/veritas-client/core/model"
)

// EmailLogQuery 邮件日志的筛选与分页参数。
type EmailLogQuery struct {
	Page    int
	Limit   int
	Keyword string
	Status  string
}

// ListEmailLogs 分页查询后台邮件发送日志。
func (c *Client) ListEmailLogs(ctx context.Context, query EmailLogQuery) (*model.EmailLogPage, error) {
	if c == nil {
		return nil, coreerrors.Wrap(coreerrors.ErrCodeInvalidConfig, "客户端未初始化", errors.New("api: Client 未初始化"))
	}
	params := map[string]string{}
	if query.Page > 0 {
		params["page"] = strconv.Itoa(query.Page)
	}
	if query.Limit > 0 {
		params["limit"] = strconv.Itoa(query.Limit)
	}
	if query.Keyword != "" {
		params["keyword"] = query.Keyword
	}
	if query.Status != "" {
		params["status"] = query.Status
	}
	var rsp model.EmailLogPage
	if err := c.get(ctx, "/admin/emails", params, &rsp); err != nil {
		return nil, err
	}
	return &rsp, nil
}

// DeleteEmailLog 删除单条邮件日志。
func (c *Client) DeleteEmailLog(ctx context.Context, id string) error {
	if c == nil {
		return coreerrors.Wrap(coreerrors.ErrCodeInvalidConfig, "客户端未初始化", errors.New("api: Client 未初始化"))
	}
	if id == "" {
		return coreerrors.New(coreerrors.ErrCodeInvalidArgument, "api: 日志 ID 不能为空")
	}
	return c.del(ctx, "/admin/emails/"+url.PathEscape(id), nil)
}

// ClearEmailLogs 清空全部邮件日志。
func (c *Client) ClearEmailLogs(ctx context.Context) error {
	if c == nil {
		return coreerrors.Wrap(coreerrors.ErrCodeInvalidConfig, "客户端未初始化", errors.New("api: Client 未初始化"))
	}
	return c.del(ctx, "/admin/emails/clear/all", nil)
}
