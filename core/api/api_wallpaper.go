package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	coreerrors "github.com/veritas-site/veritas-client/core/errors"
	"github.com/veritas-site/veritas-client/core/model"
)

// GetGlobalWallpaper 获取全局壁纸配置。force 为 true 时追加时间戳参数绕过缓存。
func (c *Client) GetGlobalWallpaper(ctx context.Context, force bool) (*model.WallpaperConfig, error) {
	if c == nil {
		return nil, coreerrors.Wrap(coreerrors.ErrCodeInvalidConfig, "客户端未初始化", errors.New("api: Client 未初始化"))
	}
	var params map[string]string
	if force {
		params = map[string]string{"t": strconv.FormatInt(time.Now().UnixMilli(), 10)}
	}
	var rsp model.WallpaperConfig
	if err := c.get(ctx, "/wallpaper/global", params, &rsp); err != nil {
		return nil, err
	}
	return &rsp, nil
}

// GetUserWallpaper 查询用户的自定义壁纸。
func (c *Client) GetUserWallpaper(ctx context.Context, userID string) (*model.UserWallpaper, error) {
	if c == nil {
		return nil, coreerrors.Wrap(coreerrors.ErrCodeInvalidConfig, "客户端未初始化", errors.New("api: Client 未初始化"))
	}
	if userID == "" {
		return nil, coreerrors.New(coreerrors.ErrCodeInvalidArgument, "api: 用户 ID 不能为空")
	}
	var rsp model.UserWallpaper
	if err := c.get(ctx, "/wallpaper/user", map[string]string{"userId": userID}, &rsp); err != nil {
		return nil, err
	}
	return &rsp, nil
}

type uploadResult struct {
	URL string `json:"url"`
}

// UploadUserWallpaper 上传用户自定义壁纸，返回服务端存储后的图片地址。
// 请求体为 multipart 表单，Content-Type 由 multipart.Writer 生成以携带
// 正确的 boundary，绝不能手工覆盖。
func (c *Client) UploadUserWallpaper(ctx context.Context, userID, username, filename string, image io.Reader) (string, error) {
	if c == nil {
		return "", coreerrors.Wrap(coreerrors.ErrCodeInvalidConfig, "客户端未初始化", errors.New("api: Client 未初始化"))
	}
	if image == nil {
		return "", coreerrors.New(coreerrors.ErrCodeInvalidArgument, "api: 图片内容不能为空")
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("image", filename)
	if err != nil {
		return "", coreerrors.Wrap(coreerrors.ErrCodeInvalidArgument, "api: 构造表单失败", err)
	}
	if _, err := io.Copy(part, image); err != nil {
		return "", coreerrors.Wrap(coreerrors.ErrCodeInvalidArgument, "api: 读取图片失败", err)
	}
	if err := writer.WriteField("userId", userID); err != nil {
		return "", coreerrors.Wrap(coreerrors.ErrCodeInvalidArgument, "api: 构造表单失败", err)
	}
	if err := writer.WriteField("username", username); err != nil {
		return "", coreerrors.Wrap(coreerrors.ErrCodeInvalidArgument, "api: 构造表单失败", err)
	}
	if err := writer.Close(); err != nil {
		return "", coreerrors.Wrap(coreerrors.ErrCodeInvalidArgument, "api: 构造表单失败", err)
	}

	body := buf.Bytes()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/wallpaper/user", bytes.NewReader(body))
	if err != nil {
		return "", coreerrors.Wrap(coreerrors.ErrCodeInvalidArgument, "api: 构造请求失败", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}

	var rsp uploadResult
	if err := c.http.Do(req, &rsp); err != nil {
		return "", err
	}
	return rsp.URL, nil
}
