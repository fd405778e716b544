package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// envelope 按后端统一响应包装回写。
func envelope(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data})
}

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, NewClient(WithBaseURL(srv.URL + "/api"))
}

func TestGetProfile(t *testing.T) {
	var gotPath, gotUsername string
	_, cli := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUsername = r.URL.Query().Get("username")
		envelope(w, map[string]string{"id": "1", "username": "alice", "nickname": "Alice"})
	})

	profile, err := cli.GetProfile(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "/api/user/profile", gotPath)
	assert.Equal(t, "alice", gotUsername)
	assert.Equal(t, "Alice", profile.Nickname)

	_, err = cli.GetProfile(context.Background(), "")
	assert.Error(t, err, "空用户名应直接拒绝")
}

func TestGetLocationFieldCompat(t *testing.T) {
	_, cli := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		envelope(w, map[string]string{"country": "中国", "regionName": "浙江", "city": "杭州"})
	})

	loc, err := cli.GetLocation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "浙江", loc.EffectiveRegion())

	// region 字段兜底。
	fallback := &LocationResult{Region: "广东"}
	assert.Equal(t, "广东", fallback.EffectiveRegion())
	var empty *LocationResult
	assert.Empty(t, empty.EffectiveRegion())
}

func TestGetGlobalWallpaperForceAddsCacheBuster(t *testing.T) {
	var gotBuster []string
	_, cli := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotBuster = append(gotBuster, r.URL.Query().Get("t"))
		envelope(w, map[string]any{"mode": "daily", "websiteUrl": "https://img.test/site.jpg"})
	})

	cfg, err := cli.GetGlobalWallpaper(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "daily", cfg.Mode)
	assert.Empty(t, gotBuster[0], "非强制请求不应带时间戳参数")

	_, err = cli.GetGlobalWallpaper(context.Background(), true)
	require.NoError(t, err)
	assert.NotEmpty(t, gotBuster[1], "强制刷新应带时间戳绕过缓存")
}

func TestUploadUserWallpaperMultipart(t *testing.T) {
	var gotContentType, gotUserID, gotUsername, gotFilename string
	var gotImage []byte
	_, cli := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotUserID = r.FormValue("userId")
		gotUsername = r.FormValue("username")
		file, header, err := r.FormFile("image")
		require.NoError(t, err)
		defer file.Close()
		gotFilename = header.Filename
		gotImage, err = io.ReadAll(file)
		require.NoError(t, err)
		envelope(w, map[string]string{"url": "/uploads/wallpapers/7.png"})
	})

	url, err := cli.UploadUserWallpaper(context.Background(), "7", "alice", "wall.png", strings.NewReader("图片内容"))
	require.NoError(t, err)
	assert.Equal(t, "/uploads/wallpapers/7.png", url)

	assert.True(t, strings.HasPrefix(gotContentType, "multipart/form-data; boundary="),
		"Content-Type 必须携带 multipart boundary，实际: %s", gotContentType)
	assert.Equal(t, "7", gotUserID)
	assert.Equal(t, "alice", gotUsername)
	assert.Equal(t, "wall.png", gotFilename)
	assert.Equal(t, "图片内容", string(gotImage))
}

func TestListEmailLogs(t *testing.T) {
	var gotQuery map[string]string
	_, cli := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"page":    r.URL.Query().Get("page"),
			"limit":   r.URL.Query().Get("limit"),
			"keyword": r.URL.Query().Get("keyword"),
		}
		envelope(w, map[string]any{
			"logs":  []map[string]string{{"id": "1", "recipient": "a@x.com", "status": "sent"}},
			"total": 1, "page": 2, "limit": 10,
		})
	})

	page, err := cli.ListEmailLogs(context.Background(), EmailLogQuery{Page: 2, Limit: 10, Keyword: "验证码"})
	require.NoError(t, err)
	assert.Equal(t, "2", gotQuery["page"])
	assert.Equal(t, "10", gotQuery["limit"])
	assert.Equal(t, "验证码", gotQuery["keyword"])
	require.Len(t, page.Logs, 1)
	assert.Equal(t, "a@x.com", page.Logs[0].Recipient)
	assert.Equal(t, 1, page.Total)
}

func TestDeleteEmailLogEscapesID(t *testing.T) {
	var gotPath string
	_, cli := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		envelope(w, nil)
	})

	require.NoError(t, cli.DeleteEmailLog(context.Background(), "id/带斜杠"))
	assert.Equal(t, "/api/admin/emails/id%2F%E5%B8%A6%E6%96%9C%E6%9D%A0", gotPath)

	assert.Error(t, cli.DeleteEmailLog(context.Background(), ""), "空 ID 应直接拒绝")
}

func TestClearEmailLogs(t *testing.T) {
	var gotMethod, gotPath string
	_, cli := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		envelope(w, nil)
	})

	require.NoError(t, cli.ClearEmailLogs(context.Background()))
	assert.Equal(t, http.MethodDelete, gotMethod)
	assert.Equal(t, "/api/admin/emails/clear/all", gotPath)
}

func TestResolve(t *testing.T) {
	cli := NewClient(WithBaseURL("https://blog.test/api"))
	cases := []struct {
		ref  string
		want string
	}{
		{"", ""},
		{"https://cdn.test/a.png", "https://cdn.test/a.png"},
		{"/uploads/a.png", "https://blog.test/uploads/a.png"},
		{"uploads/a.png", "https://blog.test/uploads/a.png"},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("ref=%q", tc.ref), func(t *testing.T) {
			assert.Equal(t, tc.want, cli.Resolve(tc.ref))
		})
	}
}
