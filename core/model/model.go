// Package model 定义客户端与 Veritas 后端交换的数据结构。
package model

import "time"

// Profile 描述登录用户信息。
type Profile struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Nickname string `json:"nickname,omitempty"`
	Email    string `json:"email,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
	Role     string `json:"role,omitempty"`
	Bio      string `json:"bio,omitempty"`
}

// Clone 返回浅拷贝，避免外部直接修改 store 内部状态。
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

// Location 描述归属地信息，Text 为展示用文案。
type Location struct {
	Country string `json:"country"`
	Region  string `json:"region"`
	City    string `json:"city"`
	Text    string `json:"text"`
	IP      string `json:"ip,omitempty"`
}

// Clone 返回浅拷贝。
func (l *Location) Clone() *Location {
	if l == nil {
		return nil
	}
	cp := *l
	return &cp
}

// WallpaperConfig 全局壁纸配置。
type WallpaperConfig struct {
	Mode       string   `json:"mode,omitempty"`
	WebsiteURL string   `json:"websiteUrl,omitempty"`
	DailyURL   string   `json:"dailyUrl,omitempty"`
	RandomURLs []string `json:"randomUrls,omitempty"`
}

// UserWallpaper 用户自定义壁纸查询结果。
type UserWallpaper struct {
	HasCustom bool   `json:"hasCustom"`
	URL       string `json:"url,omitempty"`
}

// SiteInfo 站点元信息。字段名沿用后端配置表的蛇形命名。
type SiteInfo struct {
	SiteTitle   string `json:"site_title,omitempty"`
	SiteSlogan  string `json:"site_slogan,omitempty"`
	SiteAuthor  string `json:"site_author,omitempty"`
	SiteLogo    string `json:"site_logo,omitempty"`
	SiteFavicon string `json:"site_favicon,omitempty"`
	SiteKeyword string `json:"site_keywords,omitempty"`
	SiteDesc    string `json:"site_desc,omitempty"`
	ICPBeian    string `json:"icp_beian,omitempty"`
	FooterHTML  string `json:"footer_html,omitempty"`
}

// EmailLog 后台邮件发送日志。
type EmailLog struct {
	ID        string    `json:"id"`
	Recipient string    `json:"recipient"`
	Subject   string    `json:"subject"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// EmailLogPage 邮件日志分页结果。
type EmailLogPage struct {
	Logs  []EmailLog `json:"logs"`
	Total int        `json:"total"`
	Page  int        `json:"page"`
	Limit int        `json:"limit"`
}
