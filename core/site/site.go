// Package site 管理站点元信息：一次性拉取配置并与默认值合并。
package site

import (
	"context"
	"sync"

	"github.com/veritas-site/veritas-client/core/httpclient"
	"github.com/veritas-site/veritas-client/core/model"
)

// API 是站点信息所需的后端能力子集。
type API interface {
	GetSiteConfigs(ctx context.Context) (*model.SiteInfo, error)
}

// HeadApplier 在站点信息加载后应用标题、favicon 与 SEO 元信息，
// 由接入方实现。
type HeadApplier interface {
	ApplyHead(info model.SiteInfo)
}

// Store 站点信息管理器。
type Store struct {
	mu      sync.Mutex
	api     API
	logger  httpclient.Logger
	applier HeadApplier
	info    model.SiteInfo
	loaded  bool
}

// DefaultSiteInfo 服务端配置缺失时保留的默认值。
func DefaultSiteInfo() model.SiteInfo {
	return model.SiteInfo{
		SiteTitle:  "Veritas",
		SiteSlogan: "看见真理",
		SiteAuthor: "Jack",
	}
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

// WithHeadApplier 注入元信息应用回调。
func WithHeadApplier(applier HeadApplier) Option {
	return func(s *Store) {
		s.applier = applier
	}
}

// NewStore 创建站点信息管理器。
func NewStore(backend API, opts ...Option) *Store {
	s := &Store{
		api:    backend,
		logger: httpclient.NopLogger{},
		info:   DefaultSiteInfo(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Info 返回当前站点信息。
func (s *Store) Info() model.SiteInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// IsLoaded 是否已成功加载过。
func (s *Store) IsLoaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// FetchSiteInfo 拉取站点配置并与默认值合并，已加载过则跳过
//（force 为 true 时强制刷新）。失败保留默认值，不向上传播。
func (s *Store) FetchSiteInfo(ctx context.Context, force bool) model.SiteInfo {
	s.mu.Lock()
	if s.loaded && !force {
		info := s.info
		s.mu.Unlock()
		return info
	}
	s.mu.Unlock()

	remote, err := s.api.GetSiteConfigs(ctx)
	if err != nil || remote == nil {
		s.logger.Errorf("获取站点配置失败: %v", err)
		return s.Info()
	}

	s.mu.Lock()
	s.info = merge(s.info, *remote)
	s.loaded = true
	info := s.info
	applier := s.applier
	s.mu.Unlock()

	if applier != nil {
		applier.ApplyHead(info)
	}
	return info
}

// merge 用服务端的非空字段覆盖默认值。
func merge(base, remote model.SiteInfo) model.SiteInfo {
	if remote.SiteTitle != "" {
		base.SiteTitle = remote.SiteTitle
	}
	if remote.SiteSlogan != "" {
		base.SiteSlogan = remote.SiteSlogan
	}
	if remote.SiteAuthor != "" {
		base.SiteAuthor = remote.SiteAuthor
	}
	if remote.SiteLogo != "" {
		base.SiteLogo = remote.SiteLogo
	}
	if remote.SiteFavicon != "" {
		base.SiteFavicon = remote.SiteFavicon
	}
	if remote.SiteKeyword != "" {
		base.SiteKeyword = remote.SiteKeyword
	}
	if remote.SiteDesc != "" {
		base.SiteDesc = remote.SiteDesc
	}
	if remote.ICPBeian != "" {
		base.ICPBeian = remote.ICPBeian
	}
	if remote.FooterHTML != "" {
		base.FooterHTML = remote.FooterHTML
	}
	return base
}
