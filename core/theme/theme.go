// Package theme 管理明暗两种主题偏好，并在变化时把配色同步给接入方。
package theme

import (
	"sync"

	"github.com/veritas-site/veritas-client/core/storage"
)

// Mode 主题模式。
type Mode string

const (
	ModeLight Mode = "light"
	ModeDark  Mode = "dark"
)

// Palette 一组随主题变化的配色，DOM 同步的等价物由接入方消费。
type Palette struct {
	Accent         string
	GradientStart  string
	GradientMiddle string
	GradientEnd    string
	MetaThemeColor string
}

// Applier 由接入方实现：每次主题变化时收到最新配色并应用到界面
//（根节点属性、CSS 变量、meta theme-color 等）。
type Applier interface {
	Apply(dark bool, p Palette)
}

// ApplierFunc 允许用函数充当 Applier。
type ApplierFunc func(dark bool, p Palette)

func (f ApplierFunc) Apply(dark bool, p Palette) {
	if f != nil {
		f(dark, p)
	}
}

// Store 主题状态管理器。
type Store struct {
	mu      sync.Mutex
	mode    Mode
	applier Applier
	durable storage.Durable
}

// NewStore 创建主题管理器，从持久化存储恢复上次的选择，
// 默认 light，并立即同步一次配色。
func NewStore(durable storage.Durable, applier Applier) *Store {
	s := &Store{
		mode:    ModeLight,
		applier: applier,
		durable: durable,
	}
	if durable != nil {
		if saved, ok := durable.Get(storage.KeyThemeMode); ok && Mode(saved) == ModeDark {
			s.mode = ModeDark
		}
	}
	s.sync()
	return s
}

// Current 返回当前模式。
func (s *Store) Current() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// IsDark 只有显式选择 dark 才为真。
func (s *Store) IsDark() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode == ModeDark
}

// ToggleTheme 在明暗之间切换。
func (s *Store) ToggleTheme() {
	s.mu.Lock()
	if s.mode == ModeDark {
		s.mode = ModeLight
	} else {
		s.mode = ModeDark
	}
	s.persistLocked()
	s.mu.Unlock()
	s.sync()
}

// SetMode 直接设置模式，非法值按 light 处理。
func (s *Store) SetMode(mode Mode) {
	if mode != ModeDark {
		mode = ModeLight
	}
	s.mu.Lock()
	changed := s.mode != mode
	s.mode = mode
	s.persistLocked()
	s.mu.Unlock()
	if changed {
		s.sync()
	}
}

func (s *Store) persistLocked() {
	if s.durable != nil {
		_ = s.durable.Set(storage.KeyThemeMode, string(s.mode))
	}
}

// CurrentPalette 返回当前模式下的配色。
func (s *Store) CurrentPalette() Palette {
	return paletteFor(s.IsDark())
}

func paletteFor(dark bool) Palette {
	if dark {
		return Palette{
			Accent:         "#66ccc9",
			GradientStart:  "#1a1c2c",
			GradientMiddle: "#2d3447",
			GradientEnd:    "#232526",
			MetaThemeColor: "#1a1c2c",
		}
	}
	return Palette{
		Accent:         "#42b983",
		GradientStart:  "#fdfbf7",
		GradientMiddle: "#f5f7fa",
		GradientEnd:    "#eef2f3",
		MetaThemeColor: "#ffffff",
	}
}

func (s *Store) sync() {
	if s.applier == nil {
		return
	}
	dark := s.IsDark()
	s.applier.Apply(dark, paletteFor(dark))
}
