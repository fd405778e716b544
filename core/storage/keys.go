package storage

// 持久化存储键。
const (
	KeyToken         = "token"
	KeyUser          = "user"
	KeyUsername      = "username"
	KeyIsLoggedIn    = "isLoggedIn"
	KeyUserLocation  = "userLocation"
	KeyWallpaperMode = "preferredWallpaperMode"
	KeyThemeMode     = "themeMode"
)

// 会话级存储键。
const (
	KeyGlobalWallpaperConfig = "global_wallpaper_config"
	// UserWallpaperKeyPrefix 拼接用户 ID 构成用户壁纸缓存键。
	UserWallpaperKeyPrefix = "user_wallpaper_"
)

// UserWallpaperKey 返回指定用户的壁纸缓存键。
func UserWallpaperKey(userID string) string {
	return UserWallpaperKeyPrefix + userID
}
