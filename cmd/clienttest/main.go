// Veritas 客户端核心的交互测试入口
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"

	"github.com/veritas-site/veritas-client/core/api"
	"github.com/veritas-site/veritas-client/core/httpclient"
	"github.com/veritas-site/veritas-client/core/model"
	"github.com/veritas-site/veritas-client/core/notify"
	"github.com/veritas-site/veritas-client/core/session"
	"github.com/veritas-site/veritas-client/core/site"
	"github.com/veritas-site/veritas-client/core/storage"
	"github.com/veritas-site/veritas-client/core/theme"
	"github.com/veritas-site/veritas-client/core/wallpaper"
)

// config 通过环境变量配置测试入口。
type config struct {
	BaseURL  string  `env:"VERITAS_BASE_URL" envDefault:"http://127.0.0.1:3000/api"`
	DataPath string  `env:"VERITAS_DATA_PATH" envDefault:"veritas-client.db"`
	QPS      float64 `env:"VERITAS_QPS" envDefault:"10"`
	Debug    bool    `env:"VERITAS_DEBUG" envDefault:"false"`
}

// zeroLogger 把 core 层的日志接口适配到 zerolog。
type zeroLogger struct {
	log zerolog.Logger
}

func (l zeroLogger) Debugf(format string, args ...any) { l.log.Debug().Msgf(format, args...) }
func (l zeroLogger) Infof(format string, args ...any)  { l.log.Info().Msgf(format, args...) }
func (l zeroLogger) Warnf(format string, args ...any)  { l.log.Warn().Msgf(format, args...) }
func (l zeroLogger) Errorf(format string, args ...any) { l.log.Error().Msgf(format, args...) }

// consoleNotifier 把用户提示打到终端。
type consoleNotifier struct {
	log zerolog.Logger
}

func (n consoleNotifier) Notify(msg notify.Notification) {
	event := n.log.Info()
	switch msg.Severity {
	case notify.SeverityWarning:
		event = n.log.Warn()
	case notify.SeverityError:
		event = n.log.Error()
	}
	event.Str("id", msg.ID).Msg(msg.Message)
}

// consoleTheme 主题同步的终端替身。
type consoleTheme struct {
	log zerolog.Logger
}

func (t consoleTheme) Apply(dark bool, p theme.Palette) {
	t.log.Info().Bool("dark", dark).Str("accent", p.Accent).Msg("主题已同步")
}

// consoleHead 站点元信息应用的终端替身。
type consoleHead struct {
	log zerolog.Logger
}

func (h consoleHead) ApplyHead(info model.SiteInfo) {
	h.log.Info().Str("title", info.SiteTitle).Str("slogan", info.SiteSlogan).Msg("站点信息已应用")
}

func main() {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "解析配置失败: %v\n", err)
		os.Exit(1)
	}

	level := zerolog.InfoLevel
	if cfg.Debug {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
	logger := zeroLogger{log: log}

	if dir := filepath.Dir(cfg.DataPath); dir != "." {
		_ = os.MkdirAll(dir, 0o755)
	}
	durable, err := storage.OpenBolt(cfg.DataPath)
	if err != nil {
		log.Fatal().Err(err).Msg("打开本地存储失败")
	}
	defer durable.Close()
	scoped := storage.NewMemoryStore()

	// 401 回调在会话创建后才生效，用闭包晚绑定。
	var sess *session.Store
	httpCli := httpclient.NewClient(
		httpclient.WithLogger(logger),
		httpclient.WithNotifier(consoleNotifier{log: log}),
		httpclient.WithRateLimiter(httpclient.NewHostLimiter(cfg.QPS, 3)),
		httpclient.WithMiddlewares(
			httpclient.WithUserAgent("veritas-client/1.0"),
			httpclient.WithBearerToken(func() string {
				token, _ := durable.Get(storage.KeyToken)
				return token
			}),
			httpclient.WithJSONHeaders(),
		),
		httpclient.WithSessionHooks(
			func() {
				if sess != nil {
					sess.Logout()
				}
			},
			func() {
				log.Warn().Msg("登录已过期，请重新登录后再试")
			},
		),
	)

	backend := api.NewClient(
		api.WithHTTPClient(httpCli),
		api.WithLogger(logger),
		api.WithBaseURL(cfg.BaseURL),
	)

	sess = session.NewStore(backend, durable, session.WithLogger(logger))
	paper := wallpaper.NewStore(backend, sess, durable, scoped,
		wallpaper.WithLogger(logger),
		wallpaper.WithPreloader(wallpaper.NewHTTPPreloader(nil, backend.Resolve)),
	)
	themes := theme.NewStore(durable, consoleTheme{log: log})
	siteStore := site.NewStore(backend, site.WithLogger(logger), site.WithHeadApplier(consoleHead{log: log}))

	reader := bufio.NewReader(os.Stdin)
	fmt.Println("=== Veritas 客户端核心测试 ===")
	for {
		fmt.Println()
		fmt.Println("1) 恢复登录态  2) 刷新用户信息  3) 查询归属地  4) 初始化壁纸")
		fmt.Println("5) 切换壁纸模式  6) 壁纸健康检查  7) 上传壁纸  8) 切换主题")
		fmt.Println("9) 站点信息  10) 邮件日志  0) 退出")
		fmt.Print("> ")
		line, _ := reader.ReadString('\n')
		choice := strings.TrimSpace(line)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

		switch choice {
		case "1":
			if err := sess.CheckLoginStatus(ctx); err != nil {
				log.Error().Err(err).Msg("恢复登录态失败")
			}
			fmt.Printf("已登录: %v\n", sess.IsLoggedIn())
		case "2":
			profile, err := sess.RefreshUserInfo(ctx)
			if err != nil {
				log.Error().Err(err).Msg("刷新失败")
			} else if profile != nil {
				fmt.Printf("用户: %s (%s)\n", profile.Username, profile.Nickname)
			} else {
				fmt.Println("未登录")
			}
		case "3":
			loc, _ := sess.GetLocation(ctx)
			if loc != nil {
				fmt.Printf("归属地: %s\n", loc.Text)
			}
		case "4":
			if err := paper.Initialize(ctx, false); err != nil {
				log.Error().Err(err).Msg("初始化失败")
			}
			fmt.Printf("当前壁纸 [%s]: %s\n", paper.CurrentMode(), paper.Current())
		case "5":
			fmt.Print("模式(website/daily/random/userCustom): ")
			modeLine, _ := reader.ReadString('\n')
			mode := wallpaper.ParseMode(strings.TrimSpace(modeLine))
			if err := paper.ChangeWallpaper(ctx, mode, false); err != nil {
				log.Error().Err(err).Msg("切换失败")
			}
			fmt.Printf("当前壁纸 [%s]: %s\n", paper.CurrentMode(), paper.Current())
		case "6":
			report := paper.HealthCheck(ctx)
			fmt.Printf("网站默认: %v  每日: %v  随机有效: %d  自定义: %v\n",
				report.Website.Valid, report.Daily.Valid,
				len(report.Random.ValidURLs), report.UserCustom.Valid)
		case "7":
			fmt.Print("图片路径: ")
			pathLine, _ := reader.ReadString('\n')
			path := strings.TrimSpace(pathLine)
			content, err := os.ReadFile(path)
			if err != nil {
				log.Error().Err(err).Msg("读取文件失败")
				break
			}
			url, err := paper.UploadUserWallpaper(ctx, filepath.Base(path), content)
			if err != nil {
				log.Error().Err(err).Msg("上传失败")
			} else {
				fmt.Printf("上传成功: %s\n", url)
			}
		case "8":
			themes.ToggleTheme()
			fmt.Printf("当前主题: %s\n", themes.Current())
		case "9":
			info := siteStore.FetchSiteInfo(ctx, false)
			fmt.Printf("%s - %s\n", info.SiteTitle, info.SiteSlogan)
		case "10":
			page, err := backend.ListEmailLogs(ctx, api.EmailLogQuery{Page: 1, Limit: 10})
			if err != nil {
				log.Error().Err(err).Msg("查询邮件日志失败")
				break
			}
			fmt.Printf("共 %d 条\n", page.Total)
			for _, item := range page.Logs {
				fmt.Printf("  [%s] %s -> %s (%s)\n", item.Status, item.Subject, item.Recipient, item.ID)
			}
		case "0":
			cancel()
			return
		default:
			fmt.Println("未知选项")
		}
		cancel()
	}
}
