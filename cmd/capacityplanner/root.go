package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	capacityapi "capacityplanner/internal/api/capacity"
	"capacityplanner/internal/config"
	"capacityplanner/internal/dataapi"
	"capacityplanner/internal/exporter"
	"capacityplanner/internal/server"
	"capacityplanner/internal/session"
	"capacityplanner/internal/store"
	"capacityplanner/internal/util"
)

type rootFlags struct {
	configPath string
	verbose    bool
}

func newRootCmd(ctx context.Context) *cobra.Command {
	var flags rootFlags
	root := &cobra.Command{
		Use:           "capacityplanner",
		Short:         "产能规划工具",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := zerolog.InfoLevel
			if flags.verbose {
				level = zerolog.DebugLevel
			}
			zerolog.SetGlobalLevel(level)
		},
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "配置文件路径（默认为可执行文件同目录下的 config.toml）")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "输出调试日志")

	root.AddCommand(serveCmd(ctx, &flags))
	root.AddCommand(seedCmd(&flags))
	root.AddCommand(exportCmd(ctx, &flags))
	root.AddCommand(configCmd(&flags))
	return root
}

func loadConfig(flags *rootFlags) (*config.AppConfig, config.LoadConfigInfo, error) {
	cfg, info, err := config.LoadConfigWithInfo(flags.configPath)
	if err != nil {
		return nil, info, fmt.Errorf("加载配置失败: %w", err)
	}
	return cfg, info, nil
}

func serveCmd(ctx context.Context, flags *rootFlags) *cobra.Command {
	var (
		port    int
		devMode bool
		dataDir string
		noOpen  bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "启动 Web 服务",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, info, err := loadConfig(flags)
			if err != nil {
				return err
			}

			// 命令行参数仅在配置未显式指定端口时生效
			if port > 0 && !info.PortSpecified {
				cfg.Server.Port = port
			}
			if !info.PortSpecified && port == 0 {
				cfg.Server.Port = util.FindAvailablePort(cfg.Server.Port, 20)
			}
			if devMode {
				cfg.Server.DevMode = true
			}
			if dataDir != "" {
				cfg.Data.DataDir = dataDir
			}

			srv, err := server.NewServer(cfg)
			if err != nil {
				return err
			}
			defer srv.Close()

			url := util.PlannerURL(cfg.Server.Port)
			if cfg.Server.OpenBrowser && !cfg.Server.DevMode && !noOpen {
				go func() {
					time.Sleep(300 * time.Millisecond)
					if err := util.OpenBrowserWithFallback(url); err != nil {
						log.Warn().Str("url", url).Msg("无法自动打开浏览器，请手动访问")
					}
				}()
			}
			log.Info().Str("url", url).Str("config", info.Path).Msg("按 Ctrl+C 停止服务")

			return srv.Run(ctx, fmt.Sprintf(":%d", cfg.Server.Port))
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "服务端口（config.toml 优先）")
	cmd.Flags().BoolVar(&devMode, "dev", false, "开发模式")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "数据目录（覆盖配置文件）")
	cmd.Flags().BoolVar(&noOpen, "no-browser", false, "不自动打开浏览器")
	return cmd
}

func seedCmd(flags *rootFlags) *cobra.Command {
	var (
		fixturePath string
		start       string
		months      int
		dump        string
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "写入内置数据接口的初始数据",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(flags)
			if err != nil {
				return err
			}

			var f store.Fixture
			if fixturePath != "" {
				if f, err = store.LoadFixture(fixturePath); err != nil {
					return err
				}
			} else {
				from := time.Now()
				if start != "" {
					if from, err = time.Parse("2006-01", start); err != nil {
						return fmt.Errorf("invalid --start %q: %w", start, err)
					}
				}
				if months <= 0 {
					months = cfg.Planner.HorizonMonths
				}
				f = store.GenerateFixture(from, months)
			}

			if dump != "" {
				if err := store.WriteFixture(dump, f); err != nil {
					return err
				}
				log.Info().Str("file", dump).Msg("初始数据已写出")
				return nil
			}

			dir, err := config.EnsureDataDir(cfg)
			if err != nil {
				return err
			}
			dbPath := filepath.Join(dir, "capacity.db")
			st, err := store.New(dbPath)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Seed(f); err != nil {
				return err
			}
			log.Info().Str("db", dbPath).Str("start", f.Start).Int("months", f.Months).Msg("初始数据已写入")
			return nil
		},
	}
	cmd.Flags().StringVar(&fixturePath, "fixture", "", "YAML 初始数据文件")
	cmd.Flags().StringVar(&start, "start", "", "起始月份 (YYYY-MM)，默认当前月份")
	cmd.Flags().IntVar(&months, "months", 0, "月份数，默认使用 planner.horizon_months")
	cmd.Flags().StringVar(&dump, "dump", "", "只写出 YAML 文件，不写入数据库")
	return cmd
}

func exportCmd(ctx context.Context, flags *rootFlags) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "加载当前计划并导出为 Excel",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(flags)
			if err != nil {
				return err
			}

			baseURL := cfg.API.BaseURL
			if baseURL == "" {
				// 未配置外部接口时，在本地回环地址上临时提供内置数据接口
				dir, err := config.EnsureDataDir(cfg)
				if err != nil {
					return err
				}
				url, shutdown, err := serveLocalData(filepath.Join(dir, "capacity.db"), cfg.Planner.HorizonMonths)
				if err != nil {
					return err
				}
				defer shutdown()
				baseURL = url
			}

			client, err := dataapi.New(dataapi.Options{
				BaseURL:       baseURL,
				Timeout:       cfg.API.Timeout(),
				RatePerSecond: cfg.API.RatePerSecond,
				Burst:         cfg.API.Burst,
			})
			if err != nil {
				return err
			}
			views := session.NewManager(client, session.Options{})
			v, err := views.Open(ctx)
			if err != nil {
				return fmt.Errorf("加载数据失败: %w", err)
			}

			file, err := exporter.Build(v.Plan(), exporter.Meta{
				Title:     cfg.Export.Title,
				Status:    cfg.Export.Status,
				CreatedAt: time.Now(),
			})
			if err != nil {
				return err
			}
			defer file.Close()
			if err := file.SaveAs(out); err != nil {
				return err
			}
			log.Info().Str("file", out).Msg("导出完成")
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", exporter.Filename, "输出文件路径")
	return cmd
}

// serveLocalData 在随机端口上提供内置数据接口
func serveLocalData(dbPath string, horizonMonths int) (string, func(), error) {
	st, err := server.OpenStore(dbPath, horizonMonths)
	if err != nil {
		return "", nil, err
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		st.Close()
		return "", nil, err
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	capacityapi.NewHandler(st).RegisterRoutes(r.Group("/data"))
	srv := &http.Server{Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("内置数据接口异常退出")
		}
	}()

	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		st.Close()
	}
	return "http://" + ln.Addr().String() + "/data", shutdown, nil
}

func configCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "配置文件管理"}
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "写出默认配置文件",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := flags.configPath
			if path == "" {
				path = config.DefaultPath()
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s 已存在，使用 --force 覆盖", path)
			}
			if err := config.SaveConfig(config.DefaultConfig(), path); err != nil {
				return err
			}
			log.Info().Str("file", path).Msg("默认配置已写出")
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "覆盖已有配置文件")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "输出生效的配置（含环境变量覆盖）",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, info, err := loadConfig(flags)
			if err != nil {
				return err
			}
			log.Info().Str("file", info.Path).Bool("portSpecified", info.PortSpecified).Msg("配置来源")
			return config.WriteTOML(cmd.OutOrStdout(), cfg)
		},
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}
