package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	capacityapi "capacityplanner/internal/api/capacity"
	plannerapi "capacityplanner/internal/api/planner"
	"capacityplanner/internal/cache"
	"capacityplanner/internal/config"
	"capacityplanner/internal/dataapi"
	"capacityplanner/internal/metrics"
	"capacityplanner/internal/planner"
	"capacityplanner/internal/session"
	"capacityplanner/internal/store"
)

const sweepInterval = time.Minute

// Server HTTP服务器
type Server struct {
	cfg     *config.AppConfig
	router  *gin.Engine
	store   *store.Store
	cache   cache.Cache
	views   *session.Manager
	metrics *metrics.Registry
}

// NewServer 创建服务器
func NewServer(cfg *config.AppConfig) (*Server, error) {
	devMode := cfg.Server.DevMode
	if !devMode {
		gin.SetMode(gin.ReleaseMode)
	}

	dataDir, err := config.EnsureDataDir(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare data directory: %w", err)
	}

	s := &Server{
		cfg:     cfg,
		router:  gin.New(),
		metrics: metrics.New(),
	}

	// 内置数据接口（SQLite）
	if cfg.Data.ServeReferenceAPI {
		st, err := OpenStore(filepath.Join(dataDir, "capacity.db"), cfg.Planner.HorizonMonths)
		if err != nil {
			return nil, err
		}
		s.store = st
	}

	baseURL := cfg.API.BaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://127.0.0.1:%d/data", cfg.Server.Port)
	}
	client, err := dataapi.New(dataapi.Options{
		BaseURL:         baseURL,
		Timeout:         cfg.API.Timeout(),
		RatePerSecond:   cfg.API.RatePerSecond,
		Burst:           cfg.API.Burst,
		BreakerFailures: cfg.API.BreakerFailures,
		Metrics:         s.metrics,
	})
	if err != nil {
		s.Close()
		return nil, err
	}

	s.cache = cache.New(cfg.Cache.RedisAddr, "capacityplanner:")
	s.views = session.NewManager(client, session.Options{
		Defaults: planner.SaveDefaults{
			TransformationUnitID: cfg.API.TransformationUnitID,
			BcID:                 cfg.API.DefaultBcID,
			ForecastDetailID:     cfg.API.ForecastDetailID,
		},
		MaxParallelWrites: cfg.API.MaxParallelWrites,
		OptionsTTL:        cfg.Cache.OptionsTTL(),
		Cache:             s.cache,
		Metrics:           s.metrics,
	})

	s.setupRoutes(devMode, filepath.Join(dataDir, "exports"))
	log.Info().Str("dataApi", baseURL).Bool("referenceApi", s.store != nil).Msg("服务器已初始化")
	return s, nil
}

// OpenStore 打开 SQLite 数据库，空库时写入演示数据
func OpenStore(dbPath string, horizonMonths int) (*store.Store, error) {
	st, err := store.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	empty, err := st.Empty()
	if err != nil {
		st.Close()
		return nil, err
	}
	if empty {
		if err := st.Seed(store.GenerateFixture(time.Now(), horizonMonths)); err != nil {
			st.Close()
			return nil, fmt.Errorf("failed to seed database: %w", err)
		}
		log.Info().Str("db", dbPath).Int("months", horizonMonths).Msg("已写入演示数据")
	}
	return st, nil
}

// setupRoutes 设置路由
func (s *Server) setupRoutes(devMode bool, exportDir string) {
	s.router.Use(gin.Recovery(), requestLogger())

	// CORS
	s.router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "views": s.views.Count()})
	})

	// 页面 API
	api := s.router.Group("/api")
	{
		plannerapi.NewHandler(s.views, plannerapi.Options{
			ExportDir:    exportDir,
			ExportTitle:  s.cfg.Export.Title,
			ExportStatus: s.cfg.Export.Status,
			Metrics:      s.metrics,
		}).RegisterRoutes(api)
	}

	// 内置数据接口
	if s.store != nil {
		capacityapi.NewHandler(s.store).RegisterRoutes(s.router.Group("/data"))
	}

	// 静态资源
	switch {
	case devMode:
		// 开发模式：代理到前端开发服务器
		s.router.NoRoute(func(c *gin.Context) {
			if strings.HasPrefix(c.Request.URL.Path, "/api/") {
				c.JSON(http.StatusNotFound, gin.H{"error": "接口不存在"})
				return
			}
			c.Redirect(http.StatusTemporaryRedirect, "http://localhost:5173"+c.Request.URL.Path)
		})
	case s.cfg.Server.StaticDir != "":
		dir := s.cfg.Server.StaticDir
		s.router.Static("/assets", filepath.Join(dir, "assets"))
		index := filepath.Join(dir, "index.html")
		// SPA 路由 fallback
		s.router.NoRoute(func(c *gin.Context) {
			if strings.HasPrefix(c.Request.URL.Path, "/api/") {
				c.JSON(http.StatusNotFound, gin.H{"error": "接口不存在"})
				return
			}
			if _, err := os.Stat(index); err != nil {
				c.Status(http.StatusNotFound)
				return
			}
			c.File(index)
		})
	default:
		s.router.NoRoute(func(c *gin.Context) {
			c.JSON(http.StatusNotFound, gin.H{"error": "接口不存在"})
		})
	}
}

// requestLogger gin 请求日志（zerolog）
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		ev := log.Debug()
		switch {
		case status >= 500:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

// Handler HTTP 处理器（测试用）
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run 启动服务器，ctx 取消后优雅退出；同时定期回收空闲视图
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("服务器启动")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if idle := s.cfg.Planner.ViewIdleTimeout(); idle > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(sweepInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					s.views.Sweep(idle)
				}
			}
		})
	}
	return g.Wait()
}

// Close 释放资源
func (s *Server) Close() error {
	var errs []error
	if s.cache != nil {
		errs = append(errs, s.cache.Close())
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	return errors.Join(errs...)
}
