package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
)

// AppConfig 应用配置
type AppConfig struct {
	Server  ServerConfig  `toml:"server"`
	Data    DataConfig    `toml:"data"`
	API     APIConfig     `toml:"api"`
	Cache   CacheConfig   `toml:"cache"`
	Export  ExportConfig  `toml:"export"`
	Planner PlannerConfig `toml:"planner"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port        int    `toml:"port" env:"CAPACITY_PORT"`
	DevMode     bool   `toml:"dev_mode" env:"CAPACITY_DEV_MODE"`
	OpenBrowser bool   `toml:"open_browser" env:"CAPACITY_OPEN_BROWSER"`
	StaticDir   string `toml:"static_dir" env:"CAPACITY_STATIC_DIR"`
}

// DataConfig 数据配置
type DataConfig struct {
	DataDir string `toml:"data_dir" env:"CAPACITY_DATA_DIR"`
	// 是否在 /data 下提供内置数据接口（SQLite）
	ServeReferenceAPI bool `toml:"serve_reference_api" env:"CAPACITY_SERVE_REFERENCE_API"`
}

// APIConfig 外部数据接口配置
type APIConfig struct {
	// 为空时使用内置数据接口
	BaseURL           string  `toml:"base_url" env:"CAPACITY_API_BASE_URL"`
	TimeoutSeconds    int     `toml:"timeout_seconds" env:"CAPACITY_API_TIMEOUT_SECONDS"`
	RatePerSecond     float64 `toml:"rate_per_second" env:"CAPACITY_API_RATE_PER_SECOND"`
	Burst             int     `toml:"burst" env:"CAPACITY_API_BURST"`
	MaxParallelWrites int     `toml:"max_parallel_writes" env:"CAPACITY_API_MAX_PARALLEL_WRITES"`
	BreakerFailures   uint32  `toml:"breaker_failures" env:"CAPACITY_API_BREAKER_FAILURES"`

	TransformationUnitID int64 `toml:"transformation_unit_id" env:"CAPACITY_TRANSFORMATION_UNIT_ID"`
	DefaultBcID          int64 `toml:"default_bc_id" env:"CAPACITY_DEFAULT_BC_ID"`
	ForecastDetailID     int64 `toml:"forecast_detail_id" env:"CAPACITY_FORECAST_DETAIL_ID"`
}

// CacheConfig 缓存配置
type CacheConfig struct {
	RedisAddr         string `toml:"redis_addr" env:"CAPACITY_REDIS_ADDR"`
	OptionsTTLSeconds int    `toml:"options_ttl_seconds" env:"CAPACITY_OPTIONS_TTL_SECONDS"`
}

// ExportConfig Excel 导出相关配置
type ExportConfig struct {
	Title  string `toml:"title" env:"CAPACITY_EXPORT_TITLE"`
	Status string `toml:"status" env:"CAPACITY_EXPORT_STATUS"`
}

// PlannerConfig 计划表配置
type PlannerConfig struct {
	HorizonMonths          int `toml:"horizon_months" env:"CAPACITY_HORIZON_MONTHS"`
	ViewIdleTimeoutMinutes int `toml:"view_idle_timeout_minutes" env:"CAPACITY_VIEW_IDLE_TIMEOUT_MINUTES"`
}

// Timeout 数据接口超时
func (c APIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// OptionsTTL 选项缓存时间
func (c CacheConfig) OptionsTTL() time.Duration {
	return time.Duration(c.OptionsTTLSeconds) * time.Second
}

// ViewIdleTimeout 空闲视图回收时间，0 表示不回收
func (c PlannerConfig) ViewIdleTimeout() time.Duration {
	return time.Duration(c.ViewIdleTimeoutMinutes) * time.Minute
}

// LoadConfigInfo 配置加载元信息
type LoadConfigInfo struct {
	PortSpecified bool
	Path          string
}

// DefaultConfig 默认配置
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:        20262,
			DevMode:     false,
			OpenBrowser: true,
		},
		Data: DataConfig{
			DataDir:           "data",
			ServeReferenceAPI: true,
		},
		API: APIConfig{
			TimeoutSeconds:       15,
			Burst:                8,
			MaxParallelWrites:    8,
			BreakerFailures:      5,
			TransformationUnitID: 679,
			DefaultBcID:          29,
			ForecastDetailID:     740,
		},
		Cache: CacheConfig{
			OptionsTTLSeconds: 300,
		},
		Export: ExportConfig{
			Title:  "PRD0000679: New Product-Leela",
			Status: "Draft",
		},
		Planner: PlannerConfig{
			HorizonMonths:          24,
			ViewIdleTimeoutMinutes: 120,
		},
	}
}

func isPortSpecifiedInToml(data []byte) bool {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return false
	}

	serverAny, ok := raw["server"]
	if !ok {
		return false
	}

	serverMap, ok := serverAny.(map[string]any)
	if !ok {
		return false
	}

	_, ok = serverMap["port"]
	return ok
}

// GetExeDir 获取可执行文件所在目录
func GetExeDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Dir(exe), nil
}

// DefaultPath 默认配置文件路径（可执行文件同目录）
func DefaultPath() string {
	exeDir, err := GetExeDir()
	if err != nil {
		// 无法获取可执行文件目录，使用当前目录
		exeDir = "."
	}
	return filepath.Join(exeDir, "config.toml")
}

// LoadConfigWithInfo 从 config.toml 加载配置并返回元信息
// path 为空时读取可执行文件同目录下的 config.toml；CAPACITY_* 环境变量优先
func LoadConfigWithInfo(path string) (*AppConfig, LoadConfigInfo, error) {
	if path == "" {
		path = DefaultPath()
	}
	info := LoadConfigInfo{Path: path}
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		info.PortSpecified = isPortSpecifiedInToml(data)
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, info, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// 配置文件不存在，使用默认配置
	default:
		return nil, info, err
	}

	if _, ok := os.LookupEnv("CAPACITY_PORT"); ok {
		info.PortSpecified = true
	}
	if err := env.Parse(config); err != nil {
		return nil, info, fmt.Errorf("parse env: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, info, err
	}
	return config, info, nil
}

// LoadConfig 从 config.toml 加载配置
func LoadConfig(path string) (*AppConfig, error) {
	config, _, err := LoadConfigWithInfo(path)
	return config, err
}

// Validate 校验配置
func (c *AppConfig) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.Planner.HorizonMonths <= 0 {
		return fmt.Errorf("planner.horizon_months must be positive")
	}
	if c.API.BaseURL == "" && !c.Data.ServeReferenceAPI {
		return fmt.Errorf("api.base_url is empty and the reference data api is disabled")
	}
	if c.API.MaxParallelWrites < 0 {
		return fmt.Errorf("api.max_parallel_writes must not be negative")
	}
	return nil
}

// SaveConfig 保存配置到 config.toml
func SaveConfig(config *AppConfig, path string) error {
	if path == "" {
		path = DefaultPath()
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteTOML(f, config); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteTOML 以 TOML 格式输出配置
func WriteTOML(w io.Writer, config *AppConfig) error {
	return toml.NewEncoder(w).SetIndentTables(true).Encode(config)
}

// EnsureDataDir 确保数据目录存在
// 相对路径以可执行文件所在目录为基准
func EnsureDataDir(config *AppConfig) (string, error) {
	dataDir := config.Data.DataDir
	if !filepath.IsAbs(dataDir) {
		exeDir, err := GetExeDir()
		if err != nil {
			exeDir = "."
		}
		dataDir = filepath.Join(exeDir, dataDir)
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", err
	}

	// 创建子目录
	subdirs := []string{"exports", "fixtures"}
	for _, subdir := range subdirs {
		path := filepath.Join(dataDir, subdir)
		if err := os.MkdirAll(path, 0755); err != nil {
			return "", err
		}
	}

	return dataDir, nil
}
