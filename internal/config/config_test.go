package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, info, err := LoadConfigWithInfo(filepath.Join(t.TempDir(), "none.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if info.PortSpecified {
		t.Error("port should not be marked as specified")
	}
	def := DefaultConfig()
	if cfg.Server.Port != def.Server.Port || cfg.API.TransformationUnitID != 679 || cfg.API.DefaultBcID != 29 || cfg.API.ForecastDetailID != 740 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Planner.HorizonMonths != 24 {
		t.Errorf("horizon = %d", cfg.Planner.HorizonMonths)
	}
}

func TestLoadFromToml(t *testing.T) {
	path := writeConfig(t, `
[server]
port = 9000

[api]
base_url = "http://capacity.local/api"
timeout_seconds = 3
max_parallel_writes = 2

[cache]
options_ttl_seconds = 60

[planner]
horizon_months = 12
view_idle_timeout_minutes = 0
`)
	cfg, info, err := LoadConfigWithInfo(path)
	if err != nil {
		t.Fatal(err)
	}
	if !info.PortSpecified || cfg.Server.Port != 9000 {
		t.Errorf("port = %d, specified = %v", cfg.Server.Port, info.PortSpecified)
	}
	if cfg.API.BaseURL != "http://capacity.local/api" || cfg.API.Timeout() != 3*time.Second {
		t.Errorf("api = %+v", cfg.API)
	}
	if cfg.Cache.OptionsTTL() != time.Minute {
		t.Errorf("ttl = %v", cfg.Cache.OptionsTTL())
	}
	if cfg.Planner.ViewIdleTimeout() != 0 {
		t.Errorf("idle timeout = %v", cfg.Planner.ViewIdleTimeout())
	}
	// 未出现的键保留默认值
	if cfg.API.DefaultBcID != 29 || cfg.Export.Status != "Draft" {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestEnvOverridesToml(t *testing.T) {
	path := writeConfig(t, "[api]\nbase_url = \"http://from-file\"\n")
	t.Setenv("CAPACITY_API_BASE_URL", "http://from-env")
	t.Setenv("CAPACITY_PORT", "7001")
	t.Setenv("CAPACITY_REDIS_ADDR", "localhost:6379")

	cfg, info, err := LoadConfigWithInfo(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.API.BaseURL != "http://from-env" {
		t.Errorf("base url = %q", cfg.API.BaseURL)
	}
	if cfg.Server.Port != 7001 || !info.PortSpecified {
		t.Errorf("port = %d, specified = %v", cfg.Server.Port, info.PortSpecified)
	}
	if cfg.Cache.RedisAddr != "localhost:6379" {
		t.Errorf("redis = %q", cfg.Cache.RedisAddr)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AppConfig)
	}{
		{"端口越界", func(c *AppConfig) { c.Server.Port = 70000 }},
		{"月份数为 0", func(c *AppConfig) { c.Planner.HorizonMonths = 0 }},
		{"无数据接口", func(c *AppConfig) { c.Data.ServeReferenceAPI = false }},
		{"并发数为负", func(c *AppConfig) { c.API.MaxParallelWrites = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := DefaultConfig()
	cfg.Export.Title = "PRD0000700: Payments"
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatal(err)
	}
	got, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Export.Title != cfg.Export.Title {
		t.Errorf("title = %q", got.Export.Title)
	}
}

func TestEnsureDataDir(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Data.DataDir = filepath.Join(t.TempDir(), "data")
	dir, err := EnsureDataDir(cfg)
	if err != nil {
		t.Fatal(err)
	}
	for _, sub := range []string{"exports", "fixtures"} {
		if fi, err := os.Stat(filepath.Join(dir, sub)); err != nil || !fi.IsDir() {
			t.Errorf("missing %s: %v", sub, err)
		}
	}
}
