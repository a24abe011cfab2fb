package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"allenpipe/internal/config"
)

func TestLoadDefaultConfigUsesEnvBucketAndExpandsPaths(t *testing.T) {
	t.Setenv("ALLENPIPE_RELEASE_BUCKET", "vbo-release")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantCache := filepath.Join(tempHome, ".cache", "allenpipe")
	if cfg.Paths.CacheDir != wantCache {
		t.Fatalf("unexpected cache dir: got %q want %q", cfg.Paths.CacheDir, wantCache)
	}
	if cfg.Cache.Manifest != filepath.Join(wantCache, "manifest.json") {
		t.Fatalf("unexpected manifest path: %q", cfg.Cache.Manifest)
	}
	if !cfg.Cache.Enabled {
		t.Fatal("expected cache enabled by default")
	}
	if cfg.MaxAge() != 0 {
		t.Fatalf("expected zero max age by default, got %s", cfg.MaxAge())
	}
	if cfg.Source.Driver != config.SourceRelease {
		t.Fatalf("unexpected source driver: %q", cfg.Source.Driver)
	}
	if cfg.Source.Release.Bucket != "vbo-release" {
		t.Fatalf("expected bucket from env, got %q", cfg.Source.Release.Bucket)
	}
	if cfg.Source.Release.Region != config.Default().Source.Release.Region {
		t.Fatalf("unexpected region: %q", cfg.Source.Release.Region)
	}
	if cfg.Logging.Format != "console" {
		t.Fatalf("unexpected log format: %q", cfg.Logging.Format)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.CacheDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "allenpipe.toml")

	type payload struct {
		Paths struct {
			CacheDir string `toml:"cache_dir"`
		} `toml:"paths"`
		Cache struct {
			MaxAgeHours int `toml:"max_age_hours"`
		} `toml:"cache"`
		Source struct {
			Driver    string `toml:"driver"`
			Warehouse struct {
				Driver string `toml:"driver"`
				DSN    string `toml:"dsn"`
			} `toml:"warehouse"`
		} `toml:"source"`
		Logging struct {
			Format string `toml:"format"`
		} `toml:"logging"`
	}
	custom := payload{}
	custom.Paths.CacheDir = filepath.Join(tempDir, "cache")
	custom.Cache.MaxAgeHours = 12
	custom.Source.Driver = "Warehouse"
	custom.Source.Warehouse.Driver = "postgres"
	custom.Source.Warehouse.DSN = "postgres://lims@localhost/lims2"
	custom.Logging.Format = "JSON"
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Paths.CacheDir != filepath.Join(tempDir, "cache") {
		t.Fatalf("unexpected cache dir: %q", cfg.Paths.CacheDir)
	}
	if cfg.MaxAge() != 12*time.Hour {
		t.Fatalf("expected 12h max age, got %s", cfg.MaxAge())
	}
	if cfg.Source.Driver != config.SourceWarehouse {
		t.Fatalf("expected warehouse driver, got %q", cfg.Source.Driver)
	}
	if cfg.Source.Warehouse.Driver != config.WarehousePostgres {
		t.Fatalf("expected postgres alias to normalize to pgx, got %q", cfg.Source.Warehouse.Driver)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected lowercased log format, got %q", cfg.Logging.Format)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "allenpipe.toml")
	if err := os.WriteFile(configPath, []byte("[paths]\nstaging_dir = \"/tmp\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected unknown field to be rejected")
	}
}

func TestEnvVarFillsWarehouseDSN(t *testing.T) {
	t.Setenv("ALLENPIPE_WAREHOUSE_DSN", "file:warehouse.db")
	configPath := filepath.Join(t.TempDir(), "allenpipe.toml")
	if err := os.WriteFile(configPath, []byte("[source]\ndriver = \"warehouse\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Source.Warehouse.DSN != "file:warehouse.db" {
		t.Fatalf("expected DSN from env, got %q", cfg.Source.Warehouse.DSN)
	}
	if cfg.Source.Warehouse.Driver != config.WarehouseSQLite {
		t.Fatalf("expected sqlite default driver, got %q", cfg.Source.Warehouse.Driver)
	}
}

func TestValidate(t *testing.T) {
	base := func() config.Config {
		cfg := config.Default()
		cfg.Paths.CacheDir = "/tmp/allenpipe-cache"
		cfg.Source.Release.Root = "/data/release"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{name: "valid release root", mutate: func(*config.Config) {}},
		{
			name:    "missing release location",
			mutate:  func(c *config.Config) { c.Source.Release.Root = "" },
			wantErr: "source.release.root or source.release.bucket",
		},
		{
			name:    "root and bucket together",
			mutate:  func(c *config.Config) { c.Source.Release.Bucket = "bucket" },
			wantErr: "mutually exclusive",
		},
		{
			name:    "half credentials",
			mutate:  func(c *config.Config) { c.Source.Release.AccessKeyID = "AKIA" },
			wantErr: "must be set together",
		},
		{
			name: "unknown warehouse driver",
			mutate: func(c *config.Config) {
				c.Source.Driver = config.SourceWarehouse
				c.Source.Warehouse.Driver = "mysql"
				c.Source.Warehouse.DSN = "x"
			},
			wantErr: "source.warehouse.driver",
		},
		{
			name: "warehouse without dsn",
			mutate: func(c *config.Config) {
				c.Source.Driver = config.SourceWarehouse
			},
			wantErr: "source.warehouse.dsn",
		},
		{
			name:    "unknown source driver",
			mutate:  func(c *config.Config) { c.Source.Driver = "ftp" },
			wantErr: "source.driver",
		},
		{
			name:    "negative max age",
			mutate:  func(c *config.Config) { c.Cache.MaxAgeHours = -1 },
			wantErr: "max_age_hours",
		},
		{
			name:    "bad log format",
			mutate:  func(c *config.Config) { c.Logging.Format = "xml" },
			wantErr: "logging.format",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config should load: %v", err)
	}
	if !exists {
		t.Fatal("expected sample file to exist")
	}
	if cfg.Source.Release.Root == "" {
		t.Fatal("expected sample release root")
	}
}
