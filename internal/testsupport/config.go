package testsupport

import (
	"path/filepath"
	"testing"

	"allenpipe/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.CacheDir = filepath.Join(base, "cache")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Cache.Manifest = filepath.Join(base, "cache", "manifest.json")
	cfgVal.Source.Release.Root = filepath.Join(base, "release")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithCacheDisabled turns off the on-disk project cache.
func WithCacheDisabled() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Cache.Enabled = false
	}
}

// WithMaxAgeHours sets the cache staleness window.
func WithMaxAgeHours(hours int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Cache.MaxAgeHours = hours
	}
}

// WithSQLiteWarehouse points the source at a SQLite warehouse file inside the
// test base directory.
func WithSQLiteWarehouse() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Source.Driver = config.SourceWarehouse
		b.cfg.Source.Warehouse.Driver = config.WarehouseSQLite
		b.cfg.Source.Warehouse.DSN = filepath.Join(b.baseDir, "warehouse.db")
	}
}

// WithMetricsTextfile enables the end-of-run metrics dump.
func WithMetricsTextfile() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Metrics.TextfilePath = filepath.Join(b.baseDir, "metrics", "allenpipe.prom")
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.CacheDir)
}
