package config

const (
	defaultConfigPath         = "~/.config/allenpipe/config.toml"
	defaultCacheDir           = "~/.cache/allenpipe"
	defaultLogDir             = "~/.local/share/allenpipe/logs"
	defaultManifestName       = "manifest.json"
	defaultSourceDriver       = SourceRelease
	defaultWarehouseDriver    = WarehouseSQLite
	defaultReleaseRegion      = "us-west-2"
	defaultReleasePrefix      = "visual-behavior-ophys"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultCacheEnabled       = true
	defaultCacheMaxAgeHours   = 0
	warehouseDSNEnv           = "ALLENPIPE_WAREHOUSE_DSN"
	releaseBucketEnv          = "ALLENPIPE_RELEASE_BUCKET"
	releaseAccessKeyEnv       = "AWS_ACCESS_KEY_ID"
	releaseSecretAccessKeyEnv = "AWS_SECRET_ACCESS_KEY"
)

// Source drivers.
const (
	SourceRelease   = "release"
	SourceWarehouse = "warehouse"
)

// Warehouse SQL drivers.
const (
	WarehouseSQLite   = "sqlite"
	WarehousePostgres = "pgx"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			CacheDir: defaultCacheDir,
			LogDir:   defaultLogDir,
		},
		Cache: Cache{
			Enabled:     defaultCacheEnabled,
			MaxAgeHours: defaultCacheMaxAgeHours,
		},
		Source: Source{
			Driver: defaultSourceDriver,
			Release: Release{
				Region: defaultReleaseRegion,
				Prefix: defaultReleasePrefix,
			},
			Warehouse: Warehouse{
				Driver: defaultWarehouseDriver,
			},
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
