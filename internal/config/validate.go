package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateSource(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateCache() error {
	if c.Cache.MaxAgeHours < 0 {
		return errors.New("cache.max_age_hours must be zero or positive")
	}
	if c.Cache.Enabled && strings.TrimSpace(c.Paths.CacheDir) == "" {
		return errors.New("paths.cache_dir must be set when cache.enabled is true")
	}
	return nil
}

func (c *Config) validateSource() error {
	switch c.Source.Driver {
	case SourceRelease:
		rel := c.Source.Release
		if rel.Root == "" && rel.Bucket == "" {
			defaultPath, err := DefaultConfigPath()
			if err != nil {
				defaultPath = defaultConfigPath
			}
			return fmt.Errorf("source.release.root or source.release.bucket is required. Set %s or edit %s (create with 'allenpipe config init')", releaseBucketEnv, defaultPath)
		}
		if rel.Root != "" && rel.Bucket != "" {
			return errors.New("source.release.root and source.release.bucket are mutually exclusive")
		}
		if (rel.AccessKeyID == "") != (rel.SecretAccessKey == "") {
			return errors.New("source.release.access_key_id and source.release.secret_access_key must be set together")
		}
	case SourceWarehouse:
		wh := c.Source.Warehouse
		switch wh.Driver {
		case WarehouseSQLite, WarehousePostgres:
		default:
			return fmt.Errorf("source.warehouse.driver: unsupported value %q (want %q or %q)", wh.Driver, WarehouseSQLite, WarehousePostgres)
		}
		if wh.DSN == "" {
			return fmt.Errorf("source.warehouse.dsn is required. Set %s or edit the config file", warehouseDSNEnv)
		}
	default:
		return fmt.Errorf("source.driver: unsupported value %q (want %q or %q)", c.Source.Driver, SourceRelease, SourceWarehouse)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
