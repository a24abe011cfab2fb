package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeCache(); err != nil {
		return err
	}
	if err := c.normalizeSource(); err != nil {
		return err
	}
	c.normalizeLogging()
	return c.normalizeMetrics()
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		c.Paths.CacheDir = defaultCacheDir
	}
	if c.Paths.CacheDir, err = expandPath(c.Paths.CacheDir); err != nil {
		return fmt.Errorf("paths.cache_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeCache() error {
	var err error
	c.Cache.Manifest = strings.TrimSpace(c.Cache.Manifest)
	if c.Cache.Manifest == "" {
		c.Cache.Manifest = filepath.Join(c.Paths.CacheDir, defaultManifestName)
	}
	if c.Cache.Manifest, err = expandPath(c.Cache.Manifest); err != nil {
		return fmt.Errorf("cache.manifest: %w", err)
	}
	return nil
}

func (c *Config) normalizeSource() error {
	c.Source.Driver = strings.ToLower(strings.TrimSpace(c.Source.Driver))
	if c.Source.Driver == "" {
		c.Source.Driver = defaultSourceDriver
	}

	rel := &c.Source.Release
	rel.Root = strings.TrimSpace(rel.Root)
	if rel.Root != "" {
		var err error
		if rel.Root, err = expandPath(rel.Root); err != nil {
			return fmt.Errorf("source.release.root: %w", err)
		}
	}
	rel.Bucket = strings.TrimSpace(rel.Bucket)
	if rel.Bucket == "" && rel.Root == "" {
		if value, ok := os.LookupEnv(releaseBucketEnv); ok {
			rel.Bucket = strings.TrimSpace(value)
		}
	}
	rel.Prefix = strings.Trim(strings.TrimSpace(rel.Prefix), "/")
	rel.Region = strings.TrimSpace(rel.Region)
	if rel.Region == "" {
		rel.Region = defaultReleaseRegion
	}
	rel.Endpoint = strings.TrimSpace(rel.Endpoint)
	rel.AccessKeyID = strings.TrimSpace(rel.AccessKeyID)
	if rel.AccessKeyID == "" {
		if value, ok := os.LookupEnv(releaseAccessKeyEnv); ok {
			rel.AccessKeyID = strings.TrimSpace(value)
		}
	}
	rel.SecretAccessKey = strings.TrimSpace(rel.SecretAccessKey)
	if rel.SecretAccessKey == "" {
		if value, ok := os.LookupEnv(releaseSecretAccessKeyEnv); ok {
			rel.SecretAccessKey = strings.TrimSpace(value)
		}
	}

	wh := &c.Source.Warehouse
	wh.Driver = strings.ToLower(strings.TrimSpace(wh.Driver))
	switch wh.Driver {
	case "":
		wh.Driver = defaultWarehouseDriver
	case "postgres", "postgresql":
		wh.Driver = WarehousePostgres
	}
	wh.DSN = strings.TrimSpace(wh.DSN)
	if wh.DSN == "" {
		if value, ok := os.LookupEnv(warehouseDSNEnv); ok {
			wh.DSN = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeMetrics() error {
	path := strings.TrimSpace(c.Metrics.TextfilePath)
	if path == "" {
		c.Metrics.TextfilePath = ""
		return nil
	}
	expanded, err := expandPath(path)
	if err != nil {
		return fmt.Errorf("metrics.textfile_path: %w", err)
	}
	c.Metrics.TextfilePath = expanded
	return nil
}
