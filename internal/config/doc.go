// Package config loads, normalizes, and validates allenpipe configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// ALLENPIPE_WAREHOUSE_DSN. The Config type centralizes every knob the cache
// CLI and the NWB writer need so fetch sources and cache locations are
// discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
