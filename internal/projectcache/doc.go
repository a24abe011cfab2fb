// Package projectcache materializes enriched project metadata tables on disk.
//
// Each table is fetched from a fetch.API, enriched, written to
// <cache_dir>/<table>.json and recorded in a JSON manifest. Later lookups are
// served from disk until the staleness Policy, an explicit Invalidate, or a
// Clear forces a refetch. Filtered views such as the passed-only experiment
// table are derived from the materialized copy on read.
package projectcache
