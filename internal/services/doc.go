// Package services defines shared utilities consumed by the cache, fetch
// sources, and the NWB writer.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, table names, and session identifiers
//     for logging.
//   - Structured error markers plus the Wrap helper so callers can classify
//     failures (validation vs write vs fetch) with errors.Is.
//
// Use these helpers when wiring new components so failure reporting stays
// uniform across both CLIs.
package services
