// Package warehouse serves project metadata from a SQL database.
//
// The same schema runs on SQLite (modernc.org/sqlite, for exported warehouse
// files and tests) and PostgreSQL (pgx, for a LIMS replica). Queries are
// written with ? placeholders and rebound to $n for PostgreSQL. Dates are
// stored as RFC 3339 text and genotype line lists as JSON arrays so both
// dialects read them the same way.
//
// Migrate applies the embedded schema; Import loads tables, typically from a
// release, so a warehouse can be bootstrapped offline.
package warehouse
