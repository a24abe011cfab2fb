// Package fetch defines the contract metadata sources satisfy and a factory
// that builds the configured source.
//
// Two sources ship with allenpipe: release, which reads a published JSON
// table release from a directory or an S3 bucket, and warehouse, which
// queries a SQL database (SQLite or PostgreSQL). Both return raw records from
// the metadata package; enrichment and caching happen elsewhere.
package fetch
