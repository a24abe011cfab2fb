// Package metadata defines the raw project metadata records returned by fetch
// sources and the parsers that turn free-form fields into typed values.
//
// Records mirror the behavior session, ophys session, and ophys experiment
// tables. Every optional column is a pointer (or a nil slice) so a missing
// value stays distinguishable from a zero value all the way to the cache file.
//
// The parsers (cre line, reporter line, indicator, session number, image set)
// never fail: unrecognized input yields nil.
package metadata
