// Package enrich derives the published project tables from raw metadata.
//
// Every function here is pure: inputs are copied, never mutated, and the
// output depends only on the input rows. Missing or malformed source fields
// produce nil derived columns rather than errors.
//
// Prior-exposure columns count, per mouse and in acquisition-date order, how
// many earlier sessions shared the current session's category. Session
// number, image set, passive flag, and experience level come from parsing the
// session type.
package enrich
