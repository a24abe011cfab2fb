// Package preflight provides readiness checks for the filesystem paths and
// the metadata source that allenpipe depends on.
//
// The CLI "allenpipe config check" runs RunAll and prints one line per
// result. Each check is gated by its config setting; a disabled cache or an
// unset metrics path is skipped.
package preflight
