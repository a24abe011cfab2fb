// Package logging assembles structured slog loggers and formatting helpers used
// across allenpipe commands.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so cache and writer code can tag
// log lines with run IDs, table names, and session identifiers. The package
// also provides a no-op logger for tests and wiring code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup so every component
// emits records with the same shape.
package logging
