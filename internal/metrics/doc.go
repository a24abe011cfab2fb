// Package metrics records batch-run counters in a private Prometheus registry
// and writes them in the text exposition format at the end of an invocation,
// ready for a node_exporter textfile collector.
//
// A nil *Recorder is valid and records nothing.
package metrics
