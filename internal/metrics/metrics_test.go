package metrics_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"allenpipe/internal/metrics"
)

func TestRecorderCountsAndWritesTextfile(t *testing.T) {
	rec := metrics.New()
	rec.CacheLookup("behavior_sessions", metrics.LookupMiss)
	rec.CacheLookup("behavior_sessions", metrics.LookupHit)
	rec.CacheLookup("behavior_sessions", metrics.LookupHit)
	rec.ObserveFetch("behavior_sessions", 20*time.Millisecond, "")
	rec.ObserveFetch("ophys_sessions", time.Second, "fetch")
	rec.SetTableRows("behavior_sessions", 8)
	rec.NWBWrite(metrics.WriteSuccess)

	path := filepath.Join(t.TempDir(), "textfile", "allenpipe.prom")
	if err := rec.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	text := string(data)
	for _, want := range []string{
		`allenpipe_cache_lookups_total{result="hit",table="behavior_sessions"} 2`,
		`allenpipe_cache_lookups_total{result="miss",table="behavior_sessions"} 1`,
		`allenpipe_fetch_errors_total{kind="fetch",table="ophys_sessions"} 1`,
		`allenpipe_cache_table_rows{table="behavior_sessions"} 8`,
		`allenpipe_nwb_writes_total{result="success"} 1`,
		`allenpipe_last_run_timestamp_seconds`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("textfile missing %q", want)
		}
	}

	count, err := testutil.GatherAndCount(rec.Registry(), "allenpipe_fetch_duration_seconds")
	if err != nil {
		t.Fatalf("GatherAndCount: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 fetch duration series, got %d", count)
	}
}

func TestNilRecorderIsNoop(t *testing.T) {
	var rec *metrics.Recorder
	rec.CacheLookup("x", metrics.LookupHit)
	rec.ObserveFetch("x", time.Second, "fetch")
	rec.NWBWrite(metrics.WriteFailure)
	if err := rec.WriteTextfile(filepath.Join(t.TempDir(), "never.prom")); err != nil {
		t.Fatalf("nil recorder should not fail: %v", err)
	}
}

func TestEmptyPathSkipsWrite(t *testing.T) {
	if err := metrics.New().WriteTextfile(""); err != nil {
		t.Fatalf("expected empty path to be ignored: %v", err)
	}
}
