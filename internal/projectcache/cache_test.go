package projectcache_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"allenpipe/internal/logging"
	"allenpipe/internal/metadata"
	"allenpipe/internal/metrics"
	"allenpipe/internal/projectcache"
	"allenpipe/internal/services"
	"allenpipe/internal/testsupport"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

type harness struct {
	api   *testsupport.FakeAPI
	cache *projectcache.Cache
	clock *fakeClock
	logs  *bytes.Buffer
	rec   *metrics.Recorder
	dir   string
}

func newHarness(t *testing.T, mutate func(*projectcache.Options)) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	var logs bytes.Buffer
	logger, err := logging.NewWithWriter(&logs, logging.Options{Format: "json", Level: "info"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	h := &harness{
		api:   testsupport.NewFakeAPI(),
		clock: &fakeClock{now: time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)},
		logs:  &logs,
		rec:   metrics.New(),
		dir:   cfg.Paths.CacheDir,
	}
	opts := projectcache.Options{
		Dir:       cfg.Paths.CacheDir,
		Manifest:  cfg.Cache.Manifest,
		Enabled:   true,
		Policy:    projectcache.Policy{Clock: h.clock.Now},
		Logger:    logger,
		Metrics:   h.rec,
		LockRetry: 5 * time.Millisecond,
	}
	if mutate != nil {
		mutate(&opts)
	}
	h.cache = projectcache.New(h.api, opts)
	return h
}

func (h *harness) messages(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, line := range strings.Split(strings.TrimSpace(h.logs.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("parse log line %q: %v", line, err)
		}
		if msg, ok := entry["msg"].(string); ok {
			out = append(out, msg)
		}
	}
	return out
}

func TestBehaviorSessionTableIsCachedAfterFirstFetch(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	first, err := h.cache.BehaviorSessionTable(ctx)
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	second, err := h.cache.BehaviorSessionTable(ctx)
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}

	if len(first) != 8 {
		t.Fatalf("expected 8 rows, got %d", len(first))
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatal("cached table differs from the freshly fetched one")
	}
	if h.api.BehaviorCalls != 1 || h.api.SessionCalls != 1 || h.api.ExperimentCalls != 1 {
		t.Fatalf("unexpected fetch counts: behavior=%d sessions=%d experiments=%d",
			h.api.BehaviorCalls, h.api.SessionCalls, h.api.ExperimentCalls)
	}
	if h.api.StageCalls != 1 || !reflect.DeepEqual(h.api.StageRequests[0], []string{testsupport.HabituationForagingID}) {
		t.Fatalf("unexpected stage parameter requests: %v", h.api.StageRequests)
	}

	m, err := projectcache.ReadManifest(h.cache.ManifestPath())
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	entry, ok := m.PathInfo[projectcache.TableBehaviorSessions]
	if !ok {
		t.Fatalf("manifest missing behavior_sessions entry: %+v", m)
	}
	if entry.Spec != h.cache.TablePath(projectcache.TableBehaviorSessions) {
		t.Fatalf("manifest spec = %q", entry.Spec)
	}
	if entry.Rows != 8 || entry.Fingerprint == "" || !entry.FetchedAt.Equal(h.clock.now) {
		t.Fatalf("unexpected manifest entry: %+v", entry)
	}
	if _, err := os.Stat(entry.Spec); err != nil {
		t.Fatalf("table file missing: %v", err)
	}
}

func TestCachedTableIsBitIdenticalAcrossCalls(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if _, err := h.cache.OphysExperimentTable(ctx, false); err != nil {
		t.Fatal(err)
	}
	path := h.cache.TablePath(projectcache.TableOphysExperiments)
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := h.cache.Invalidate(ctx, projectcache.TableOphysExperiments); err != nil {
		t.Fatal(err)
	}
	if _, err := h.cache.OphysExperimentTable(ctx, false); err != nil {
		t.Fatal(err)
	}
	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Fatal("refetching unchanged source produced different bytes")
	}
}

func TestLookupLogSequence(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if _, err := h.cache.OphysSessionTable(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := h.cache.OphysSessionTable(ctx); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"Reading data from cache",
		"No cache file found.",
		"Fetching data from remote",
		"Writing data to cache",
		"Reading data from cache",
		"Reading data from cache",
	}
	if got := h.messages(t); !reflect.DeepEqual(got, want) {
		t.Fatalf("log sequence mismatch:\n got %q\nwant %q", got, want)
	}
}

func TestCacheDisabledWritesNothing(t *testing.T) {
	h := newHarness(t, func(o *projectcache.Options) { o.Enabled = false })
	ctx := context.Background()

	for range 2 {
		rows, err := h.cache.BehaviorSessionTable(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(rows) != 8 {
			t.Fatalf("expected 8 rows, got %d", len(rows))
		}
	}
	if h.api.BehaviorCalls != 2 {
		t.Fatalf("expected a fetch per call, got %d", h.api.BehaviorCalls)
	}
	if _, err := os.Stat(h.dir); !os.IsNotExist(err) {
		t.Fatalf("cache directory should not exist, stat err=%v", err)
	}
	if got := h.messages(t); !reflect.DeepEqual(got, []string{"Fetching data from remote", "Fetching data from remote"}) {
		t.Fatalf("unexpected log sequence %q", got)
	}
}

func TestStaleEntriesAreRefetched(t *testing.T) {
	h := newHarness(t, func(o *projectcache.Options) { o.Policy.MaxAge = time.Hour })
	ctx := context.Background()

	if _, err := h.cache.BehaviorSessionTable(ctx); err != nil {
		t.Fatal(err)
	}
	h.clock.now = h.clock.now.Add(30 * time.Minute)
	if _, err := h.cache.BehaviorSessionTable(ctx); err != nil {
		t.Fatal(err)
	}
	if h.api.BehaviorCalls != 1 {
		t.Fatalf("fresh entry refetched: %d calls", h.api.BehaviorCalls)
	}

	h.clock.now = h.clock.now.Add(2 * time.Hour)
	if _, err := h.cache.BehaviorSessionTable(ctx); err != nil {
		t.Fatal(err)
	}
	if h.api.BehaviorCalls != 2 {
		t.Fatalf("stale entry not refetched: %d calls", h.api.BehaviorCalls)
	}
	if count := counterValue(t, h.rec, metrics.LookupStale); count != 1 {
		t.Fatalf("expected one stale lookup, got %v", count)
	}
}

func TestZeroMaxAgeNeverExpires(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if _, err := h.cache.BehaviorSessionTable(ctx); err != nil {
		t.Fatal(err)
	}
	h.clock.now = h.clock.now.Add(24 * 365 * time.Hour)
	if _, err := h.cache.BehaviorSessionTable(ctx); err != nil {
		t.Fatal(err)
	}
	if h.api.BehaviorCalls != 1 {
		t.Fatalf("expected a single fetch, got %d", h.api.BehaviorCalls)
	}
}

func TestFetchErrorsAreNotMaskedByStaleCache(t *testing.T) {
	h := newHarness(t, func(o *projectcache.Options) { o.Policy.MaxAge = time.Hour })
	ctx := context.Background()

	if _, err := h.cache.BehaviorSessionTable(ctx); err != nil {
		t.Fatal(err)
	}
	h.clock.now = h.clock.now.Add(2 * time.Hour)
	boom := services.Wrap(services.ErrFetch, "fake", "behavior", "remote unavailable", nil)
	h.api.Err = boom

	rows, err := h.cache.BehaviorSessionTable(ctx)
	if err != boom {
		t.Fatalf("expected the fetch error unchanged, got %v", err)
	}
	if rows != nil {
		t.Fatalf("expected no rows on failure, got %d", len(rows))
	}
}

func TestInvalidateForcesRefetch(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if _, err := h.cache.OphysSessionTable(ctx); err != nil {
		t.Fatal(err)
	}
	if err := h.cache.Invalidate(ctx, projectcache.TableOphysSessions); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, err := os.Stat(h.cache.TablePath(projectcache.TableOphysSessions)); !os.IsNotExist(err) {
		t.Fatalf("table file should be removed, stat err=%v", err)
	}
	if _, err := h.cache.OphysSessionTable(ctx); err != nil {
		t.Fatal(err)
	}
	if h.api.SessionCalls != 2 {
		t.Fatalf("expected refetch after invalidate, got %d calls", h.api.SessionCalls)
	}
}

func TestClearRemovesEverything(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if _, err := h.cache.BehaviorSessionTable(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := h.cache.SessionData(ctx, 88); err != nil {
		t.Fatal(err)
	}
	if err := h.cache.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	for _, path := range []string{
		h.cache.ManifestPath(),
		h.cache.TablePath(projectcache.TableBehaviorSessions),
		h.cache.TablePath("session_data/88"),
	} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Fatalf("%s should be removed, stat err=%v", path, err)
		}
	}
	statuses, err := h.cache.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range statuses {
		if s.Cached {
			t.Fatalf("%s still reported as cached", s.Table)
		}
	}
}

func TestPassedOnlyIsDerivedFromTheMaterializedTable(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	all, err := h.cache.OphysExperimentTable(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	passed, err := h.cache.OphysExperimentTable(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	if h.api.ExperimentCalls != 1 {
		t.Fatalf("passed-only view triggered a refetch: %d calls", h.api.ExperimentCalls)
	}
	if len(all) != 10 || len(passed) != 5 {
		t.Fatalf("unexpected sizes: all=%d passed=%d", len(all), len(passed))
	}
	for _, row := range passed {
		if row.ExperimentWorkflowState != metadata.StatePassed {
			t.Fatalf("experiment %d in passed view with state %q", row.OphysExperimentID, row.ExperimentWorkflowState)
		}
		if len(row.Containers) == 0 {
			t.Fatalf("experiment %d has no containers", row.OphysExperimentID)
		}
		for _, c := range row.Containers {
			if c.ContainerWorkflowState != metadata.StatePublished {
				t.Fatalf("experiment %d kept container %d in state %q", row.OphysExperimentID, c.OphysContainerID, c.ContainerWorkflowState)
			}
		}
	}
}

func TestOphysSessionsByExperiment(t *testing.T) {
	h := newHarness(t, nil)
	rows, err := h.cache.OphysSessionsByExperiment(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 10 {
		t.Fatalf("expected one row per experiment, got %d", len(rows))
	}
	if rows[0].OphysExperimentID != 1000 || rows[0].OphysSessionID != 88 {
		t.Fatalf("unexpected first row: experiment=%d session=%d", rows[0].OphysExperimentID, rows[0].OphysSessionID)
	}
}

func TestSessionDataIsCached(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	doc, err := h.cache.SessionData(ctx, 89)
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]int64
	if err := json.Unmarshal(doc, &decoded); err != nil {
		t.Fatalf("decode session data: %v", err)
	}
	if decoded["ophys_session_id"] != 89 {
		t.Fatalf("unexpected document %s", doc)
	}
	if _, err := os.Stat(h.cache.TablePath("session_data/89")); err != nil {
		t.Fatalf("session document not materialized: %v", err)
	}

	if _, err := h.cache.SessionData(ctx, 12345); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for unknown session, got %v", err)
	}
}

func TestManifestVersionMismatchIsStale(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if _, err := h.cache.BehaviorSessionTable(ctx); err != nil {
		t.Fatal(err)
	}
	m, err := projectcache.ReadManifest(h.cache.ManifestPath())
	if err != nil {
		t.Fatal(err)
	}
	m.Version = projectcache.ManifestVersion + 1
	testsupport.WriteJSON(t, h.cache.ManifestPath(), m)

	if _, err := h.cache.BehaviorSessionTable(ctx); err != nil {
		t.Fatal(err)
	}
	if h.api.BehaviorCalls != 2 {
		t.Fatalf("expected refetch on version mismatch, got %d calls", h.api.BehaviorCalls)
	}
	m, err = projectcache.ReadManifest(h.cache.ManifestPath())
	if err != nil {
		t.Fatal(err)
	}
	if m.Version != projectcache.ManifestVersion {
		t.Fatalf("manifest not rewritten at current version: %d", m.Version)
	}
}

func TestCorruptTableFileIsRefetched(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if _, err := h.cache.BehaviorSessionTable(ctx); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(h.cache.TablePath(projectcache.TableBehaviorSessions), []byte("[{"), 0o644); err != nil {
		t.Fatal(err)
	}
	rows, err := h.cache.BehaviorSessionTable(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 8 || h.api.BehaviorCalls != 2 {
		t.Fatalf("expected a clean refetch, rows=%d calls=%d", len(rows), h.api.BehaviorCalls)
	}
}

func TestLockedCacheDirectoryFails(t *testing.T) {
	h := newHarness(t, nil)
	if err := os.MkdirAll(h.dir, 0o755); err != nil {
		t.Fatal(err)
	}
	other := flock.New(filepath.Join(h.dir, ".lock"))
	locked, err := other.TryLock()
	if err != nil || !locked {
		t.Fatalf("acquire competing lock: locked=%v err=%v", locked, err)
	}
	defer other.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := h.cache.BehaviorSessionTable(ctx); !errors.Is(err, services.ErrCache) {
		t.Fatalf("expected cache error while locked, got %v", err)
	}
	if h.api.BehaviorCalls != 0 {
		t.Fatalf("fetched while the directory was locked: %d calls", h.api.BehaviorCalls)
	}
}

func TestStatusReportsCachedTables(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if _, err := h.cache.BehaviorSessionTable(ctx); err != nil {
		t.Fatal(err)
	}
	statuses, err := h.cache.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(statuses) != 3 {
		t.Fatalf("expected three tables, got %+v", statuses)
	}
	byTable := map[string]projectcache.TableStatus{}
	for _, s := range statuses {
		byTable[s.Table] = s
	}
	behavior := byTable[projectcache.TableBehaviorSessions]
	if !behavior.Cached || !behavior.Verified || behavior.Stale || behavior.Rows != 8 {
		t.Fatalf("unexpected behavior status: %+v", behavior)
	}
	if byTable[projectcache.TableOphysExperiments].Cached {
		t.Fatal("experiments reported cached before any fetch")
	}
}

func counterValue(t *testing.T, rec *metrics.Recorder, result string) float64 {
	t.Helper()
	families, err := rec.Registry().Gather()
	if err != nil {
		t.Fatal(err)
	}
	var total float64
	for _, family := range families {
		if family.GetName() != "allenpipe_cache_lookups_total" {
			continue
		}
		for _, m := range family.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "result" && label.GetValue() == result {
					total += m.GetCounter().GetValue()
				}
			}
		}
	}
	return total
}
