package projectcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gofrs/flock"

	"allenpipe/internal/config"
	"allenpipe/internal/enrich"
	"allenpipe/internal/fetch"
	"allenpipe/internal/fileutil"
	"allenpipe/internal/logging"
	"allenpipe/internal/metadata"
	"allenpipe/internal/metrics"
	"allenpipe/internal/services"
)

const component = "projectcache"

// Materialized table names. They double as manifest keys and file stems.
const (
	TableBehaviorSessions = "behavior_sessions"
	TableOphysSessions    = "ophys_sessions"
	TableOphysExperiments = "ophys_experiments"
)

// Tables lists the materialized tables in display order.
func Tables() []string {
	return []string{TableBehaviorSessions, TableOphysSessions, TableOphysExperiments}
}

const sessionDataPrefix = "session_data/"

const defaultLockRetry = 100 * time.Millisecond

// Options configures a Cache.
type Options struct {
	Dir      string
	Manifest string // Default: <Dir>/manifest.json
	Enabled  bool
	Policy   Policy
	Logger   *slog.Logger
	Metrics  *metrics.Recorder
	// LockRetry is the polling interval while waiting for the directory lock.
	LockRetry time.Duration
}

// Cache is the project metadata cache bound to one fetch source and one
// cache directory.
type Cache struct {
	api       fetch.API
	dir       string
	manifest  string
	enabled   bool
	policy    Policy
	logger    *slog.Logger
	metrics   *metrics.Recorder
	lock      *flock.Flock
	lockRetry time.Duration
}

// New builds a cache over api.
func New(api fetch.API, opts Options) *Cache {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	manifest := opts.Manifest
	if manifest == "" {
		manifest = filepath.Join(opts.Dir, "manifest.json")
	}
	retry := opts.LockRetry
	if retry <= 0 {
		retry = defaultLockRetry
	}
	return &Cache{
		api:       api,
		dir:       opts.Dir,
		manifest:  manifest,
		enabled:   opts.Enabled,
		policy:    opts.Policy,
		logger:    logging.NewComponentLogger(logger, component),
		metrics:   opts.Metrics,
		lock:      flock.New(filepath.Join(opts.Dir, ".lock")),
		lockRetry: retry,
	}
}

// NewFromConfig builds a cache using the [paths] and [cache] settings.
func NewFromConfig(cfg *config.Config, api fetch.API, logger *slog.Logger, recorder *metrics.Recorder) *Cache {
	return New(api, Options{
		Dir:      cfg.Paths.CacheDir,
		Manifest: cfg.Cache.Manifest,
		Enabled:  cfg.Cache.Enabled,
		Policy:   Policy{MaxAge: cfg.MaxAge()},
		Logger:   logger,
		Metrics:  recorder,
	})
}

// ManifestPath returns the manifest location.
func (c *Cache) ManifestPath() string {
	return c.manifest
}

// TablePath returns the file a table or session document is materialized to.
func (c *Cache) TablePath(key string) string {
	return filepath.Join(c.dir, filepath.FromSlash(key)+".json")
}

// BehaviorSessionTable returns the enriched behavior session table.
func (c *Cache) BehaviorSessionTable(ctx context.Context) ([]enrich.BehaviorSession, error) {
	return loadTable(ctx, c, TableBehaviorSessions, func(ctx context.Context) ([]enrich.BehaviorSession, error) {
		raw, err := c.fetchRaw(ctx, true, true, true)
		if err != nil {
			return nil, err
		}
		return enrich.BehaviorSessions(raw.behavior, raw.sessions, raw.experiments, raw.params), nil
	})
}

// OphysSessionTable returns the enriched ophys session table.
func (c *Cache) OphysSessionTable(ctx context.Context) ([]enrich.OphysSession, error) {
	return loadTable(ctx, c, TableOphysSessions, func(ctx context.Context) ([]enrich.OphysSession, error) {
		raw, err := c.fetchRaw(ctx, true, true, true)
		if err != nil {
			return nil, err
		}
		return enrich.OphysSessions(raw.sessions, raw.behavior, raw.experiments, raw.params), nil
	})
}

// OphysSessionsByExperiment returns the ophys session table indexed by
// ophys_experiment_id. It is derived from the materialized session table.
func (c *Cache) OphysSessionsByExperiment(ctx context.Context) ([]enrich.OphysSessionByExperiment, error) {
	rows, err := c.OphysSessionTable(ctx)
	if err != nil {
		return nil, err
	}
	return enrich.OphysSessionsByExperiment(rows), nil
}

// OphysExperimentTable returns the enriched ophys experiment table. With
// passedOnly set, only passed experiments with a published container are
// returned and their containers are narrowed to the published ones.
func (c *Cache) OphysExperimentTable(ctx context.Context, passedOnly bool) ([]enrich.OphysExperiment, error) {
	rows, err := loadTable(ctx, c, TableOphysExperiments, func(ctx context.Context) ([]enrich.OphysExperiment, error) {
		raw, err := c.fetchRaw(ctx, true, false, true)
		if err != nil {
			return nil, err
		}
		return enrich.OphysExperiments(raw.experiments, raw.behavior, raw.params), nil
	})
	if err != nil {
		return nil, err
	}
	if passedOnly {
		return enrich.PassedOnly(rows), nil
	}
	return rows, nil
}

// SessionData returns the session document for id, materializing it under
// <cache_dir>/session_data/<id>.json.
func (c *Cache) SessionData(ctx context.Context, id int64) (json.RawMessage, error) {
	ctx = services.WithSessionID(ctx, id)
	key := sessionDataPrefix + strconv.FormatInt(id, 10)
	data, err := c.materialize(ctx, key, func(ctx context.Context) ([]byte, int, error) {
		doc, err := c.api.SessionData(ctx, id)
		if err != nil {
			return nil, 0, err
		}
		if !json.Valid(doc) {
			return nil, 0, services.Wrap(services.ErrValidation, component, "session data", fmt.Sprintf("session %d is not valid JSON", id), nil)
		}
		return doc, 1, nil
	})
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

// Invalidate drops table from the manifest and removes its file so the next
// lookup refetches it.
func (c *Cache) Invalidate(ctx context.Context, table string) error {
	if !c.enabled {
		return nil
	}
	unlock, err := c.acquire(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	m := c.readManifest(c.logger)
	delete(m.PathInfo, table)
	if err := removeIfExists(c.TablePath(table)); err != nil {
		return services.Wrap(services.ErrCache, component, "invalidate", table, err)
	}
	if err := writeManifest(c.manifest, m); err != nil {
		return services.Wrap(services.ErrCache, component, "invalidate", "write manifest", err)
	}
	c.logger.Info("invalidated cached table", logging.String(logging.FieldTable, table))
	return nil
}

// Clear removes every materialized file and the manifest.
func (c *Cache) Clear(ctx context.Context) error {
	if !c.enabled {
		return nil
	}
	unlock, err := c.acquire(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	m := c.readManifest(c.logger)
	keys := append(Tables(), mapKeys(m.PathInfo)...)
	for _, key := range keys {
		if err := removeIfExists(c.TablePath(key)); err != nil {
			return services.Wrap(services.ErrCache, component, "clear", key, err)
		}
	}
	if err := os.RemoveAll(filepath.Join(c.dir, filepath.FromSlash(sessionDataPrefix))); err != nil {
		return services.Wrap(services.ErrCache, component, "clear", "session data", err)
	}
	if err := removeIfExists(c.manifest); err != nil {
		return services.Wrap(services.ErrCache, component, "clear", "manifest", err)
	}
	c.logger.Info("cleared project cache", logging.Int("entries", len(m.PathInfo)))
	return nil
}

type rawTables struct {
	behavior    []metadata.BehaviorSession
	sessions    []metadata.OphysSession
	experiments []metadata.OphysExperiment
	params      map[string]metadata.StageParameters
}

// fetchRaw pulls the requested raw tables plus the stage parameters of every
// habituation session, which the omission counts depend on.
func (c *Cache) fetchRaw(ctx context.Context, behavior, sessions, experiments bool) (rawTables, error) {
	var raw rawTables
	var err error
	if behavior {
		if raw.behavior, err = c.api.BehaviorSessionTable(ctx); err != nil {
			return rawTables{}, err
		}
	}
	if sessions {
		if raw.sessions, err = c.api.OphysSessionTable(ctx); err != nil {
			return rawTables{}, err
		}
	}
	if experiments {
		if raw.experiments, err = c.api.OphysExperimentTable(ctx); err != nil {
			return rawTables{}, err
		}
	}

	exposures := make([]enrich.Exposure, len(raw.behavior))
	for i, row := range raw.behavior {
		exposures[i] = enrich.ExposureOf(row)
	}
	raw.params = map[string]metadata.StageParameters{}
	if ids := enrich.HabituationForagingIDs(exposures); len(ids) > 0 {
		if raw.params, err = c.api.BehaviorStageParameters(ctx, ids); err != nil {
			return rawTables{}, err
		}
	}
	return raw, nil
}

func loadTable[T any](ctx context.Context, c *Cache, table string, build func(context.Context) ([]T, error)) ([]T, error) {
	ctx = services.WithTable(ctx, table)
	data, err := c.materialize(ctx, table, func(ctx context.Context) ([]byte, int, error) {
		rows, err := build(ctx)
		if err != nil {
			return nil, 0, err
		}
		encoded, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			return nil, 0, services.Wrap(services.ErrCache, component, "encode", table, err)
		}
		return encoded, len(rows), nil
	})
	if err != nil {
		return nil, err
	}
	var rows []T
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, services.Wrap(services.ErrCache, component, "decode", table, err)
	}
	return rows, nil
}

type producer func(ctx context.Context) (data []byte, rows int, err error)

// materialize returns the bytes of key, serving them from disk when the
// manifest entry is current and otherwise producing, persisting, and
// re-reading them. Errors from produce are returned unchanged.
func (c *Cache) materialize(ctx context.Context, key string, produce producer) ([]byte, error) {
	logger := logging.WithContext(ctx, c.logger)
	if !c.enabled {
		c.metrics.CacheLookup(key, metrics.LookupBypass)
		logger.Info("Fetching data from remote")
		data, _, err := c.produce(ctx, key, produce)
		return data, err
	}

	unlock, err := c.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	path := c.TablePath(key)
	m := c.readManifest(logger)
	entry, found := m.PathInfo[key]

	logger.Info("Reading data from cache", logging.String("path", path))
	outcome := metrics.LookupMiss
	switch {
	case !found || !fileExists(path):
		logger.Info("No cache file found.")
	case m.Version != ManifestVersion || c.policy.Stale(entry.FetchedAt):
		logger.Info("Cached data is stale",
			logging.String("fetched_at", entry.FetchedAt.Format(time.RFC3339)),
			logging.Int("manifest_version", m.Version))
		outcome = metrics.LookupStale
	default:
		data, err := readVerified(path, entry)
		if err == nil {
			c.metrics.CacheLookup(key, metrics.LookupHit)
			return data, nil
		}
		logging.WarnWithContext(logger, "cached data unreadable", "cache_entry_corrupt",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the entry will be refetched"),
			logging.String(logging.FieldImpact, "one extra fetch from the metadata source"))
		outcome = metrics.LookupStale
	}
	c.metrics.CacheLookup(key, outcome)

	logger.Info("Fetching data from remote")
	data, rows, err := c.produce(ctx, key, produce)
	if err != nil {
		return nil, err
	}

	logger.Info("Writing data to cache", logging.String("path", path), logging.Int("rows", rows))
	if err := c.persist(m, key, path, data, rows); err != nil {
		return nil, err
	}
	c.metrics.SetTableRows(key, rows)

	logger.Info("Reading data from cache", logging.String("path", path))
	stored, err := os.ReadFile(path)
	if err != nil {
		return nil, services.Wrap(services.ErrCache, component, "read", key, err)
	}
	return stored, nil
}

func (c *Cache) produce(ctx context.Context, key string, produce producer) ([]byte, int, error) {
	start := time.Now()
	data, rows, err := produce(ctx)
	c.metrics.ObserveFetch(key, time.Since(start), services.Kind(err))
	if err != nil {
		logging.ErrorWithContext(logging.WithContext(ctx, c.logger), "fetch failed", "fetch_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the metadata source configuration"))
		return nil, 0, err
	}
	return data, rows, nil
}

func (c *Cache) persist(m Manifest, key, path string, data []byte, rows int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return services.Wrap(services.ErrCache, component, "persist", "create directory", err)
	}
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return services.Wrap(services.ErrCache, component, "persist", key, err)
	}
	if m.Version != ManifestVersion {
		m = newManifest()
	}
	m.PathInfo[key] = ManifestEntry{
		Spec:        path,
		FetchedAt:   c.policy.Now().UTC(),
		Rows:        rows,
		Fingerprint: fileutil.SHA256Hex(data),
	}
	if err := writeManifest(c.manifest, m); err != nil {
		return services.Wrap(services.ErrCache, component, "persist", "write manifest", err)
	}
	return nil
}

// readManifest treats an unreadable manifest as empty so that every table is
// refetched and the manifest rewritten.
func (c *Cache) readManifest(logger *slog.Logger) Manifest {
	m, err := ReadManifest(c.manifest)
	if err != nil {
		logging.WarnWithContext(logger, "failed to load cache manifest", "manifest_load_failed",
			logging.Error(err),
			logging.String("path", c.manifest),
			logging.String(logging.FieldErrorHint, "the manifest will be rebuilt"),
			logging.String(logging.FieldImpact, "cached tables will be refetched"))
		return newManifest()
	}
	return m
}

func (c *Cache) acquire(ctx context.Context) (func(), error) {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrCache, component, "lock", "create cache directory", err)
	}
	ok, err := c.lock.TryLockContext(ctx, c.lockRetry)
	if err != nil {
		return nil, services.Wrap(services.ErrCache, component, "lock", c.lock.Path(), err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrCache, component, "lock", "cache directory is locked by another process", nil)
	}
	return func() {
		if err := c.lock.Unlock(); err != nil {
			c.logger.Warn("failed to release cache lock", logging.Error(err))
		}
	}, nil
}

func readVerified(path string, entry ManifestEntry) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if entry.Fingerprint != "" && fileutil.SHA256Hex(data) != entry.Fingerprint {
		return nil, errors.New("fingerprint mismatch")
	}
	return data, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func mapKeys(m map[string]ManifestEntry) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
