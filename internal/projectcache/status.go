package projectcache

import (
	"context"
	"sort"
	"strings"
	"time"

	"allenpipe/internal/fileutil"
)

// TableStatus reports the state of one materialized entry.
type TableStatus struct {
	Table       string
	Path        string
	Cached      bool
	Stale       bool
	Verified    bool
	FetchedAt   time.Time
	Rows        int
	Fingerprint string
}

// Status summarizes the cache. The three tables are always listed; session
// documents are listed when present in the manifest.
func (c *Cache) Status(ctx context.Context) ([]TableStatus, error) {
	if !c.enabled {
		out := make([]TableStatus, 0, 3)
		for _, table := range Tables() {
			out = append(out, TableStatus{Table: table, Path: c.TablePath(table)})
		}
		return out, nil
	}
	unlock, err := c.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	m := c.readManifest(c.logger)
	keys := Tables()
	var extra []string
	for key := range m.PathInfo {
		if strings.HasPrefix(key, sessionDataPrefix) {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	keys = append(keys, extra...)

	out := make([]TableStatus, 0, len(keys))
	for _, key := range keys {
		status := TableStatus{Table: key, Path: c.TablePath(key)}
		if entry, ok := m.PathInfo[key]; ok && fileExists(status.Path) {
			status.Cached = true
			status.FetchedAt = entry.FetchedAt
			status.Rows = entry.Rows
			status.Fingerprint = entry.Fingerprint
			status.Stale = m.Version != ManifestVersion || c.policy.Stale(entry.FetchedAt)
			if sum, err := fileutil.SHA256File(status.Path); err == nil {
				status.Verified = sum == entry.Fingerprint
			}
		}
		out = append(out, status)
	}
	return out, nil
}
