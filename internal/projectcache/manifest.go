package projectcache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"allenpipe/internal/fileutil"
)

// ManifestVersion is the manifest format written by this package. Manifests
// with any other version are treated as stale.
const ManifestVersion = 1

// Manifest maps table names to their materialized files.
type Manifest struct {
	Version  int                      `json:"version"`
	PathInfo map[string]ManifestEntry `json:"path_info"`
}

// ManifestEntry describes one materialized table.
type ManifestEntry struct {
	Spec        string    `json:"spec"`
	FetchedAt   time.Time `json:"fetched_at"`
	Rows        int       `json:"rows"`
	Fingerprint string    `json:"fingerprint"`
}

func newManifest() Manifest {
	return Manifest{Version: ManifestVersion, PathInfo: make(map[string]ManifestEntry)}
}

// ReadManifest loads the manifest at path. A missing file yields an empty
// manifest at the current version.
func ReadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return newManifest(), nil
		}
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	if len(data) == 0 {
		return newManifest(), nil
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest: %w", err)
	}
	if m.PathInfo == nil {
		m.PathInfo = make(map[string]ManifestEntry)
	}
	return m, nil
}

func writeManifest(path string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create manifest directory: %w", err)
	}
	return fileutil.WriteFileAtomic(path, data, 0o644)
}
