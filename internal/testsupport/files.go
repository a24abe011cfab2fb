package testsupport

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"allenpipe/internal/fetch/release"
)

// WriteJSON marshals value to path, creating parent directories as needed.
func WriteJSON(t testing.TB, path string, value any) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		t.Fatalf("marshal %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteRelease lays the fixture out as an unpacked metadata release under root.
func WriteRelease(t testing.TB, root string, fx Fixture) {
	t.Helper()

	WriteJSON(t, filepath.Join(root, filepath.FromSlash(release.BehaviorSessionsKey)), fx.Behavior)
	WriteJSON(t, filepath.Join(root, filepath.FromSlash(release.OphysSessionsKey)), fx.Sessions)
	WriteJSON(t, filepath.Join(root, filepath.FromSlash(release.OphysExperimentsKey)), fx.Experiments)
	WriteJSON(t, filepath.Join(root, filepath.FromSlash(release.StageParametersKey)), fx.StageParameters)
	for id, doc := range fx.SessionData {
		WriteJSON(t, filepath.Join(root, filepath.FromSlash(release.SessionDataKey(id))), doc)
	}
}
