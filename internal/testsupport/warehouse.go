package testsupport

import (
	"context"
	"testing"

	"allenpipe/internal/config"
	"allenpipe/internal/fetch/warehouse"
	"allenpipe/internal/logging"
)

// MustOpenWarehouse opens the SQLite warehouse named by cfg, migrates it,
// loads fx, and registers cleanup.
func MustOpenWarehouse(t testing.TB, cfg *config.Config, fx Fixture) *warehouse.Store {
	t.Helper()

	ctx := context.Background()
	store, err := warehouse.Open(ctx, cfg.Source.Warehouse.Driver, cfg.Source.Warehouse.DSN, logging.NewNop())
	if err != nil {
		t.Fatalf("warehouse.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("warehouse.Migrate: %v", err)
	}
	if err := store.Import(ctx, fx.Tables()); err != nil {
		t.Fatalf("warehouse.Import: %v", err)
	}
	return store
}
