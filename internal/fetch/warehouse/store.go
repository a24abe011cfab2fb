package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"

	"allenpipe/internal/logging"
	"allenpipe/internal/services"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// Store queries project metadata tables over database/sql.
type Store struct {
	db     *sql.DB
	driver string
	logger *slog.Logger
}

// Open connects to the warehouse. It does not create the schema; call Migrate
// for a fresh database.
func Open(ctx context.Context, driver, dsn string, logger *slog.Logger) (*Store, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, services.Wrap(services.ErrConfiguration, "warehouse", "open", fmt.Sprintf("unsupported driver %q", driver), nil)
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "warehouse", "open", "dsn required", nil)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, services.Wrap(services.ErrFetch, "warehouse", "open", driver, err)
	}

	if driver == DriverSQLite {
		// A single connection keeps in-memory databases coherent across queries.
		db.SetMaxOpenConns(1)
		pragmas := []string{
			"PRAGMA foreign_keys = ON",
			"PRAGMA busy_timeout = 5000",
		}
		for _, pragma := range pragmas {
			if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
				_ = db.Close()
				return nil, services.Wrap(services.ErrFetch, "warehouse", "open", fmt.Sprintf("apply pragma %q", pragma), execErr)
			}
		}
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, services.Wrap(services.ErrFetch, "warehouse", "ping", driver, err)
	}

	return &Store{
		db:     db,
		driver: driver,
		logger: logging.NewComponentLogger(logger, "warehouse"),
	}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Driver reports the database/sql driver in use.
func (s *Store) Driver() string {
	return s.driver
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
