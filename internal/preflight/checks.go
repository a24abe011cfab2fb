package preflight

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"allenpipe/internal/config"
	"allenpipe/internal/fetch"
	"allenpipe/internal/logging"
)

const sourceTimeout = 30 * time.Second

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckSource opens the configured metadata source and reads the behavior
// session table with a single attempt.
func CheckSource(ctx context.Context, cfg *config.Config, logger *slog.Logger) Result {
	name := fmt.Sprintf("Metadata source (%s)", cfg.Source.Driver)

	checkCtx, cancel := context.WithTimeout(ctx, sourceTimeout)
	defer cancel()

	src, err := fetch.Open(checkCtx, cfg, logging.NewComponentLogger(logger, "preflight"))
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	defer fetch.CloseSource(src)

	rows, err := src.BehaviorSessionTable(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: summarizeSourceError(err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("reachable (%d behavior sessions)", len(rows))}
}

func summarizeSourceError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "table read timed out (source unresponsive)"
	}
	return err.Error()
}
