package main

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"allenpipe/internal/projectcache"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the project metadata cache",
	}
	cacheCmd.AddCommand(newCacheStatusCommand(ctx))
	cacheCmd.AddCommand(newCacheInvalidateCommand(ctx))
	cacheCmd.AddCommand(newCacheClearCommand(ctx))
	return cacheCmd
}

type cacheStatusJSON struct {
	Table       string `json:"table"`
	Path        string `json:"path"`
	Cached      bool   `json:"cached"`
	Stale       bool   `json:"stale"`
	Verified    bool   `json:"verified"`
	FetchedAt   string `json:"fetched_at,omitempty"`
	Rows        int    `json:"rows"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

func newCacheStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show materialized tables and their freshness",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withCache(cmd, func(runCtx context.Context, cache *projectcache.Cache) error {
				statuses, err := cache.Status(runCtx)
				if err != nil {
					return err
				}
				if asJSON {
					out := make([]cacheStatusJSON, 0, len(statuses))
					for _, s := range statuses {
						entry := cacheStatusJSON{
							Table:       s.Table,
							Path:        s.Path,
							Cached:      s.Cached,
							Stale:       s.Stale,
							Verified:    s.Verified,
							Rows:        s.Rows,
							Fingerprint: s.Fingerprint,
						}
						if s.Cached {
							entry.FetchedAt = s.FetchedAt.UTC().Format(time.RFC3339)
						}
						out = append(out, entry)
					}
					return writeRowsJSON(cmd, out)
				}

				headers := []string{"Table", "Cached", "Stale", "Verified", "Rows", "Fetched"}
				aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft}
				rows := make([][]string, 0, len(statuses))
				for _, s := range statuses {
					fetched := missing
					if s.Cached {
						fetched = s.FetchedAt.Local().Format("2006-01-02 15:04:05")
					}
					rows = append(rows, []string{
						s.Table,
						yesNo(s.Cached),
						yesNo(s.Stale),
						yesNo(s.Verified),
						strconv.Itoa(s.Rows),
						fetched,
					})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Manifest: %s\n", cache.ManifestPath())
				fmt.Fprintln(out, renderTable(out, headers, rows, aligns))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output status as JSON")
	return cmd
}

func newCacheInvalidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:       "invalidate <table>...",
		Short:     "Force the named tables to be refetched",
		Args:      cobra.MinimumNArgs(1),
		ValidArgs: projectcache.Tables(),
		RunE: func(cmd *cobra.Command, args []string) error {
			known := projectcache.Tables()
			for _, table := range args {
				if !slices.Contains(known, table) {
					return fmt.Errorf("unknown table %q (want one of %s)", table, strings.Join(known, ", "))
				}
			}
			return ctx.withCache(cmd, func(runCtx context.Context, cache *projectcache.Cache) error {
				out := cmd.OutOrStdout()
				for _, table := range args {
					if err := cache.Invalidate(runCtx, table); err != nil {
						return err
					}
					fmt.Fprintf(out, "Invalidated %s\n", table)
				}
				return nil
			})
		},
	}
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every materialized table and the manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withCache(cmd, func(runCtx context.Context, cache *projectcache.Cache) error {
				if err := cache.Clear(runCtx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Project cache cleared")
				return nil
			})
		},
	}
}
