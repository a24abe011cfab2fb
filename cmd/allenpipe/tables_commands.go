package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"allenpipe/internal/enrich"
	"allenpipe/internal/projectcache"
)

type tableOptions struct {
	json    bool
	refresh bool
}

func (o *tableOptions) bind(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&o.json, "json", false, "Output all columns as JSON")
	cmd.Flags().BoolVar(&o.refresh, "refresh", false, "Invalidate the cached table before reading it")
}

func newTablesCommand(ctx *commandContext) *cobra.Command {
	tablesCmd := &cobra.Command{
		Use:   "tables",
		Short: "Show enriched project metadata tables",
	}
	tablesCmd.AddCommand(newBehaviorTableCommand(ctx))
	tablesCmd.AddCommand(newOphysSessionsTableCommand(ctx))
	tablesCmd.AddCommand(newOphysExperimentsTableCommand(ctx))
	return tablesCmd
}

func refreshTable(ctx context.Context, cache *projectcache.Cache, opts tableOptions, table string) error {
	if !opts.refresh {
		return nil
	}
	return cache.Invalidate(ctx, table)
}

func newBehaviorTableCommand(ctx *commandContext) *cobra.Command {
	var opts tableOptions
	cmd := &cobra.Command{
		Use:   "behavior",
		Short: "Behavior sessions with genotype and prior-exposure columns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withCache(cmd, func(runCtx context.Context, cache *projectcache.Cache) error {
				if err := refreshTable(runCtx, cache, opts, projectcache.TableBehaviorSessions); err != nil {
					return err
				}
				rows, err := cache.BehaviorSessionTable(runCtx)
				if err != nil {
					return err
				}
				if opts.json {
					return writeRowsJSON(cmd, rows)
				}
				return printBehaviorSessions(cmd, rows)
			})
		},
	}
	opts.bind(cmd)
	return cmd
}

func printBehaviorSessions(cmd *cobra.Command, rows []enrich.BehaviorSession) error {
	headers := []string{"Behavior Session", "Mouse", "Date", "Session Type", "Cre Line", "Prior Type", "Prior Images", "Prior Omissions", "Ophys Session"}
	aligns := []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight}
	body := make([][]string, 0, len(rows))
	for _, r := range rows {
		body = append(body, []string{
			strconv.FormatInt(r.BehaviorSessionID, 10),
			fmtString(r.MouseID),
			fmtDate(r.DateOfAcquisition),
			fmtString(r.SessionType),
			fmtString(r.CreLine),
			fmtInt(r.ToSessionType),
			fmtInt(r.ToImageSet),
			fmtInt(r.ToOmissions),
			fmtInt64(r.OphysSessionID),
		})
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderTable(out, headers, body, aligns))
	return nil
}

func newOphysSessionsTableCommand(ctx *commandContext) *cobra.Command {
	var opts tableOptions
	var byExperiment bool
	cmd := &cobra.Command{
		Use:   "ophys-sessions",
		Short: "Ophys sessions joined with their behavior session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withCache(cmd, func(runCtx context.Context, cache *projectcache.Cache) error {
				if err := refreshTable(runCtx, cache, opts, projectcache.TableOphysSessions); err != nil {
					return err
				}
				if byExperiment {
					rows, err := cache.OphysSessionsByExperiment(runCtx)
					if err != nil {
						return err
					}
					if opts.json {
						return writeRowsJSON(cmd, rows)
					}
					return printOphysSessionsByExperiment(cmd, rows)
				}
				rows, err := cache.OphysSessionTable(runCtx)
				if err != nil {
					return err
				}
				if opts.json {
					return writeRowsJSON(cmd, rows)
				}
				return printOphysSessions(cmd, rows)
			})
		},
	}
	opts.bind(cmd)
	cmd.Flags().BoolVar(&byExperiment, "by-experiment", false, "Index rows by ophys_experiment_id")
	return cmd
}

func printOphysSessions(cmd *cobra.Command, rows []enrich.OphysSession) error {
	headers := []string{"Ophys Session", "Behavior Session", "Mouse", "Date", "Session Type", "Experiments", "Containers"}
	aligns := []columnAlignment{alignRight, alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft}
	body := make([][]string, 0, len(rows))
	for _, r := range rows {
		body = append(body, []string{
			strconv.FormatInt(r.OphysSessionID, 10),
			strconv.FormatInt(r.BehaviorSessionID, 10),
			fmtString(r.MouseID),
			fmtDate(r.DateOfAcquisition),
			fmtString(r.SessionType),
			fmtIDs(r.OphysExperimentIDs),
			fmtIDs(r.OphysContainerIDs),
		})
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderTable(out, headers, body, aligns))
	return nil
}

func printOphysSessionsByExperiment(cmd *cobra.Command, rows []enrich.OphysSessionByExperiment) error {
	headers := []string{"Ophys Experiment", "Ophys Session", "Behavior Session", "Mouse", "Session Type"}
	aligns := []columnAlignment{alignRight, alignRight, alignRight, alignLeft, alignLeft}
	body := make([][]string, 0, len(rows))
	for _, r := range rows {
		body = append(body, []string{
			strconv.FormatInt(r.OphysExperimentID, 10),
			strconv.FormatInt(r.OphysSessionID, 10),
			strconv.FormatInt(r.BehaviorSessionID, 10),
			fmtString(r.MouseID),
			fmtString(r.SessionType),
		})
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderTable(out, headers, body, aligns))
	return nil
}

func newOphysExperimentsTableCommand(ctx *commandContext) *cobra.Command {
	var opts tableOptions
	var passedOnly bool
	cmd := &cobra.Command{
		Use:   "ophys-experiments",
		Short: "Ophys experiments with experience level and session columns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withCache(cmd, func(runCtx context.Context, cache *projectcache.Cache) error {
				if err := refreshTable(runCtx, cache, opts, projectcache.TableOphysExperiments); err != nil {
					return err
				}
				rows, err := cache.OphysExperimentTable(runCtx, passedOnly)
				if err != nil {
					return err
				}
				if opts.json {
					return writeRowsJSON(cmd, rows)
				}
				return printOphysExperiments(cmd, rows)
			})
		},
	}
	opts.bind(cmd)
	cmd.Flags().BoolVar(&passedOnly, "passed-only", false, "Only passed experiments with a published container")
	return cmd
}

func printOphysExperiments(cmd *cobra.Command, rows []enrich.OphysExperiment) error {
	headers := []string{"Ophys Experiment", "Ophys Session", "Mouse", "Session Type", "Experience", "Passive", "Image Set", "State", "Containers"}
	aligns := []columnAlignment{alignRight, alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft}
	body := make([][]string, 0, len(rows))
	for _, r := range rows {
		containers := make([]int64, 0, len(r.Containers))
		for _, c := range r.Containers {
			containers = append(containers, c.OphysContainerID)
		}
		body = append(body, []string{
			strconv.FormatInt(r.OphysExperimentID, 10),
			strconv.FormatInt(r.OphysSessionID, 10),
			fmtString(r.MouseID),
			fmtString(r.SessionType),
			r.ExperienceLevel,
			fmtBool(r.Passive),
			fmtString(r.ImageSet),
			r.ExperimentWorkflowState,
			fmtIDs(containers),
		})
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderTable(out, headers, body, aligns))
	return nil
}
