package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"allenpipe/internal/config"
	"allenpipe/internal/fetch"
	"allenpipe/internal/fetch/release"
	"allenpipe/internal/fetch/warehouse"
	"allenpipe/internal/logging"
)

func newWarehouseCommand(ctx *commandContext) *cobra.Command {
	warehouseCmd := &cobra.Command{
		Use:   "warehouse",
		Short: "Maintain the SQL metadata warehouse",
	}
	warehouseCmd.AddCommand(newWarehouseMigrateCommand(ctx))
	warehouseCmd.AddCommand(newWarehouseImportCommand(ctx))
	return warehouseCmd
}

func (c *commandContext) openWarehouse(cmd *cobra.Command) (*warehouse.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}
	wh := cfg.Source.Warehouse
	return warehouse.Open(cmd.Context(), wh.Driver, wh.DSN, logger)
}

func newWarehouseMigrateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the warehouse schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openWarehouse(cmd)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Warehouse schema up to date (%s)\n", store.Driver())
			return nil
		},
	}
}

func newWarehouseImportCommand(ctx *commandContext) *cobra.Command {
	var fromRelease string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load a published release into the warehouse",
		Long: `Reads every table, stage parameter set, and session document from a
release and replaces the warehouse contents with them. The release defaults to
the configured [source.release] location.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			var src fetch.API
			if root := strings.TrimSpace(fromRelease); root != "" {
				expanded, err := config.ExpandPath(root)
				if err != nil {
					return err
				}
				src = release.New(release.NewDirBucket(expanded), logger)
			} else {
				releaseCfg := *cfg
				releaseCfg.Source.Driver = config.SourceRelease
				src, err = fetch.Open(cmd.Context(), &releaseCfg, logger)
				if err != nil {
					return err
				}
			}
			defer fetch.CloseSource(src)

			tables, err := fetch.Snapshot(cmd.Context(), src)
			if err != nil {
				return err
			}

			store, err := ctx.openWarehouse(cmd)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Migrate(cmd.Context()); err != nil {
				return err
			}
			if err := store.Import(cmd.Context(), tables); err != nil {
				return err
			}
			logger.Info("warehouse loaded from release",
				logging.Int("behavior_sessions", len(tables.Behavior)),
				logging.Int("session_documents", len(tables.SessionData)))
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d behavior sessions, %d ophys sessions, %d ophys experiments\n",
				len(tables.Behavior), len(tables.Sessions), len(tables.Experiments))
			return nil
		},
	}
	cmd.Flags().StringVar(&fromRelease, "from-release", "", "Release directory to import (default: configured release)")
	return cmd
}
