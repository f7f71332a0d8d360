package cli

import (
	"fmt"

	"github.com/BearBump/CargoLedger/config"
	"github.com/BearBump/CargoLedger/internal/storage/pgshipments"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the shipments database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:          "up",
		Short:        "Apply all pending migrations",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// New сам накатывает миграции
			st, err := openStorage(rootOpts)
			if err != nil {
				return err
			}
			defer st.Close()
			return printVersion(cmd, st)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:          "down",
		Short:        "Roll back every migration",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStorage(rootOpts)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.MigrateDown(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema dropped")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:          "version",
		Short:        "Print the applied schema version",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStorage(rootOpts)
			if err != nil {
				return err
			}
			defer st.Close()
			return printVersion(cmd, st)
		},
	})

	return cmd
}

func openStorage(opts *RootOptions) (*pgshipments.Storage, error) {
	if opts.ConfigPath == "" {
		return nil, errors.New("--config or configPath env var is required")
	}
	cfg, err := config.LoadConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	return pgshipments.New(cfg.Database.DSN())
}

func printVersion(cmd *cobra.Command, st *pgshipments.Storage) error {
	v, dirty, err := st.MigrationVersion()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty=%t)\n", v, dirty)
	return nil
}
