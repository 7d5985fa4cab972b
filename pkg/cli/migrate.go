package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nimburion/entitykit/pkg/config"
	"github.com/nimburion/entitykit/pkg/migrate"
	"github.com/nimburion/entitykit/pkg/persistence/dao/sqldao"
	"github.com/nimburion/entitykit/pkg/store/sqlstore"
)

func newMigrateCommand(rt runtime) *cobra.Command {
	var timeout time.Duration

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the SQL history table schema",
	}
	migrateCmd.PersistentFlags().DurationVar(&timeout, "timeout", 60*time.Second, "migration timeout")

	// withManager opens the configured SQL database for the duration of fn.
	withManager := func(cmd *cobra.Command, fn func(ctx context.Context, m *migrate.SQLManager) error) error {
		cfg, log, err := rt.load(cmd.Flags())
		if err != nil {
			return err
		}
		if cfg.Database.Type != config.DatabaseTypePostgres && cfg.Database.Type != config.DatabaseTypeMySQL {
			return fmt.Errorf("migrations require a SQL database (database.type is %q)", cfg.Database.Type)
		}
		adapter, err := sqlstore.NewAdapter(sqlstore.Config{
			Driver:       cfg.Database.Type,
			URL:          cfg.Database.URL,
			MaxOpenConns: 1,
		}, log)
		if err != nil {
			return err
		}
		defer adapter.Close()

		dialect, _ := sqldao.DialectFor(adapter.Driver())
		m, err := migrate.NewHistoryManager(adapter.DB(), dialect, cfg.Persistence.HistoryTable)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		return fn(ctx, m)
	}

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(cmd, func(ctx context.Context, m *migrate.SQLManager) error {
				n, err := m.Up(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", n)
				return nil
			})
		},
	})

	var steps int
	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Revert applied migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(cmd, func(ctx context.Context, m *migrate.SQLManager) error {
				n, err := m.Down(ctx, steps)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "reverted %d migration(s)\n", n)
				return nil
			})
		},
	}
	downCmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to revert")
	migrateCmd.AddCommand(downCmd)

	var output string
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(cmd, func(ctx context.Context, m *migrate.SQLManager) error {
				status, err := m.Status(ctx)
				if err != nil {
					return err
				}
				return writeOutput(cmd.OutOrStdout(), output, status)
			})
		},
	}
	statusCmd.Flags().StringVarP(&output, "output", "o", "json", "output format (json, yaml)")
	migrateCmd.AddCommand(statusCmd)

	return migrateCmd
}
