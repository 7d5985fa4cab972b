package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nimburion/entitykit/pkg/config"
	"github.com/nimburion/entitykit/pkg/persistence"
	"github.com/nimburion/entitykit/pkg/store"
)

func newHistoryCommand(rt runtime) *cobra.Command {
	var (
		entity string
		rawID  string
		idType string
		start  int
		limit  int
		output string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List the recorded history of one entity instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(entity) == "" || strings.TrimSpace(rawID) == "" {
				return fmt.Errorf("--entity and --id are required")
			}
			cfg, log, err := rt.load(cmd.Flags())
			if err != nil {
				return err
			}
			if cfg.Database.Type == config.DatabaseTypeMemory {
				return fmt.Errorf("history requires a persistent database (database.type is %q)", cfg.Database.Type)
			}

			adapter, err := store.NewStorageAdapter(cfg.Database, log)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := adapter.Close(); cerr != nil {
					log.Warn("failed to close storage adapter", "error", cerr)
				}
			}()

			ctx := cmd.Context()
			table := cfg.Persistence.HistoryTable
			switch strings.ToLower(idType) {
			case "string":
				entries, err := readHistory[string](ctx, adapter, table, entity, rawID, start, limit)
				if err != nil {
					return err
				}
				return writeOutput(cmd.OutOrStdout(), output, entries)
			case "int":
				id, err := strconv.ParseInt(rawID, 10, 64)
				if err != nil {
					return fmt.Errorf("--id must be an integer: %w", err)
				}
				entries, err := readHistory[int64](ctx, adapter, table, entity, id, start, limit)
				if err != nil {
					return err
				}
				return writeOutput(cmd.OutOrStdout(), output, entries)
			default:
				return fmt.Errorf("unsupported id type %q (supported: string, int)", idType)
			}
		},
	}

	cmd.Flags().StringVar(&entity, "entity", "", "entity name")
	cmd.Flags().StringVar(&rawID, "id", "", "entity id")
	cmd.Flags().StringVar(&idType, "id-type", "int", "id type (string, int)")
	cmd.Flags().IntVar(&start, "start", 0, "0-based offset of the first entry")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of entries (0 for all)")
	cmd.Flags().StringVarP(&output, "output", "o", "json", "output format (json, yaml)")
	return cmd
}

func readHistory[ID comparable](ctx context.Context, adapter store.Adapter, table, entity string, id ID, start, limit int) ([]persistence.HistoryEntry[ID], error) {
	history, err := store.NewHistoryStore[ID](adapter, table)
	if err != nil {
		return nil, err
	}
	entries, err := history.GetHistory(ctx, entity, id, start, limit)
	if err != nil {
		return nil, fmt.Errorf("read %s history: %w", entity, err)
	}
	return entries, nil
}
