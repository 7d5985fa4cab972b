package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/nimburion/entitykit/pkg/config"
	"github.com/nimburion/entitykit/pkg/eventbus/kafka"
	"github.com/nimburion/entitykit/pkg/health"
	"github.com/nimburion/entitykit/pkg/observability/logger"
	"github.com/nimburion/entitykit/pkg/store"
)

func newCheckCommand(rt runtime) *cobra.Command {
	var (
		timeout time.Duration
		output  string
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check connectivity to the configured database and event bus",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := rt.load(cmd.Flags())
			if err != nil {
				return err
			}
			result := runChecks(cmd.Context(), cfg, log, timeout)
			if output != "" {
				if err := writeOutput(cmd.OutOrStdout(), output, result); err != nil {
					return err
				}
			} else {
				printChecks(cmd.OutOrStdout(), result)
			}
			if !result.IsHealthy() {
				return fmt.Errorf("health check failed")
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "per-check timeout")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output format (json, yaml)")
	return cmd
}

// runChecks opens the configured backends, probes them and releases them.
// Construction failures are reported as unhealthy checks.
func runChecks(ctx context.Context, cfg *config.Config, log logger.Logger, timeout time.Duration) health.AggregatedResult {
	registry := health.NewRegistry()
	var closers []func() error

	adapter, err := store.NewStorageAdapter(cfg.Database, log)
	switch {
	case err != nil:
		registry.Register("database", failing(err), timeout)
	case adapter == nil:
		registry.Register("database", health.CheckFunc(func(context.Context) error { return nil }), timeout)
	default:
		registry.Register("database", adapter, timeout)
		closers = append(closers, adapter.Close)
	}

	if cfg.EventBus.Type == config.EventBusTypeKafka {
		producer, err := kafka.NewProducer(kafka.Config{
			Brokers:          cfg.EventBus.Brokers,
			OperationTimeout: cfg.EventBus.OperationTimeout,
			MaxRetries:       cfg.EventBus.MaxRetries,
		}, log)
		if err != nil {
			registry.Register("eventbus", failing(err), timeout)
		} else {
			registry.Register("eventbus", producer, timeout)
			closers = append(closers, producer.Close)
		}
	}

	result := registry.Check(ctx)
	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Warn("failed to release checked component", "error", err)
		}
	}
	return result
}

func failing(err error) health.CheckFunc {
	return func(context.Context) error { return err }
}

func printChecks(out io.Writer, result health.AggregatedResult) {
	for _, c := range result.Checks {
		if c.Error != "" {
			fmt.Fprintf(out, "%-10s %s: %s\n", c.Name, c.Status, c.Error)
			continue
		}
		fmt.Fprintf(out, "%-10s %s (%s)\n", c.Name, c.Status, c.Duration.Round(time.Millisecond))
	}
	fmt.Fprintf(out, "overall    %s\n", result.Status)
}
