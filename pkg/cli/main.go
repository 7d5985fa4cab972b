// Package cli builds the entityctl command tree.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/nimburion/entitykit/pkg/config"
	"github.com/nimburion/entitykit/pkg/configschema"
	"github.com/nimburion/entitykit/pkg/observability/logger"
	"github.com/nimburion/entitykit/pkg/version"
)

// Options configures the command tree.
type Options struct {
	Name        string
	Description string
	ConfigPath  string
	EnvPrefix   string
}

// runtime is what every subcommand receives after flags are parsed.
type runtime struct {
	opts    Options
	cfgPath *string
}

func (r runtime) load(flags *pflag.FlagSet) (*config.Config, logger.Logger, error) {
	return LoadConfigAndLogger(*r.cfgPath, r.opts.EnvPrefix, flags)
}

// NewCommand creates the root command with version, config, compile,
// history, migrate, check and demo subcommands.
func NewCommand(opts Options) *cobra.Command {
	if opts.EnvPrefix == "" {
		opts.EnvPrefix = "ENTITYKIT"
	}

	rootCmd := &cobra.Command{
		Use:           opts.Name,
		Short:         opts.Description,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var cfgPath string
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config-file", "c", opts.ConfigPath, "config file path")
	config.RegisterFlags(rootCmd.PersistentFlags())
	rt := runtime{opts: opts, cfgPath: &cfgPath}

	rootCmd.AddCommand(
		newVersionCommand(opts.Name),
		newConfigCommand(rt),
		newCompileCommand(),
		newHistoryCommand(rt),
		newMigrateCommand(rt),
		newCheckCommand(rt),
		newDemoCommand(rt),
	)
	return rootCmd
}

func newVersionCommand(name string) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Current(name)
			if output != "" {
				return writeOutput(cmd.OutOrStdout(), output, info)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Service:    %s\n", info.Service)
			fmt.Fprintf(out, "Version:    %s\n", info.Version)
			fmt.Fprintf(out, "Commit:     %s\n", info.Commit)
			fmt.Fprintf(out, "Build Time: %s\n", info.BuildTime)
			fmt.Fprintf(out, "Go:         %s\n", info.GoVersion)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output format (json, yaml)")
	return cmd
}

func newConfigCommand(rt runtime) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management commands",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.NewViperLoader(*rt.cfgPath, rt.opts.EnvPrefix).WithFlags(cmd.Flags()).Load(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
			return nil
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewViperLoader(*rt.cfgPath, rt.opts.EnvPrefix).WithFlags(cmd.Flags()).Load()
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), cfg.String())
			return nil
		},
	})
	configCmd.AddCommand(&cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := configschema.BuildSchema(nil)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), "json", schema)
		},
	})
	return configCmd
}

// LoadConfigAndLogger loads the configuration and builds the zap logger it
// describes.
func LoadConfigAndLogger(cfgPath, envPrefix string, flags *pflag.FlagSet) (*config.Config, logger.Logger, error) {
	cfg, err := config.NewViperLoader(cfgPath, envPrefix).WithFlags(flags).Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	level, err := logger.ParseLogLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	format, err := logger.ParseLogFormat(cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.NewZapLogger(logger.Config{
		Level:   level,
		Format:  format,
		Output:  os.Stderr,
		Service: cfg.Service.Name,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}
	log.Debug("effective configuration", "build", version.Current(cfg.Service.Name).String(), "config", cfg.String())
	return cfg, log, nil
}

// Execute runs the command and exits with appropriate code.
func Execute(cmd *cobra.Command) {
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// writeOutput renders v as indented JSON or YAML.
func writeOutput(w io.Writer, format string, v any) error {
	switch strings.ToLower(format) {
	case "", "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format %q (supported: json, yaml)", format)
	}
}
