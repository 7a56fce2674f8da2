package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"tidb-hierarchy/internal/config"
	"tidb-hierarchy/internal/logging"
)

// app carries the state shared by all subcommands.
type app struct {
	out    io.Writer
	errOut io.Writer
	output string

	cfg    *config.Config
	logger *logging.Logger
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "hierarchyctl",
		Short: "Query the ancestors of a hierarchy table",
		Long: `hierarchyctl walks a self-referencing table (or a table plus an edge table)
upwards with recursive CTEs, using the same configuration as the server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.loadConfig(cmd)
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	config.DefineFlags(root.PersistentFlags())
	root.PersistentFlags().StringVarP(&a.output, "output", "o", "json", "output format (json, yaml)")

	root.AddCommand(
		newAncestorsCmd(a),
		newExplainCmd(a),
		newExistsCmd(a),
		newVersionCmd(a),
	)
	return root
}

func (a *app) loadConfig(cmd *cobra.Command) error {
	switch a.output {
	case "json", "yaml":
	default:
		return fmt.Errorf("unsupported output format %q", a.output)
	}

	cfg, err := config.LoadFrom(cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	// No providers are started for one-shot commands.
	cfg.Observability.MetricsEnabled = false
	cfg.Observability.TracingEnabled = false

	result := cfg.Validate()
	if result.HasErrors() {
		return fmt.Errorf("invalid configuration: %w", result)
	}

	a.cfg = cfg
	a.logger = logging.NewLogger(logging.Config{
		Level:  "warn",
		Format: cfg.Observability.Logging.Format,
		Output: a.errOut,
	})
	for _, warn := range result.Warnings {
		a.logger.Warn("configuration warning",
			slog.String("field", warn.Field),
			slog.String("message", warn.Message),
		)
	}
	return nil
}
