package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tidb-hierarchy/internal/serverapp"
)

func newAncestorsCmd(a *app) *cobra.Command {
	var (
		andSelf  bool
		maxDepth int
	)
	cmd := &cobra.Command{
		Use:   "ancestors <key>...",
		Short: "Print the ancestors of one or more nodes",
		Example: `  # Ancestors of node 42, nearest first
  hierarchyctl ancestors 42 --hierarchy.table categories --hierarchy.key_column id --hierarchy.parent_column parent_id

  # Several nodes in one query, as YAML
  hierarchyctl ancestors 4 7 -o yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if maxDepth < 0 {
				return fmt.Errorf("--max-depth cannot be negative")
			}
			ctx := cmd.Context()
			h, err := serverapp.OpenHierarchy(ctx, a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer func() { _ = h.Close() }()

			def := h.Definition
			if cmd.Flags().Changed("and-self") {
				def.AndSelf = andSelf
			}
			if cmd.Flags().Changed("max-depth") {
				def.MaxDepth = maxDepth
			}

			keys, err := parseKeys(args, h.IntegerKeys)
			if err != nil {
				return err
			}
			origins, err := h.Loader.Nodes(ctx, def, keys)
			if err != nil {
				return err
			}
			if len(origins) == 0 {
				return a.write([]resultOutput{})
			}

			results, err := h.Loader.EagerAncestors(ctx, def, origins)
			if err != nil {
				return err
			}
			return a.write(resultsOutput(def.KeyColumn, results))
		},
	}
	cmd.Flags().BoolVar(&andSelf, "and-self", false, "include each node at depth 0")
	cmd.Flags().IntVar(&maxDepth, "max-depth", 0, "stop after this many levels (0 = unbounded)")
	return cmd
}
