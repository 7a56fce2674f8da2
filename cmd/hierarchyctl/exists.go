package main

import (
	"github.com/spf13/cobra"

	"tidb-hierarchy/internal/loader"
	"tidb-hierarchy/internal/serverapp"
)

func newExistsCmd(a *app) *cobra.Command {
	var filter loader.AncestorFilter
	var value string
	cmd := &cobra.Command{
		Use:   "exists",
		Short: "List nodes having an ancestor with a column value",
		Example: `  # Nodes below any node named "electronics"
  hierarchyctl exists --column name --value electronics

  # Nodes that are not roots
  hierarchyctl exists`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			h, err := serverapp.OpenHierarchy(ctx, a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer func() { _ = h.Close() }()

			if filter.Column != "" {
				filter.Value = value
			}
			records, err := h.Loader.NodesWithAncestor(ctx, h.Definition, filter)
			if err != nil {
				return err
			}
			return a.write(records)
		},
	}
	cmd.Flags().StringVar(&filter.Column, "column", "", "ancestor column to match")
	cmd.Flags().StringVar(&value, "value", "", "value the ancestor column must equal")
	cmd.MarkFlagsRequiredTogether("column", "value")
	return cmd
}
