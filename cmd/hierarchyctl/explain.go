package main

import (
	"github.com/spf13/cobra"

	"tidb-hierarchy/internal/loader"
	"tidb-hierarchy/internal/relation"
)

func newExplainCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "explain <key>...",
		Short: "Print the SQL an ancestors lookup would run",
		Long: `explain renders the recursive query for the given keys without connecting
to the database. One key renders the single-origin query; several keys render
the batched queries.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dialect, err := a.cfg.Database.Dialect()
			if err != nil {
				return err
			}
			def := a.cfg.Hierarchy.Definition()

			keys, err := parseKeys(args, false)
			if err != nil {
				return err
			}
			origins := make([]relation.Record, len(keys))
			for i, key := range keys {
				origins[i] = relation.Record{def.KeyColumn: key}
			}

			l := loader.New(nil, loader.Options{Dialect: dialect, MaxBatchSize: a.cfg.Hierarchy.MaxBatchSize})
			statements, err := l.Explain(def, origins)
			if err != nil {
				return err
			}
			return a.write(statements)
		},
	}
}
