package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"axiograph/core"
	"axiograph/core/pipeline"
	"axiograph/core/query"
)

func entityLabel(pdb *core.PathDB, id uint64) string {
	if e, ok := pdb.Entity(id); ok && e.Name != "" {
		return e.Name
	}
	return fmt.Sprintf("#%x", id)
}

var queryCmd = &cobra.Command{
	Use:   "query [pathdb-snapshot-id] [axql]",
	Short: "Elaborate and execute an AxQL query against a pathdb snapshot",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		snapID, src := args[0], args[1]
		s := currentStore()

		acceptedID, err := s.PathdbAcceptedID(snapID)
		if err != nil {
			return fmt.Errorf("axictl: resolve accepted snapshot for %s: %w", snapID, err)
		}
		m, err := s.AcceptedModule(acceptedID)
		if err != nil {
			return fmt.Errorf("axictl: load accepted module: %w", err)
		}
		tm, _, err := core.Typecheck(m, core.ProfileStrict)
		if err != nil {
			return fmt.Errorf("axictl: typecheck: %w", err)
		}

		ctx := cmd.Context()
		if d := cfg.QueryDeadline(); d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}

		pdb, h, err := pipeline.BuildIndexHandle(ctx, s, snapID, cfg.IndexConfig())
		if err != nil {
			return fmt.Errorf("axictl: build index: %w", err)
		}

		q, err := query.Parse(src)
		if err != nil {
			return err
		}
		eq, err := query.Elaborate(tm, q)
		if err != nil {
			return err
		}
		res, err := query.Execute(ctx, pdb, h, cfg.IndexConfig(), eq)
		if err != nil {
			return err
		}

		for _, row := range res.Rows {
			vars := make([]string, 0, len(row.Bindings))
			for v := range row.Bindings {
				vars = append(vars, v)
			}
			sort.Strings(vars)
			parts := make([]string, len(vars))
			for i, v := range vars {
				parts[i] = fmt.Sprintf("%s=%s", v, entityLabel(pdb, row.Bindings[v]))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[%d] %s\n", row.Disjunct, strings.Join(parts, " "))
		}
		if res.Truncated {
			fmt.Fprintln(cmd.OutOrStdout(), "(truncated: deadline exceeded before completion)")
		}
		return nil
	},
}
