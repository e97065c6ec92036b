package cmd

import (
	"fmt"

	"github.com/TFMV/forcegraph/store"
	"github.com/spf13/cobra"
)

func seedCmd(a *app) *cobra.Command {
	var (
		db     string
		reseed bool
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the demo conversations into the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfg.Store.Path
			if db != "" {
				path = db
			}
			st, err := store.Open(cmd.Context(), path, a.logger)
			if err != nil {
				return err
			}
			defer st.Close()

			ids, err := st.Seed(cmd.Context(), reseed)
			if err != nil {
				return err
			}
			graphs, err := st.ListGraphs(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d conversations in %s\n", len(ids), path)
			for _, g := range graphs {
				fmt.Fprintf(out, "  %-4s %-20s %d nodes, %d links\n", g.ID, g.Name, len(g.Data.Nodes), len(g.Data.Links))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&db, "db", "", "SQLite database path (default from config)")
	cmd.Flags().BoolVar(&reseed, "reseed", false, "Delete everything before seeding")
	return cmd
}
