package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/Abhinav-Eluri/ProjectZahra/orders-service/internal/storage"

	"github.com/spf13/cobra"
)

func migrateCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel, store, err := g.connect(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			defer store.Close()

			if err := storage.RunMigrations(ctx, store.Pool()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show which migrations are applied",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel, store, err := g.connect(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			defer store.Close()

			statuses, err := storage.MigrationStatus(ctx, store.Pool())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "VERSION\tSTATE\tAPPLIED AT\tFILE")
			for _, s := range statuses {
				applied := "-"
				if !s.AppliedAt.IsZero() {
					applied = s.AppliedAt.Format("2006-01-02 15:04:05")
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", s.Source.Version, s.State, applied, s.Source.Path)
			}
			return tw.Flush()
		},
	})

	return cmd
}
