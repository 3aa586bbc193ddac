package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/Abhinav-Eluri/ProjectZahra/orders-service/internal/order"

	"github.com/spf13/cobra"
)

func anomaliesCmd(g *globals) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "anomalies",
		Short: "List processor reports that contradicted a settled order",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel, store, err := g.connect(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			defer store.Close()

			anomalies, err := order.NewStore(store.Pool()).ListAnomalies(ctx, limit)
			if err != nil {
				return err
			}
			return printAnomalies(cmd, anomalies, asJSON)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum rows")
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "Output as JSON")
	return cmd
}

func printAnomalies(cmd *cobra.Command, anomalies []order.Anomaly, asJSON bool) error {
	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if anomalies == nil {
			anomalies = []order.Anomaly{}
		}
		return enc.Encode(anomalies)
	}
	if len(anomalies) == 0 {
		fmt.Fprintln(out, "no anomalies")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tORDER\tCURRENT\tREPORTED\tCHANNEL")
	for _, a := range anomalies {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			a.CreatedAt.Format("2006-01-02 15:04:05"), a.OrderID, a.CurrentStatus, a.ReportedStatus, a.Channel)
	}
	return tw.Flush()
}
