package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Abhinav-Eluri/ProjectZahra/orders-service/internal/metrics"
	"github.com/Abhinav-Eluri/ProjectZahra/orders-service/internal/notify"
	"github.com/Abhinav-Eluri/ProjectZahra/orders-service/internal/order"
	"github.com/Abhinav-Eluri/ProjectZahra/orders-service/internal/payment"
	"github.com/Abhinav-Eluri/ProjectZahra/orders-service/internal/reconcile"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func reconcileCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile <order-id>",
		Short: "Ask the payment processor about an order and apply the answer",
		Long: `Looks up the order's checkout session with the processor and runs the same
transition the webhook and return paths use. Safe to repeat.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := os.Getenv("STRIPE_SECRET_KEY")
			if key == "" {
				return errors.New("STRIPE_SECRET_KEY is not set")
			}

			ctx, cancel, store, err := g.connect(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			defer store.Close()

			currency := strings.ToLower(os.Getenv("CHECKOUT_CURRENCY"))
			if currency == "" {
				currency = "eur"
			}

			engine := reconcile.NewEngine(
				order.NewStore(store.Pool()),
				payment.NewStripeProcessor(key, nil),
				nil,
				notify.NewOutboxNotifier(store.Pool(), currency),
				nil,
				metrics.New(prometheus.NewRegistry()),
				g.logger(),
			)

			res, err := engine.Recheck(ctx, args[0], reconcile.ChannelCLI)
			out := cmd.OutOrStdout()
			switch {
			case err == nil:
			case errors.Is(err, order.ErrReconciliationConflict):
				fmt.Fprintf(out, "conflict recorded: order %s stays %s\n", res.Order.ID, res.Order.Status)
				return nil
			default:
				return err
			}

			if res.Applied {
				fmt.Fprintf(out, "order %s is now %s\n", res.Order.ID, res.Order.Status)
			} else {
				fmt.Fprintf(out, "order %s unchanged (%s)\n", res.Order.ID, res.Order.Status)
			}
			return nil
		},
	}
}
