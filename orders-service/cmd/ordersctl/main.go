package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/Abhinav-Eluri/ProjectZahra/orders-service/internal/storage"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var Version = "dev"

type globals struct {
	databaseURL string
	timeout     time.Duration
	verbose     bool
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "ordersctl",
		Short:         "Operate the orders database and payment reconciliation",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load()
			if g.databaseURL == "" {
				g.databaseURL = os.Getenv("ORDERS_DATABASE_URL")
			}
		},
	}

	root.PersistentFlags().StringVar(&g.databaseURL, "database-url", "", "Postgres URL (default $ORDERS_DATABASE_URL)")
	root.PersistentFlags().DurationVar(&g.timeout, "timeout", 30*time.Second, "Overall command timeout")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Log to stderr")

	root.AddCommand(migrateCmd(g))
	root.AddCommand(anomaliesCmd(g))
	root.AddCommand(reconcileCmd(g))
	root.AddCommand(tokenCmd())

	return root
}

func (g *globals) logger() *slog.Logger {
	if !g.verbose {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func (g *globals) connect(cmd *cobra.Command) (context.Context, context.CancelFunc, *storage.Store, error) {
	if g.databaseURL == "" {
		return nil, nil, nil, fmt.Errorf("no database: pass --database-url or set ORDERS_DATABASE_URL")
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), g.timeout)
	store, err := storage.Connect(ctx, g.databaseURL)
	if err != nil {
		cancel()
		return nil, nil, nil, err
	}
	return ctx, cancel, store, nil
}
