package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Abhinav-Eluri/ProjectZahra/orders-service/internal/auth"

	"github.com/spf13/cobra"
)

func tokenCmd() *cobra.Command {
	var (
		userID string
		email  string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a bearer token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("JWT_SECRET")
			if secret == "" {
				return errors.New("JWT_SECRET is not set")
			}
			token, err := auth.NewVerifier(secret).Issue(auth.Identity{UserID: userID, Email: email}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User id (sub claim)")
	cmd.Flags().StringVar(&email, "email", "", "Buyer email")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
