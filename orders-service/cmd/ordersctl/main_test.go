package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/Abhinav-Eluri/ProjectZahra/orders-service/internal/auth"
	"github.com/Abhinav-Eluri/ProjectZahra/orders-service/internal/order"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := rootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-secret")

	out, err := run(t, "token", "--user", "user-7", "--email", "u7@example.com")
	require.NoError(t, err)

	id, err := auth.NewVerifier("cli-secret").Verify(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, auth.Identity{UserID: "user-7", Email: "u7@example.com"}, id)
}

func TestTokenCommandNeedsSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := run(t, "token", "--user", "user-7")
	assert.Error(t, err)
}

func TestCommandsNeedDatabase(t *testing.T) {
	t.Setenv("ORDERS_DATABASE_URL", "")
	for _, args := range [][]string{{"migrate"}, {"migrate", "status"}, {"anomalies"}} {
		_, err := run(t, args...)
		require.Error(t, err, args)
		assert.Contains(t, err.Error(), "no database", args)
	}
}

func TestPrintAnomalies(t *testing.T) {
	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetOut(&out)

	require.NoError(t, printAnomalies(cmd, nil, false))
	assert.Equal(t, "no anomalies\n", out.String())

	out.Reset()
	anomalies := []order.Anomaly{{
		OrderID:        "order-1",
		CurrentStatus:  order.StatusPaid,
		ReportedStatus: order.StatusFailed,
		Channel:        "webhook",
		CreatedAt:      time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC),
	}}
	require.NoError(t, printAnomalies(cmd, anomalies, false))
	assert.Contains(t, out.String(), "2026-02-03 04:05:06")
	assert.Contains(t, out.String(), "order-1")

	out.Reset()
	require.NoError(t, printAnomalies(cmd, nil, true))
	assert.Equal(t, "[]\n", out.String())
}
