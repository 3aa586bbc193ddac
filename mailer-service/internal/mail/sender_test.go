package mail

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMessage(t *testing.T) {
	m, err := BuildMessage("Project Zahra", "shop@example.com", Message{
		To:      "buyer@example.com",
		Subject: "Order Confirmation #order-1",
		HTML:    "<p>Thanks</p>",
		Text:    "Thanks",
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = m.WriteTo(&buf)
	require.NoError(t, err)
	raw := buf.String()
	assert.Contains(t, raw, "Project Zahra")
	assert.Contains(t, raw, "<shop@example.com>")
	assert.Contains(t, raw, "<buyer@example.com>")
	assert.Contains(t, raw, "Order Confirmation #order-1")
	assert.Contains(t, raw, "text/html")
}

func TestBuildMessageRejectsBadAddress(t *testing.T) {
	_, err := BuildMessage("Shop", "shop@example.com", Message{To: "not an address", Text: "x"})
	assert.Error(t, err)
}

func TestLogSenderNeverFails(t *testing.T) {
	s := NewLogSender(slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.NoError(t, s.Send(context.Background(), Message{To: "buyer@example.com"}))
}
