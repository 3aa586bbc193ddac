package messaging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{attempts: -3, want: time.Second},
		{attempts: 0, want: time.Second},
		{attempts: 1, want: 2 * time.Second},
		{attempts: 3, want: 8 * time.Second},
		{attempts: 5, want: 32 * time.Second},
		{attempts: 6, want: time.Minute},
		{attempts: 40, want: time.Minute},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, retryDelay(tt.attempts), "attempts=%d", tt.attempts)
	}
}
