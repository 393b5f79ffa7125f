package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func remaining(t *testing.T, ctx context.Context) time.Duration {
	t.Helper()
	deadline, ok := ctx.Deadline()
	require.True(t, ok, "expected a deadline")
	return time.Until(deadline)
}

func TestTimeouts_ZeroValueUsesDefaults(t *testing.T) {
	var zero Timeouts
	parent := context.Background()

	tests := []struct {
		name string
		fn   func(context.Context) (context.Context, context.CancelFunc)
		want time.Duration
	}{
		{"query", zero.QueryContext, DefaultQueryTimeout},
		{"write", zero.WriteContext, DefaultWriteTimeout},
		{"migration", zero.MigrationContext, DefaultMigrationTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := tt.fn(parent)
			defer cancel()
			left := remaining(t, ctx)
			assert.LessOrEqual(t, left, tt.want)
			assert.Greater(t, left, tt.want-time.Second)
		})
	}
}

func TestTimeouts_Configured(t *testing.T) {
	timeouts := Timeouts{Query: 50 * time.Millisecond, Write: -1}

	ctx, cancel := timeouts.QueryContext(context.Background())
	defer cancel()
	assert.LessOrEqual(t, remaining(t, ctx), 50*time.Millisecond)

	ctx, cancel = timeouts.WriteContext(context.Background())
	defer cancel()
	_, ok := ctx.Deadline()
	assert.False(t, ok)
	cancel()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestTimeouts_KeepsEarlierParentDeadline(t *testing.T) {
	parent, cancelParent := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelParent()

	ctx, cancel := DefaultTimeouts().MigrationContext(parent)
	defer cancel()
	assert.LessOrEqual(t, remaining(t, ctx), 20*time.Millisecond)
}
