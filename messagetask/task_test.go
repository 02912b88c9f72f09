package messagetask

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTaskSucceedsWhenReplicationFactorMet(t *testing.T) {
	var calls int32
	cfg := Config{Timeout: 10 * time.Millisecond, ReplicationFactor: 0.5, NumberOfRetries: 3}
	task := New(cfg, []int{1, 2, 3, 4}, func(ctx context.Context, target int) error {
		atomic.AddInt32(&calls, 1)
		if target <= 2 {
			return nil
		}
		return context.DeadlineExceeded
	})

	err := task.Run(context.Background())
	require.NoError(t, err)
}

func TestTaskAbortsOnCancel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timeout = time.Second
	ctx, cancel := context.WithCancel(context.Background())
	task := New(cfg, []int{1}, func(ctx context.Context, target int) error {
		return context.DeadlineExceeded
	})
	cancel()

	err := task.Run(ctx)
	require.ErrorIs(t, err, ErrAborted)
}

func TestTaskExhaustsRetries(t *testing.T) {
	cfg := Config{Timeout: time.Millisecond, ReplicationFactor: 1, NumberOfRetries: 1}
	task := New(cfg, []int{1}, func(ctx context.Context, target int) error {
		return context.DeadlineExceeded
	})

	err := task.Run(context.Background())
	require.Error(t, err)
}
