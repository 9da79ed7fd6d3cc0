package workerpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunVisitsEveryJob(t *testing.T) {
	var count int64
	err := Run(context.Background(), 50, 4, func(ctx context.Context, i int) error {
		atomic.AddInt64(&count, 1)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(50), count)
}

func TestRunReturnsFirstError(t *testing.T) {
	boom := errors.New("boom")
	err := Run(context.Background(), 10, 2, func(ctx context.Context, i int) error {
		if i == 3 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
}

func TestRunZeroJobsIsNoop(t *testing.T) {
	err := Run(context.Background(), 0, 4, func(ctx context.Context, i int) error {
		t.Fatal("fn should not be called")
		return nil
	})
	require.NoError(t, err)
}

func TestRunRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Run(ctx, 5, 1, func(ctx context.Context, i int) error {
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
