package bus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueTryPublishFull(t *testing.T) {
	q := NewQueue[int](1)
	require.NoError(t, q.TryPublish(1))
	require.ErrorIs(t, q.TryPublish(2), ErrQueueFull)
	assert.Equal(t, 1, q.Len())

	q.Close()
	require.ErrorIs(t, q.TryPublish(3), ErrQueueClosed)
	require.ErrorIs(t, q.Publish(context.Background(), 3), ErrQueueClosed)
}

func TestQueueRunDrainsAfterClose(t *testing.T) {
	q := NewQueue[string](4)
	ctx := context.Background()
	for _, s := range []string{"a", "b", "c"} {
		require.NoError(t, q.Publish(ctx, s))
	}
	q.Close()

	var got []string
	require.NoError(t, q.Run(ctx, func(s string) error {
		got = append(got, s)
		return nil
	}))
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestQueuePublishHonoursContext(t *testing.T) {
	q := NewQueue[int](1)
	require.NoError(t, q.TryPublish(1))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, q.Publish(ctx, 2), context.DeadlineExceeded)
}

func TestQueueRunStopsOnHandlerError(t *testing.T) {
	q := NewQueue[int](2)
	require.NoError(t, q.TryPublish(1))
	require.NoError(t, q.TryPublish(2))
	boom := errors.New("boom")

	err := q.Run(context.Background(), func(int) error { return boom })
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, q.Len())
}
