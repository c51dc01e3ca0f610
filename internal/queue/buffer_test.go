package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGrowableBuffer_BasicSendReceive(t *testing.T) {
	buf := NewGrowableBuffer[int](10)

	for i := 0; i < 5; i++ {
		require.True(t, buf.Send(i))
	}
	assert.Equal(t, 5, buf.Len())

	for i := 0; i < 5; i++ {
		val, ok := buf.TryReceive()
		require.True(t, ok)
		assert.Equal(t, i, val)
	}
	assert.Equal(t, 0, buf.Len())
}

func TestGrowableBuffer_GrowAt70Percent(t *testing.T) {
	buf := NewGrowableBuffer[int](10)

	for i := 0; i < 7; i++ {
		buf.Send(i)
	}

	stats := buf.Stats()
	assert.Greater(t, stats.Capacity, 10)
	assert.Equal(t, 1, stats.ResizeCount)

	for i := 0; i < 7; i++ {
		val, ok := buf.TryReceive()
		require.True(t, ok)
		assert.Equal(t, i, val)
	}
}

func TestGrowableBuffer_MultipleGrowsKeepOrder(t *testing.T) {
	buf := NewGrowableBuffer[int](4)

	for i := 0; i < 100; i++ {
		require.True(t, buf.Send(i))
	}

	stats := buf.Stats()
	assert.Equal(t, 100, stats.Count)
	assert.GreaterOrEqual(t, stats.ResizeCount, 3)

	for i := 0; i < 100; i++ {
		val, ok := buf.TryReceive()
		require.True(t, ok)
		assert.Equal(t, i, val)
	}
}

func TestGrowableBuffer_WrapAround(t *testing.T) {
	buf := NewGrowableBuffer[int](5)

	buf.Send(1)
	buf.Send(2)
	buf.Send(3)
	buf.TryReceive()
	buf.TryReceive()

	// Wraps, then grows while wrapped.
	for _, v := range []int{4, 5, 6, 7, 8} {
		buf.Send(v)
	}

	assert.Equal(t, []int{3, 4, 5, 6, 7, 8}, buf.DrainTo(0))
}

func TestGrowableBuffer_BlockingReceive(t *testing.T) {
	buf := NewGrowableBuffer[int](10)
	received := make(chan int, 1)

	go func() {
		if val, ok := buf.Receive(); ok {
			received <- val
		}
	}()

	time.Sleep(10 * time.Millisecond)
	buf.Send(42)

	select {
	case val := <-received:
		assert.Equal(t, 42, val)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for blocked receive")
	}
}

func TestGrowableBuffer_ReceiveContextCancelled(t *testing.T) {
	buf := NewGrowableBuffer[string](2)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := buf.ReceiveContext(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGrowableBuffer_Close(t *testing.T) {
	buf := NewGrowableBuffer[int](10)
	buf.Send(1)
	buf.Send(2)
	buf.Close()
	buf.Close()

	assert.False(t, buf.Send(3), "Send should fail after Close")

	val, err := buf.ReceiveContext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, val)

	val, ok := buf.Receive()
	require.True(t, ok)
	assert.Equal(t, 2, val)

	_, err = buf.ReceiveContext(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestGrowableBuffer_CloseUnblocksReceivers(t *testing.T) {
	buf := NewGrowableBuffer[int](10)

	var wg sync.WaitGroup
	results := make(chan bool, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok := buf.Receive()
			results <- ok
		}()
	}

	time.Sleep(10 * time.Millisecond)
	buf.Close()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not unblock all receivers")
	}
	close(results)
	for ok := range results {
		assert.False(t, ok)
	}
}

func TestGrowableBuffer_DrainTo(t *testing.T) {
	buf := NewGrowableBuffer[int](10)
	for i := 0; i < 10; i++ {
		buf.Send(i)
	}

	assert.Equal(t, []int{0, 1, 2, 3, 4}, buf.DrainTo(5))
	assert.Equal(t, 5, buf.Len())
	assert.Len(t, buf.DrainTo(0), 5)
	assert.Nil(t, buf.DrainTo(0))
}

func TestGrowableBuffer_ConcurrentReceivers(t *testing.T) {
	buf := NewGrowableBuffer[int](8)
	const numItems = 1000

	var mu sync.Mutex
	seen := make(map[int]bool)

	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				val, ok := buf.Receive()
				if !ok {
					return
				}
				mu.Lock()
				seen[val] = true
				mu.Unlock()
			}
		}()
	}

	for i := 0; i < numItems; i++ {
		buf.Send(i)
	}
	buf.Close()
	wg.Wait()

	assert.Len(t, seen, numItems)
}

func TestGrowableBuffer_Stats(t *testing.T) {
	buf := NewGrowableBuffer[int](10)
	assert.Equal(t, BufferStats{Capacity: 10}, buf.Stats())

	buf.Send(1)
	buf.Send(2)
	buf.Send(3)
	buf.TryReceive()
	buf.TryReceive()

	stats := buf.Stats()
	assert.Equal(t, 1, stats.Count)
	assert.Equal(t, int64(3), stats.TotalReceived)
	assert.Equal(t, int64(2), stats.TotalSent)
}

func TestNewGrowableBuffer_MinCapacity(t *testing.T) {
	assert.Equal(t, 1, NewGrowableBuffer[int](0).Cap())
	assert.Equal(t, 1, NewGrowableBuffer[int](-5).Cap())
}
