package sequencer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequencerCompletesInEnqueueOrder(t *testing.T) {
	s := New("test", nil, nil)
	ctx := context.Background()

	var mu sync.Mutex
	order := []int{}
	record := func(n int) {
		mu.Lock()
		order = append(order, n)
		mu.Unlock()
	}

	slow := s.Enqueue(ctx, "a", func(ctx context.Context) error {
		time.Sleep(50 * time.Millisecond)
		record(1)
		return nil
	})
	fast := s.Enqueue(ctx, "a", func(ctx context.Context) error {
		record(2)
		return nil
	})

	require.NoError(t, fast.Wait(ctx))
	select {
	case <-slow.Done():
	default:
		t.Fatal("second operation resolved before the first")
	}
	assert.Equal(t, []int{1, 2}, order)
}

func TestSequencerRunsOneAtATime(t *testing.T) {
	s := New("test", nil, nil)
	ctx := context.Background()

	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0
	futures := make([]*Future, 0, 20)
	for i := 0; i < 20; i++ {
		futures = append(futures, s.Enqueue(ctx, "a", func(ctx context.Context) error {
			mu.Lock()
			inFlight++
			if inFlight > maxInFlight {
				maxInFlight = inFlight
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inFlight--
			mu.Unlock()
			return nil
		}))
	}

	require.NoError(t, WaitAll(ctx, futures...))
	assert.Equal(t, 1, maxInFlight)
	assert.Equal(t, 0, s.Len())
}

func TestSequencerFailureDoesNotAbortQueue(t *testing.T) {
	s := New("test", nil, nil)
	ctx := context.Background()
	boom := errors.New("boom")

	failed := s.Enqueue(ctx, "a", func(ctx context.Context) error { return boom })
	ran := false
	next := s.Enqueue(ctx, "a", func(ctx context.Context) error {
		ran = true
		return nil
	})

	assert.ErrorIs(t, failed.Wait(ctx), boom)
	require.NoError(t, next.Wait(ctx))
	assert.True(t, ran)
}

func TestSequencerReadsStateAtDequeueTime(t *testing.T) {
	s := New("test", nil, nil)
	ctx := context.Background()

	value := 0
	first := s.Enqueue(ctx, "a", func(ctx context.Context) error {
		time.Sleep(10 * time.Millisecond)
		value = 1
		return nil
	})
	var observed int
	second := s.Enqueue(ctx, "a", func(ctx context.Context) error {
		observed = value
		value = observed + 1
		return nil
	})

	require.NoError(t, WaitAll(ctx, first, second))
	assert.Equal(t, 1, observed)
	assert.Equal(t, 2, value)
}

func TestSequencerAfterFuncRunsBeforeResolve(t *testing.T) {
	var mu sync.Mutex
	invalidated := map[string]int{}
	s := New("test", func(key string) {
		mu.Lock()
		invalidated[key]++
		mu.Unlock()
	}, nil)
	ctx := context.Background()

	require.NoError(t, s.Enqueue(ctx, "acct", func(ctx context.Context) error { return nil }).Wait(ctx))
	mu.Lock()
	assert.Equal(t, 1, invalidated["acct"])
	mu.Unlock()

	assert.Error(t, s.Enqueue(ctx, "acct", func(ctx context.Context) error { return errors.New("x") }).Wait(ctx))
	mu.Lock()
	assert.Equal(t, 2, invalidated["acct"])
	mu.Unlock()
}

func TestSequencerSkipsCancelledOperation(t *testing.T) {
	s := New("test", nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	f := s.Enqueue(ctx, "a", func(ctx context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, f.Wait(context.Background()), context.Canceled)
	assert.False(t, called)
}

func TestSequencerRecoversPanics(t *testing.T) {
	s := New("test", nil, nil)
	ctx := context.Background()

	f := s.Enqueue(ctx, "a", func(ctx context.Context) error { panic("bad") })
	err := f.Wait(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")

	require.NoError(t, s.Enqueue(ctx, "a", func(ctx context.Context) error { return nil }).Wait(ctx))
}

func TestSequencerNilOpAndFlush(t *testing.T) {
	s := New("test", nil, nil)
	ctx := context.Background()

	assert.ErrorIs(t, s.Enqueue(ctx, "a", nil).Wait(ctx), ErrNilOp)

	done := false
	s.Enqueue(ctx, "a", func(ctx context.Context) error {
		time.Sleep(5 * time.Millisecond)
		done = true
		return nil
	})
	require.NoError(t, s.Flush(ctx))
	assert.True(t, done)
}
