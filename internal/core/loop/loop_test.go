package loop

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDrainRunsInOrderIncludingNested(t *testing.T) {
	l := New()
	var got []int
	l.Post(func() {
		got = append(got, 1)
		l.Post(func() { got = append(got, 3) })
	})
	l.Post(func() { got = append(got, 2) })

	assert.Equal(t, 3, l.Drain())
	assert.Equal(t, []int{1, 2, 3}, got)
	assert.Equal(t, 0, l.Pending())
}

func TestPostFromGoroutines(t *testing.T) {
	l := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Post(func() {})
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, l.Drain())
}

func TestRunUntil(t *testing.T) {
	l := New()
	done := false
	go func() {
		time.Sleep(10 * time.Millisecond)
		l.Post(func() { done = true })
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, l.RunUntil(ctx, func() bool { return done }))
	assert.True(t, done)
}

func TestRunUntilTimeout(t *testing.T) {
	l := New()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.RunUntil(ctx, func() bool { return false }), context.DeadlineExceeded)
}

func TestRunTicks(t *testing.T) {
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	ticks := 0
	err := l.Run(ctx, time.Millisecond, func(dt time.Duration) {
		ticks++
		if ticks == 3 {
			cancel()
		}
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, ticks)
}

func TestClosedRejectsPost(t *testing.T) {
	l := New()
	l.Close()
	assert.False(t, l.Post(func() {}))
	assert.Equal(t, 0, l.Drain())
}
