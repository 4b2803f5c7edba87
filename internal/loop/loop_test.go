package loop

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func startLoop(t *testing.T) *Loop {
	t.Helper()
	l := New(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = l.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	require.Eventually(t, l.Running, time.Second, time.Millisecond)
	return l
}

func TestPostRunsInOrderOnOneGoroutine(t *testing.T) {
	l := startLoop(t)

	var (
		mu  sync.Mutex
		got []int
	)
	for i := range 50 {
		l.Post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, l.Call(ctx, func() {}))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 50)
	for i, v := range got {
		if v != i {
			t.Fatalf("callback %d ran at position %d", v, i)
		}
	}
}

func TestEveryRepeatsUntilStopped(t *testing.T) {
	l := startLoop(t)

	var ticks atomic.Int32
	timer := l.Every(5*time.Millisecond, func() { ticks.Add(1) })

	require.Eventually(t, func() bool { return ticks.Load() >= 3 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	var stopped bool
	require.NoError(t, l.Call(ctx, func() { stopped = timer.Stop() }))
	assert.True(t, stopped)

	after := ticks.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, ticks.Load(), "no ticks after stop on the loop")
	assert.False(t, timer.Stop(), "second stop is a no-op")
}

func TestTimerCanStopItself(t *testing.T) {
	l := startLoop(t)

	var ticks atomic.Int32
	var timer *Timer
	ready := make(chan struct{})
	timer = l.Every(2*time.Millisecond, func() {
		<-ready
		ticks.Add(1)
		timer.Stop()
	})
	close(ready)

	require.Eventually(t, func() bool { return ticks.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), ticks.Load())
}

func TestAfterFuncFiresOnce(t *testing.T) {
	l := startLoop(t)

	fired := make(chan struct{}, 2)
	timer := l.AfterFunc(5*time.Millisecond, func() { fired <- struct{}{} })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
	assert.False(t, timer.Stop(), "fired one-shot timers are no longer scheduled")

	select {
	case <-fired:
		t.Fatal("one-shot timer fired twice")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestStoppedTimerNeverFires(t *testing.T) {
	l := startLoop(t)

	var fired atomic.Bool
	timer := l.AfterFunc(20*time.Millisecond, func() { fired.Store(true) })
	assert.True(t, timer.Stop())

	time.Sleep(40 * time.Millisecond)
	assert.False(t, fired.Load())
}

func TestPanickingCallbackDoesNotKillLoop(t *testing.T) {
	l := startLoop(t)

	l.Post(func() { panic("boom") })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ran := false
	require.NoError(t, l.Call(ctx, func() { ran = true }))
	assert.True(t, ran)
}

func TestRunTwiceFails(t *testing.T) {
	l := startLoop(t)
	assert.ErrorIs(t, l.Run(context.Background()), ErrRunning)
}
