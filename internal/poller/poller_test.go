package poller

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/scanjobs/internal/loop"
)

func runLoop(t *testing.T) *loop.Loop {
	t.Helper()
	l := loop.New(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
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
	return l
}

func TestStartTwiceReturnsErrActive(t *testing.T) {
	p := New(runLoop(t))

	require.NoError(t, p.Start(time.Hour, func() {}))
	assert.ErrorIs(t, p.Start(time.Hour, func() {}), ErrActive)
	assert.True(t, p.Active())
	assert.Equal(t, time.Hour, p.Interval())

	assert.True(t, p.Stop())
	assert.False(t, p.Stop(), "stop is idempotent")
	assert.False(t, p.Active())

	require.NoError(t, p.Start(time.Hour, func() {}), "restart after stop")
	p.Stop()
}

func TestTicksStopOnLoopStop(t *testing.T) {
	l := runLoop(t)
	p := New(l)

	var ticks atomic.Int32
	require.NoError(t, p.Start(3*time.Millisecond, func() { ticks.Add(1) }))
	require.Eventually(t, func() bool { return ticks.Load() >= 2 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, l.Call(ctx, func() { p.Stop() }))

	n := ticks.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, ticks.Load())
	assert.Equal(t, int64(n), p.Ticks())
}
