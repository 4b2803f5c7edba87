// Package loop provides the foreground event loop: a single goroutine that
// runs posted callbacks and timers in order. Everything that touches
// observer-facing state is delivered through it.
package loop

import (
	"container/heap"
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// ErrRunning is returned when Run is called on a loop that is already running.
var ErrRunning = errors.New("loop already running")

// Loop serializes callbacks onto one goroutine. Post and timer registration
// are safe from any goroutine and never block on the loop.
type Loop struct {
	logger  *slog.Logger
	running atomic.Bool
	wake    chan struct{}

	mu      sync.Mutex
	pending []func()
	timers  timerHeap
	nextID  uint64
}

// New creates an idle loop. Call Run to start processing.
func New(logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		logger: logger,
		wake:   make(chan struct{}, 1),
	}
}

// Post schedules fn to run on the loop goroutine after previously posted
// callbacks.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.pending = append(l.pending, fn)
	l.mu.Unlock()
	l.signal()
}

// AfterFunc schedules fn to run once on the loop after d.
func (l *Loop) AfterFunc(d time.Duration, fn func()) *Timer {
	return l.schedule(d, 0, fn)
}

// Every schedules fn to run on the loop every d until the timer is stopped.
// Missed ticks are dropped rather than replayed.
func (l *Loop) Every(d time.Duration, fn func()) *Timer {
	if d <= 0 {
		d = time.Millisecond
	}
	return l.schedule(d, d, fn)
}

// Call runs fn on the loop and waits for it to finish.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports whether Run is active.
func (l *Loop) Running() bool {
	return l.running.Load()
}

// Run processes callbacks until ctx is done. Posted callbacks run before any
// timers that are due in the same pass.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer l.running.Store(false)

	l.logger.Debug("loop started")
	defer l.logger.Debug("loop stopped")

	var wait *time.Timer
	defer func() {
		if wait != nil {
			wait.Stop()
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		ran := false
		for _, fn := range l.drain() {
			l.invoke(fn)
			ran = true
		}
		for {
			fn, ok := l.popDue(time.Now())
			if !ok {
				break
			}
			l.invoke(fn)
			ran = true
		}
		if ran {
			continue
		}

		var timerC <-chan time.Time
		if d, ok := l.nextDue(); ok {
			if wait == nil {
				wait = time.NewTimer(d)
			} else {
				wait.Reset(d)
			}
			timerC = wait.C
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		case <-timerC:
		}
		if wait != nil {
			wait.Stop()
		}
	}
}

func (l *Loop) schedule(d, every time.Duration, fn func()) *Timer {
	l.mu.Lock()
	l.nextID++
	t := &Timer{
		loop:  l,
		id:    l.nextID,
		at:    time.Now().Add(d),
		every: every,
		fn:    fn,
	}
	heap.Push(&l.timers, t)
	l.mu.Unlock()
	l.signal()
	return t
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) drain() []func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	fns := l.pending
	l.pending = nil
	return fns
}

// popDue dequeues the earliest due timer. Repeating timers are rescheduled
// before their callback runs so a callback can stop its own timer.
func (l *Loop) popDue(now time.Time) (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.timers) == 0 {
		return nil, false
	}
	t := l.timers[0]
	if t.at.After(now) {
		return nil, false
	}
	if t.every > 0 {
		t.at = t.at.Add(t.every)
		if !t.at.After(now) {
			t.at = now.Add(t.every)
		}
		heap.Fix(&l.timers, 0)
	} else {
		heap.Pop(&l.timers)
	}
	return t.fn, true
}

func (l *Loop) nextDue() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.timers) == 0 {
		return 0, false
	}
	return max(0, time.Until(l.timers[0].at)), true
}

func (l *Loop) invoke(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			l.logger.Error("loop callback panicked",
				"panic", rec,
				"stack", string(debug.Stack()))
		}
	}()
	fn()
}
