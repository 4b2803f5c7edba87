// Package poller provides the periodic progress ticker used while a job
// kind is running. Ticks are delivered on the foreground loop.
package poller

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/raphaelgruber/scanjobs/internal/loop"
)

// Default tick intervals for the two job families.
const (
	OCRInterval       = 250 * time.Millisecond
	ThumbnailInterval = 100 * time.Millisecond
)

// ErrActive is returned by Start while the poller is already ticking.
var ErrActive = errors.New("poller already active")

// Poller invokes a callback on the loop at a fixed interval until stopped.
type Poller struct {
	loop  *loop.Loop
	ticks atomic.Int64

	mu       sync.Mutex
	timer    *loop.Timer
	interval time.Duration
}

// New creates an inactive poller bound to l.
func New(l *loop.Loop) *Poller {
	return &Poller{loop: l}
}

// Start begins ticking. The first tick fires one interval after Start.
func (p *Poller) Start(interval time.Duration, onTick func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timer != nil {
		return ErrActive
	}
	p.interval = interval
	p.timer = p.loop.Every(interval, func() {
		p.ticks.Add(1)
		onTick()
	})
	return nil
}

// Stop halts ticking. It is idempotent and reports whether the poller was
// active. Stopping from the loop goroutine guarantees no further ticks.
func (p *Poller) Stop() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timer == nil {
		return false
	}
	p.timer.Stop()
	p.timer = nil
	return true
}

// Active reports whether the poller is ticking.
func (p *Poller) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timer != nil
}

// Interval returns the interval of the current or most recent run.
func (p *Poller) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval
}

// Ticks returns the number of ticks delivered since creation.
func (p *Poller) Ticks() int64 {
	return p.ticks.Load()
}
