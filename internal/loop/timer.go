package loop

import (
	"container/heap"
	"time"
)

// Timer is a scheduled callback on a Loop.
type Timer struct {
	loop  *Loop
	id    uint64
	at    time.Time
	every time.Duration
	fn    func()
	index int // position in the heap, -1 once removed
}

// Stop cancels the timer. It reports whether the timer was still scheduled.
// Once Stop returns, a stop issued on the loop goroutine guarantees no
// further invocation; from other goroutines at most one already-dequeued
// invocation may still run.
func (t *Timer) Stop() bool {
	if t == nil || t.loop == nil {
		return false
	}
	l := t.loop
	l.mu.Lock()
	defer l.mu.Unlock()
	if t.index < 0 {
		return false
	}
	heap.Remove(&l.timers, t.index)
	return true
}

// timerHeap implements heap.Interface for Timers ordered by due time.
type timerHeap []*Timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].id < h[j].id
	}
	return h[i].at.Before(h[j].at)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
