package jobs

import "sync/atomic"

// Canceller is the view of a cancellation token handed to job bodies.
// ShouldCancel consumes a pending request: it reports true at most once per
// request.
type Canceller interface {
	ShouldCancel() bool
}

// Token is a per-kind cooperative cancellation flag.
// Requests are sticky until a job body consumes them or the next submit
// resets the token.
type Token struct {
	requested atomic.Bool
}

// RequestCancel raises the flag. Raising it twice is the same as once.
func (t *Token) RequestCancel() {
	t.requested.Store(true)
}

// TakeAndReset atomically reads and lowers the flag.
func (t *Token) TakeAndReset() bool {
	return t.requested.CompareAndSwap(true, false)
}

// ShouldCancel implements Canceller.
func (t *Token) ShouldCancel() bool {
	return t.TakeAndReset()
}

// Pending reports whether a request is raised without consuming it.
func (t *Token) Pending() bool {
	return t.requested.Load()
}

func (t *Token) reset() {
	t.requested.Store(false)
}
