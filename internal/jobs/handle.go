package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Handle is a one-shot reference to the eventual result of a submitted job.
// The result can be retrieved exactly once. Release frees the kind slot on
// the runner so the next job of the same kind can be submitted.
type Handle[T any] struct {
	id        uuid.UUID
	kind      Kind
	startedAt time.Time
	done      chan struct{}

	mu        sync.Mutex
	finished  bool
	value     T
	err       error
	consumed  bool
	released  bool
	callbacks []func()
	onRelease func()
}

func newHandle[T any](kind Kind, onRelease func()) *Handle[T] {
	return &Handle[T]{
		id:        uuid.New(),
		kind:      kind,
		startedAt: time.Now(),
		done:      make(chan struct{}),
		onRelease: onRelease,
	}
}

// ID returns the run identifier assigned at submit time.
func (h *Handle[T]) ID() uuid.UUID { return h.id }

func (h *Handle[T]) Kind() Kind { return h.kind }

func (h *Handle[T]) StartedAt() time.Time { return h.startedAt }

// Done is closed when the job body has returned.
func (h *Handle[T]) Done() <-chan struct{} { return h.done }

// OnComplete registers fn to run once the job finishes. fn runs on the worker
// goroutine, or immediately on the caller's goroutine if the job already
// finished. Callbacks must not block.
func (h *Handle[T]) OnComplete(fn func()) {
	h.mu.Lock()
	if h.finished {
		h.mu.Unlock()
		fn()
		return
	}
	h.callbacks = append(h.callbacks, fn)
	h.mu.Unlock()
}

// Result waits for the job and consumes its result.
func (h *Handle[T]) Result() (T, error) {
	return h.Wait(context.Background())
}

// Wait is Result bounded by ctx. A cancelled wait does not consume the result.
func (h *Handle[T]) Wait(ctx context.Context) (T, error) {
	var zero T
	select {
	case <-h.done:
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.consumed {
		return zero, ErrResultConsumed
	}
	h.consumed = true
	v, err := h.value, h.err
	h.value = zero
	return v, err
}

// Release gives up the handle and frees the kind slot. It is idempotent and
// safe to call before the job finishes; the slot is then freed on completion.
func (h *Handle[T]) Release() {
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return
	}
	h.released = true
	h.consumed = true
	var zero T
	h.value = zero
	finished := h.finished
	h.mu.Unlock()

	if finished {
		h.onRelease()
		return
	}
	h.OnComplete(h.onRelease)
}

func (h *Handle[T]) complete(v T, err error) {
	h.mu.Lock()
	if h.finished {
		h.mu.Unlock()
		return
	}
	h.finished = true
	if !h.consumed {
		h.value = v
		h.err = err
	}
	callbacks := h.callbacks
	h.callbacks = nil
	close(h.done)
	h.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}
