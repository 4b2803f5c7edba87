package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"
)

// Body is the work of one job. It runs on a worker goroutine, reports through
// p and polls c between units of work. A body that observes cancellation
// returns whatever partial result it has, with a nil error.
type Body[In, Out any] func(ctx context.Context, in In, p *Progress, c Canceller) (Out, error)

// Slot holds the per-kind state shared between a job body and its observers.
type Slot struct {
	Kind     Kind
	Progress *Progress
	Token    *Token
}

// Runner executes job bodies off the foreground loop, one in flight per kind.
type Runner struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
	wg     sync.WaitGroup

	mu     sync.Mutex
	slots  map[Kind]*Slot
	active map[Kind]uuid.UUID
}

// NewRunner creates a runner with an idle slot for every kind.
func NewRunner(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
		slots:  make(map[Kind]*Slot, len(kindNames)),
		active: make(map[Kind]uuid.UUID),
	}
	for _, k := range Kinds() {
		r.slots[k] = &Slot{Kind: k, Progress: NewProgress(), Token: &Token{}}
	}
	return r
}

// Slot returns the shared state for kind, or nil for an unknown kind.
func (r *Runner) Slot(kind Kind) *Slot {
	return r.slots[kind]
}

// Active returns the run ID holding kind's slot, if any.
func (r *Runner) Active(kind Kind) (uuid.UUID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.active[kind]
	return id, ok
}

// Shutdown cancels the context passed to running bodies and waits for them
// to return or for ctx to expire.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.cancel()
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubmitOption adjusts a submit.
type SubmitOption func(*submitOptions)

type submitOptions struct {
	prepare func(*Progress)
}

// WithPrepare runs fn against the freshly reset progress record before the
// body starts, so the body and the first observer tick see the payload.
func WithPrepare(fn func(*Progress)) SubmitOption {
	return func(o *submitOptions) {
		o.prepare = fn
	}
}

// Submit starts body on a worker goroutine. It fails with ErrKindBusy while a
// previous handle of the same kind is unreleased. On success the kind's
// progress record is reset and its cancellation token lowered.
func Submit[In, Out any](r *Runner, kind Kind, body Body[In, Out], in In, opts ...SubmitOption) (*Handle[Out], error) {
	slot := r.Slot(kind)
	if slot == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(kind))
	}
	var o submitOptions
	for _, opt := range opts {
		opt(&o)
	}

	r.mu.Lock()
	if running, busy := r.active[kind]; busy {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s (run %s)", ErrKindBusy, kind, shortID(running))
	}

	var h *Handle[Out]
	h = newHandle[Out](kind, func() {
		r.mu.Lock()
		if r.active[kind] == h.ID() {
			delete(r.active, kind)
		}
		r.mu.Unlock()
	})
	r.active[kind] = h.ID()

	slot.Token.reset()
	slot.Progress.Reset()
	if o.prepare != nil {
		o.prepare(slot.Progress)
	}
	r.wg.Add(1)
	r.mu.Unlock()

	r.logger.Debug("job submitted", "kind", kind, "run_id", h.ID())

	go func() {
		defer r.wg.Done()
		out, err := runBody(r, kind, h.ID(), body, in, slot)
		h.complete(out, err)
	}()

	return h, nil
}

// runBody invokes body and converts a returned error or a panic into a
// JobError so failures never escape the worker goroutine.
func runBody[In, Out any](r *Runner, kind Kind, runID uuid.UUID, body Body[In, Out], in In, slot *Slot) (out Out, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("job body panicked",
				"kind", kind,
				"run_id", runID,
				"panic", rec,
				"stack", string(debug.Stack()))
			var zero Out
			out = zero
			err = &JobError{Kind: kind, RunID: runID, Err: fmt.Errorf("%w: %v", ErrJobPanicked, rec)}
		}
	}()

	out, err = body(r.ctx, in, slot.Progress, slot.Token)
	if err != nil {
		err = &JobError{Kind: kind, RunID: runID, Err: err}
	}
	return out, err
}
