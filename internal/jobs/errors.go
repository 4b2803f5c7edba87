package jobs

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Sentinel errors for job engine misuse.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrKindBusy indicates a submit for a kind that already has a job in flight.
	// The in-flight job is not disturbed.
	ErrKindBusy = errors.New("job kind already running")

	// ErrResultConsumed indicates a second retrieval of a handle's result,
	// or a retrieval after the handle was released.
	ErrResultConsumed = errors.New("job result already consumed")

	// ErrUnknownKind indicates a kind value outside the known set.
	ErrUnknownKind = errors.New("unknown job kind")

	// ErrJobPanicked marks a job body that panicked instead of returning.
	ErrJobPanicked = errors.New("job body panicked")
)

// JobError wraps a failure returned (or raised) by a job body.
type JobError struct {
	Kind  Kind
	RunID uuid.UUID
	Err   error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("%s job %s: %v", e.Kind, shortID(e.RunID), e.Err)
}

func (e *JobError) Unwrap() error {
	return e.Err
}

func shortID(id uuid.UUID) string {
	return id.String()[:8]
}
