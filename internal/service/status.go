package service

import (
	"fmt"
	"time"

	"github.com/raphaelgruber/scanjobs/internal/jobs"
)

// KindStatus is a point-in-time view of one job kind.
type KindStatus struct {
	Kind          jobs.Kind             `json:"kind"`
	State         State                 `json:"state"`
	RunID         string                `json:"run_id,omitempty"`
	Since         *time.Time            `json:"since,omitempty"`
	RunningForMs  int64                 `json:"running_for_ms,omitempty"`
	Stuck         bool                  `json:"stuck,omitempty"`
	CancelPending bool                  `json:"cancel_pending,omitempty"`
	LastOutcome   Outcome               `json:"last_outcome,omitempty"`
	LastError     string                `json:"last_error,omitempty"`
	LastDuration  int64                 `json:"last_duration_ms,omitempty"`
	Progress      jobs.ProgressSnapshot `json:"progress"`
}

// Status reports the state of kind. A run that has been Running longer than
// the configured StuckAfter is flagged so a hung job body stays observable.
func (s *OCRService) Status(kind jobs.Kind) (KindStatus, error) {
	if !kind.Valid() {
		return KindStatus{}, fmt.Errorf("%w: %d", jobs.ErrUnknownKind, int(kind))
	}
	slot := s.runner.Slot(kind)

	s.mu.Lock()
	st := s.kinds[kind]
	out := KindStatus{
		Kind:         kind,
		State:        st.state,
		LastOutcome:  st.lastOutcome,
		LastError:    st.lastError,
		LastDuration: st.lastDuration.Milliseconds(),
	}
	if st.state == StateRunning {
		since := st.since
		runningFor := time.Since(since)
		out.RunID = st.runID.String()
		out.Since = &since
		out.RunningForMs = runningFor.Milliseconds()
		out.Stuck = s.opts.StuckAfter > 0 && runningFor > s.opts.StuckAfter
		out.CancelPending = slot.Token.Pending()
	}
	s.mu.Unlock()

	out.Progress = slot.Progress.Snapshot()
	return out, nil
}

// Statuses reports every kind in declaration order.
func (s *OCRService) Statuses() []KindStatus {
	out := make([]KindStatus, 0, len(jobs.Kinds()))
	for _, k := range jobs.Kinds() {
		st, _ := s.Status(k)
		out = append(out, st)
	}
	return out
}
