// Package service provides the orchestration facade for background OCR,
// PDF, rotation and thumbnail jobs.
package service

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raphaelgruber/scanjobs/internal/jobs"
	"github.com/raphaelgruber/scanjobs/internal/loop"
	"github.com/raphaelgruber/scanjobs/internal/metrics"
	"github.com/raphaelgruber/scanjobs/internal/poller"
)

// ErrInvalidInput indicates a submit whose payload cannot describe a job.
var ErrInvalidInput = errors.New("invalid job input")

// ErrNoJobBody indicates a submit for a kind that has no body configured.
var ErrNoJobBody = errors.New("no job body configured")

// State is the facade-level lifecycle of a job kind.
// Completed, cancelled and failed runs are transient and land back on Idle.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
)

// Outcome records how the most recent run of a kind ended.
type Outcome string

const (
	OutcomeNone      Outcome = ""
	OutcomeCompleted Outcome = "completed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailed    Outcome = "failed"
)

// Bodies supplies the job body for each kind.
type Bodies struct {
	AnalyzeImage jobs.Body[jobs.ImageInput, string]
	AnalyzePDF   jobs.Body[jobs.PDFInput, string]
	RotateImage  jobs.Body[jobs.RotateInput, string]
	Thumbnails   jobs.Body[jobs.ThumbnailInput, []string]
}

// Options tunes the facade. Zero values select the defaults.
type Options struct {
	OCRInterval       time.Duration
	ThumbnailInterval time.Duration
	// StuckAfter is how long a run may stay Running before a warning is
	// logged and Status reports it stuck. Zero disables detection.
	StuckAfter time.Duration
	Metrics    *metrics.Collector
	Logger     *slog.Logger
}

type kindState struct {
	state        State
	runID        uuid.UUID
	since        time.Time
	poller       *poller.Poller
	stuckWarned  bool
	lastOutcome  Outcome
	lastError    string
	lastDuration time.Duration
}

// OCRService is the single entry point for UI collaborators. It owns one
// submit/cancel pair per job kind, the pollers that republish progress, and
// the outbound event stream. All events are emitted on the loop.
type OCRService struct {
	loop    *loop.Loop
	runner  *jobs.Runner
	bodies  Bodies
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Collector
	bus     eventBus

	mu          sync.Mutex
	kinds       map[jobs.Kind]*kindState
	rotated     bool
	rotatedPath string
	thumbsReady bool
}

// NewOCRService wires the facade to a loop and runner.
func NewOCRService(l *loop.Loop, runner *jobs.Runner, bodies Bodies, opts Options) *OCRService {
	if opts.OCRInterval <= 0 {
		opts.OCRInterval = poller.OCRInterval
	}
	if opts.ThumbnailInterval <= 0 {
		opts.ThumbnailInterval = poller.ThumbnailInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewCollector()
	}

	s := &OCRService{
		loop:    l,
		runner:  runner,
		bodies:  bodies,
		opts:    opts,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		kinds:   make(map[jobs.Kind]*kindState),
	}
	for _, k := range jobs.Kinds() {
		s.kinds[k] = &kindState{state: StateIdle, poller: poller.New(l)}
	}
	return s
}

// Subscribe registers h for all events and returns a function that removes it.
func (s *OCRService) Subscribe(h Handler) func() {
	return s.bus.subscribe(h)
}

// Metrics returns the collector recording run statistics.
func (s *OCRService) Metrics() *metrics.Collector {
	return s.metrics
}

// Analyze submits an AnalyzeImage job for the image at path, optionally
// cropped to the region enclosed by crop.
func (s *OCRService) Analyze(path string, crop jobs.CropPoints) (uuid.UUID, error) {
	path = normalizePath(path)
	if path == "" {
		return uuid.Nil, fmt.Errorf("%w: empty image path", ErrInvalidInput)
	}
	return start(s, submission[jobs.ImageInput, string]{
		kind:  jobs.AnalyzeImage,
		body:  s.bodies.AnalyzeImage,
		input: jobs.ImageInput{Path: path, Crop: crop},
		prepare: func(p *jobs.Progress) {
			p.SetCrop(crop)
		},
		deliver: func(ev *Event, text string) {
			ev.Type = EventAnalyzed
			ev.Text = text
		},
	})
}

// AnalyzePDF submits an AnalyzePDF job for the given 1-based pages of the
// currently loaded document.
func (s *OCRService) AnalyzePDF(pages []int) (uuid.UUID, error) {
	if len(pages) == 0 {
		return uuid.Nil, fmt.Errorf("%w: no pages selected", ErrInvalidInput)
	}
	for _, p := range pages {
		if p < 1 {
			return uuid.Nil, fmt.Errorf("%w: page %d out of range", ErrInvalidInput, p)
		}
	}
	return start(s, submission[jobs.PDFInput, string]{
		kind:  jobs.AnalyzePDF,
		body:  s.bodies.AnalyzePDF,
		input: jobs.PDFInput{Pages: pages},
		prepare: func(p *jobs.Progress) {
			p.SetPages(pages)
		},
		deliver: func(ev *Event, text string) {
			ev.Type = EventAnalyzed
			ev.Text = text
		},
	})
}

// PrepareForCropping submits a RotateImage job. Gallery images are written
// to the cache directory instead of next to the source.
func (s *OCRService) PrepareForCropping(path string, rotation int, gallery bool) (uuid.UUID, error) {
	path = normalizePath(path)
	if path == "" {
		return uuid.Nil, fmt.Errorf("%w: empty image path", ErrInvalidInput)
	}
	return start(s, submission[jobs.RotateInput, string]{
		kind:  jobs.RotateImage,
		body:  s.bodies.RotateImage,
		input: jobs.RotateInput{Path: path, Rotation: rotation, Gallery: gallery},
		prepare: func(p *jobs.Progress) {
			p.SetStatus(jobs.StatusRotating)
			p.SetRotation(rotation)
			p.SetGallery(gallery)
		},
		onStarted: func() {
			s.rotated = false
		},
		deliver: func(ev *Event, out string) {
			ev.Type = EventRotated
			ev.Path = out
			s.mu.Lock()
			s.rotated = true
			s.rotatedPath = out
			s.mu.Unlock()
		},
	})
}

// GetThumbnails submits a GenerateThumbnails job for a PDF file or a
// directory.
func (s *OCRService) GetThumbnails(path string) (uuid.UUID, error) {
	path = normalizePath(path)
	if path == "" {
		return uuid.Nil, fmt.Errorf("%w: empty path", ErrInvalidInput)
	}
	return start(s, submission[jobs.ThumbnailInput, []string]{
		kind:  jobs.GenerateThumbnails,
		body:  s.bodies.Thumbnails,
		input: jobs.ThumbnailInput{Path: path},
		onStarted: func() {
			s.thumbsReady = false
		},
		deliver: func(ev *Event, paths []string) {
			ev.Type = EventThumbnailsReady
			ev.Paths = paths
			s.mu.Lock()
			s.thumbsReady = true
			s.mu.Unlock()
		},
	})
}

// Cancel requests cooperative cancellation of kind's running job. It is a
// no-op when the kind is idle.
func (s *OCRService) Cancel(kind jobs.Kind) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %d", jobs.ErrUnknownKind, int(kind))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.kinds[kind]
	if st.state != StateRunning {
		s.logger.Debug("cancel ignored: kind idle", "kind", kind)
		return nil
	}
	s.runner.Slot(kind).Token.RequestCancel()
	s.logger.Info("cancel requested", "kind", kind, "run_id", st.runID)
	return nil
}

// CancelAll requests cancellation for every running kind and returns them.
func (s *OCRService) CancelAll() []jobs.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cancelled []jobs.Kind
	for _, k := range jobs.Kinds() {
		st := s.kinds[k]
		if st.state != StateRunning {
			continue
		}
		s.runner.Slot(k).Token.RequestCancel()
		s.logger.Info("cancel requested", "kind", k, "run_id", st.runID)
		cancelled = append(cancelled, k)
	}
	return cancelled
}

// Rotated reports whether the last rotation finished successfully.
func (s *OCRService) Rotated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rotated
}

// SetRotated overrides the rotation flag, e.g. after the UI discards a
// rotated image.
func (s *OCRService) SetRotated(rotated bool) {
	s.mu.Lock()
	s.rotated = rotated
	s.mu.Unlock()
}

// RotatedPath returns the output of the last successful rotation.
func (s *OCRService) RotatedPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rotatedPath
}

// PreparedPath returns the cropped image fed to the engine by the most
// recent AnalyzeImage run, if it produced one.
func (s *OCRService) PreparedPath() string {
	return s.runner.Slot(jobs.AnalyzeImage).Progress.Snapshot().PreparedPath
}

// ThumbnailsReady reports whether the last thumbnail run completed.
func (s *OCRService) ThumbnailsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.thumbsReady
}

// Close stops all pollers. Running job bodies are not interrupted; stop
// them through the runner.
func (s *OCRService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.kinds {
		st.poller.Stop()
	}
}

type submission[In, Out any] struct {
	kind    jobs.Kind
	body    jobs.Body[In, Out]
	input   In
	prepare func(*jobs.Progress)
	// onStarted runs with the facade lock held once the job is accepted.
	onStarted func()
	// deliver fills the result event on the loop, without the facade lock.
	deliver func(*Event, Out)
}

// start moves kind from Idle to Running: it submits the body, starts the
// kind's poller and subscribes to completion.
func start[In, Out any](s *OCRService, sub submission[In, Out]) (uuid.UUID, error) {
	if sub.body == nil {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrNoJobBody, sub.kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.kinds[sub.kind]
	if st.state == StateRunning {
		s.metrics.RecordRejected(sub.kind.String())
		s.logger.Warn("submit rejected: kind busy", "kind", sub.kind, "run_id", st.runID)
		return uuid.Nil, fmt.Errorf("%w: %s (run %s)", jobs.ErrKindBusy, sub.kind, st.runID)
	}

	var opts []jobs.SubmitOption
	if sub.prepare != nil {
		opts = append(opts, jobs.WithPrepare(sub.prepare))
	}
	h, err := jobs.Submit(s.runner, sub.kind, sub.body, sub.input, opts...)
	if err != nil {
		return uuid.Nil, err
	}

	runID := h.ID()
	st.state = StateRunning
	st.runID = runID
	st.since = h.StartedAt()
	st.stuckWarned = false
	if sub.onStarted != nil {
		sub.onStarted()
	}

	interval := s.intervalFor(sub.kind)
	if err := st.poller.Start(interval, func() { s.tick(sub.kind, runID) }); err != nil {
		s.logger.Warn("poller already active", "kind", sub.kind, "error", err)
	}

	h.OnComplete(func() {
		s.loop.Post(func() { finish(s, sub.kind, h, sub.deliver) })
	})

	s.logger.Info("job started", "kind", sub.kind, "run_id", runID, "poll_interval", interval)
	return runID, nil
}

// finish runs on the loop. The poller is stopped and the kind is Idle
// before the terminal event is emitted, so no tick of this run follows it
// and handlers may resubmit immediately.
func finish[Out any](s *OCRService, kind jobs.Kind, h *jobs.Handle[Out], deliver func(*Event, Out)) {
	out, err := h.Result()
	h.Release()
	snap := s.runner.Slot(kind).Progress.Snapshot()

	s.mu.Lock()
	st := s.kinds[kind]
	if st.runID != h.ID() || st.state != StateRunning {
		s.mu.Unlock()
		s.logger.Warn("completion for unknown run dropped", "kind", kind, "run_id", h.ID())
		return
	}
	st.poller.Stop()
	st.state = StateIdle
	duration := time.Since(st.since)

	outcome, mOutcome := OutcomeCompleted, metrics.OutcomeCompleted
	switch {
	case err != nil:
		outcome, mOutcome = OutcomeFailed, metrics.OutcomeFailed
	case snap.Status == jobs.StatusCancelled:
		outcome, mOutcome = OutcomeCancelled, metrics.OutcomeCancelled
	}
	st.lastOutcome = outcome
	st.lastDuration = duration
	st.lastError = ""
	if err != nil {
		st.lastError = err.Error()
	}
	s.mu.Unlock()

	s.metrics.RecordRun(kind.String(), duration, mOutcome)

	ev := Event{
		Kind:    kind,
		RunID:   h.ID(),
		Percent: snap.Percent,
		Status:  snap.Status,
	}
	if err != nil {
		ev.Type = EventFailed
		ev.Err = err.Error()
		s.logger.Error("job failed", "kind", kind, "run_id", h.ID(), "duration_ms", duration.Milliseconds(), "error", err)
	} else {
		deliver(&ev, out)
		s.logger.Info("job completed", "kind", kind, "run_id", h.ID(), "duration_ms", duration.Milliseconds(), "outcome", outcome)
	}
	s.emit(ev)
}

// tick runs on the loop for every poll interval of a running kind.
func (s *OCRService) tick(kind jobs.Kind, runID uuid.UUID) {
	s.mu.Lock()
	st := s.kinds[kind]
	if st.state != StateRunning || st.runID != runID {
		s.mu.Unlock()
		return
	}
	runningFor := time.Since(st.since)
	warnStuck := s.opts.StuckAfter > 0 && !st.stuckWarned && runningFor > s.opts.StuckAfter
	if warnStuck {
		st.stuckWarned = true
	}
	s.mu.Unlock()

	if warnStuck {
		s.logger.Warn("job appears stuck", "kind", kind, "run_id", runID, "running_for", runningFor.Round(time.Second))
	}

	snap := s.runner.Slot(kind).Progress.Snapshot()
	ev := Event{Kind: kind, RunID: runID, Percent: snap.Percent, Status: snap.Status}

	if kind == jobs.GenerateThumbnails {
		ev.Type = EventThumbnailStatus
		s.emit(ev)
		return
	}
	if strings.Contains(snap.Status, jobs.OCRPhaseMarker) {
		ev.Type = EventProgressChanged
		s.emit(ev)
	}
	ev.Type = EventStateChanged
	s.emit(ev)
}

func (s *OCRService) intervalFor(kind jobs.Kind) time.Duration {
	if kind == jobs.GenerateThumbnails {
		return s.opts.ThumbnailInterval
	}
	return s.opts.OCRInterval
}

func normalizePath(path string) string {
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(path), "file://"))
}
