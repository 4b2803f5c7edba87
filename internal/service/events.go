package service

import (
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raphaelgruber/scanjobs/internal/jobs"
)

// EventType names an outbound notification.
type EventType string

const (
	EventProgressChanged EventType = "progress_changed"
	EventStateChanged    EventType = "state_changed"
	EventAnalyzed        EventType = "analyzed"
	EventRotated         EventType = "rotated"
	EventThumbnailsReady EventType = "thumbnails_ready"
	EventThumbnailStatus EventType = "thumbnail_status"
	EventFailed          EventType = "failed"
)

// Terminal reports whether the event ends a run.
func (t EventType) Terminal() bool {
	switch t {
	case EventAnalyzed, EventRotated, EventThumbnailsReady, EventFailed:
		return true
	}
	return false
}

// Event is a fire-and-forget notification delivered on the foreground loop.
type Event struct {
	Type    EventType `json:"type"`
	Kind    jobs.Kind `json:"kind"`
	RunID   uuid.UUID `json:"run_id"`
	Percent int       `json:"percent"`
	Status  string    `json:"status,omitempty"`
	Text    string    `json:"text,omitempty"`
	Path    string    `json:"path,omitempty"`
	Paths   []string  `json:"paths,omitempty"`
	Err     string    `json:"error,omitempty"`
	At      time.Time `json:"at"`
}

// Handler receives events. Handlers run on the loop and must not block.
type Handler func(Event)

type subscription struct {
	id uint64
	fn Handler
}

// eventBus fans events out to subscribers in registration order.
type eventBus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscription
}

func (b *eventBus) subscribe(fn Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s.id == id {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (b *eventBus) handlers() []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Handler, len(b.subs))
	for i, s := range b.subs {
		out[i] = s.fn
	}
	return out
}

// emit must be called on the loop goroutine.
func (s *OCRService) emit(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	for _, h := range s.bus.handlers() {
		s.deliver(h, ev)
	}
}

func (s *OCRService) deliver(h Handler, ev Event) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("event handler panicked",
				"event", ev.Type,
				"kind", ev.Kind,
				"panic", rec,
				"stack", string(debug.Stack()))
		}
	}()
	h(ev)
}
