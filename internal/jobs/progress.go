package jobs

import (
	"maps"
	"slices"
	"sync"
)

// Status strings shared between job bodies and progress observers.
const (
	StatusInitializing = "Initializing..."
	StatusRotating     = "Rotating..."
	StatusRunningOCR   = "Running OCR..."
	StatusCancelled    = "Cancelled"
	StatusDone         = "Done"

	// OCRPhaseMarker is the substring that marks the OCR phase of a status.
	// Observers only report percent while it is present.
	OCRPhaseMarker = "Running OCR"
)

// Point is a corner of a crop region in source image pixels.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// CropPoints maps named corners ("topLeft", "topRight", "bottomLeft",
// "bottomRight") to image coordinates.
type CropPoints map[string]Point

// Bounds returns the axis-aligned rectangle enclosing all points.
// ok is false when fewer than two distinct corners are given.
func (c CropPoints) Bounds() (minX, minY, maxX, maxY float64, ok bool) {
	if len(c) < 2 {
		return 0, 0, 0, 0, false
	}
	first := true
	for _, p := range c {
		if first {
			minX, maxX, minY, maxY = p.X, p.X, p.Y, p.Y
			first = false
			continue
		}
		minX = min(minX, p.X)
		maxX = max(maxX, p.X)
		minY = min(minY, p.Y)
		maxY = max(maxY, p.Y)
	}
	if maxX <= minX || maxY <= minY {
		return 0, 0, 0, 0, false
	}
	return minX, minY, maxX, maxY, true
}

// Progress is the shared record a job body writes and observers read.
// All access goes through its methods; readers never see a torn update.
type Progress struct {
	mu           sync.RWMutex
	status       string
	percent      int
	rotation     int
	gallery      bool
	crop         CropPoints
	pages        []int
	preparedPath string
	outputPath   string
}

// ProgressSnapshot is an immutable copy of a Progress record.
type ProgressSnapshot struct {
	Status       string     `json:"status"`
	Percent      int        `json:"percent"`
	Rotation     int        `json:"rotation,omitempty"`
	Gallery      bool       `json:"gallery,omitempty"`
	Crop         CropPoints `json:"crop,omitempty"`
	Pages        []int      `json:"pages,omitempty"`
	PreparedPath string     `json:"prepared_path,omitempty"`
	OutputPath   string     `json:"output_path,omitempty"`
}

// NewProgress returns a record in its initial state.
func NewProgress() *Progress {
	return &Progress{status: StatusInitializing}
}

// Reset returns the record to "Initializing..." at 0% and clears the payload.
func (p *Progress) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = StatusInitializing
	p.percent = 0
	p.rotation = 0
	p.gallery = false
	p.crop = nil
	p.pages = nil
	p.preparedPath = ""
	p.outputPath = ""
}

func (p *Progress) SetStatus(status string) {
	p.mu.Lock()
	p.status = status
	p.mu.Unlock()
}

func (p *Progress) Status() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// SetPercent clamps percent to [0, 100].
func (p *Progress) SetPercent(percent int) {
	percent = max(0, min(100, percent))
	p.mu.Lock()
	p.percent = percent
	p.mu.Unlock()
}

func (p *Progress) Percent() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.percent
}

// SetRotation stores the requested rotation in degrees, normalized to [0, 360).
func (p *Progress) SetRotation(degrees int) {
	degrees %= 360
	if degrees < 0 {
		degrees += 360
	}
	p.mu.Lock()
	p.rotation = degrees
	p.mu.Unlock()
}

func (p *Progress) SetGallery(gallery bool) {
	p.mu.Lock()
	p.gallery = gallery
	p.mu.Unlock()
}

func (p *Progress) SetCrop(crop CropPoints) {
	p.mu.Lock()
	p.crop = maps.Clone(crop)
	p.mu.Unlock()
}

func (p *Progress) SetPages(pages []int) {
	p.mu.Lock()
	p.pages = slices.Clone(pages)
	p.mu.Unlock()
}

func (p *Progress) SetPreparedPath(path string) {
	p.mu.Lock()
	p.preparedPath = path
	p.mu.Unlock()
}

func (p *Progress) SetOutputPath(path string) {
	p.mu.Lock()
	p.outputPath = path
	p.mu.Unlock()
}

// Snapshot returns a deep copy of the record.
func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return ProgressSnapshot{
		Status:       p.status,
		Percent:      p.percent,
		Rotation:     p.rotation,
		Gallery:      p.gallery,
		Crop:         maps.Clone(p.crop),
		Pages:        slices.Clone(p.pages),
		PreparedPath: p.preparedPath,
		OutputPath:   p.outputPath,
	}
}
