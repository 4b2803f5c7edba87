// Package ocr defines the OCR engine contract and the image and PDF
// analysis job bodies built on it.
package ocr

import (
	"context"
	"image"
	"math"

	"github.com/raphaelgruber/scanjobs/internal/jobs"
)

// Region describes a rectangular area in pixel coordinates with the origin in
// the upper-left corner of the image.
type Region struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// IsEmpty reports whether the region has non-positive dimensions.
func (r Region) IsEmpty() bool { return r.Width <= 0 || r.Height <= 0 }

// Rect rounds the region to whole pixels.
func (r Region) Rect() image.Rectangle {
	return image.Rect(
		int(math.Round(r.X)),
		int(math.Round(r.Y)),
		int(math.Round(r.X+r.Width)),
		int(math.Round(r.Y+r.Height)),
	)
}

// RegionFromCrop returns the region enclosing the crop corners.
func RegionFromCrop(crop jobs.CropPoints) (Region, bool) {
	x0, y0, x1, y1, ok := crop.Bounds()
	if !ok {
		return Region{}, false
	}
	return Region{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}, true
}

// Input encapsulates a single image submitted for OCR.
type Input struct {
	// ID is echoed back in the corresponding Result.
	ID string
	// Image is an encoded image (PNG, JPEG, TIFF...).
	Image []byte
	// PageIndex is the 1-based PDF page the image came from, or 0.
	PageIndex int
	// Languages are trained-data names such as "eng" or "deu".
	Languages []string
	// Variables pass engine-specific knobs through unchanged.
	Variables map[string]string
}

// Result captures OCR output for a single input image.
type Result struct {
	InputID   string
	PlainText string
	// Confidence is the mean word confidence in [0, 1], or 0 when unknown.
	Confidence float64
}

// Engine is the OCR provider contract: one image in, one result out.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, input Input) (Result, error)
}

// PageSource renders pages of loaded PDF documents.
type PageSource interface {
	CurrentDocument() (string, error)
	DocumentPage(ctx context.Context, doc string, page int) ([]byte, error)
}
