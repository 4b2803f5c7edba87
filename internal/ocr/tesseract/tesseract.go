// Package tesseract implements ocr.Engine with libtesseract via gosseract.
// Importing it requires cgo and the tesseract/leptonica headers.
package tesseract

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/raphaelgruber/scanjobs/internal/ocr"
)

// Engine runs each recognition on a fresh gosseract client.
type Engine struct {
	tessdataDir   string
	clientFactory func() *gosseract.Client
}

// Option configures an Engine.
type Option func(*Engine)

// WithTessdataDir points the engine at a directory of .traineddata files.
func WithTessdataDir(dir string) Option {
	return func(e *Engine) {
		e.tessdataDir = dir
	}
}

// New constructs a Tesseract-backed OCR engine.
func New(opts ...Option) *Engine {
	e := &Engine{clientFactory: gosseract.NewClient}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Name() string { return "tesseract" }

// Version returns the linked libtesseract version.
func Version() string {
	return gosseract.Version()
}

// Recognize performs OCR on a single image.
func (e *Engine) Recognize(ctx context.Context, in ocr.Input) (ocr.Result, error) {
	if err := ctx.Err(); err != nil {
		return ocr.Result{}, err
	}
	c := e.clientFactory()
	defer c.Close()

	if e.tessdataDir != "" {
		if err := c.SetTessdataPrefix(e.tessdataDir); err != nil {
			return ocr.Result{}, fmt.Errorf("set tessdata dir: %w", err)
		}
	}
	if len(in.Languages) > 0 {
		if err := c.SetLanguage(in.Languages...); err != nil {
			return ocr.Result{}, fmt.Errorf("set languages: %w", err)
		}
	}
	for k, v := range in.Variables {
		if err := c.SetVariable(gosseract.SettableVariable(k), v); err != nil {
			return ocr.Result{}, fmt.Errorf("set variable %s: %w", k, err)
		}
	}
	if err := c.SetImageFromBytes(in.Image); err != nil {
		return ocr.Result{}, fmt.Errorf("set image: %w", err)
	}

	text, err := c.Text()
	if err != nil {
		return ocr.Result{}, fmt.Errorf("recognize text: %w", err)
	}
	return ocr.Result{
		InputID:    in.ID,
		PlainText:  strings.TrimSpace(text),
		Confidence: meanConfidence(c),
	}, nil
}

func meanConfidence(c *gosseract.Client) float64 {
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return 0
	}
	var sum float64
	for _, b := range boxes {
		sum += b.Confidence / 100.0
	}
	return sum / float64(len(boxes))
}
