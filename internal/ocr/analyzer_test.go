package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/scanjobs/internal/imaging"
	"github.com/raphaelgruber/scanjobs/internal/jobs"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// fakeEngine returns "text:<input id>" and records the inputs it saw.
type fakeEngine struct {
	inputs []Input
	err    error
}

func (e *fakeEngine) Name() string { return "fake" }

func (e *fakeEngine) Recognize(ctx context.Context, in Input) (Result, error) {
	e.inputs = append(e.inputs, in)
	if e.err != nil {
		return Result{}, e.err
	}
	return Result{InputID: in.ID, PlainText: "text:" + in.ID}, nil
}

type fakePages struct {
	// doc is returned by CurrentDocument until the document is switched.
	doc string
	// onPage runs before each page is returned.
	onPage func(page int)
}

func (f *fakePages) CurrentDocument() (string, error) {
	if f.doc == "" {
		return "", errors.New("no document")
	}
	return f.doc, nil
}

func (f *fakePages) DocumentPage(ctx context.Context, doc string, page int) ([]byte, error) {
	if f.onPage != nil {
		f.onPage(page)
	}
	return []byte(fmt.Sprintf("%s-page-%d-bytes", doc, page)), nil
}

func TestAnalyzeImageCropsAndRecognizes(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "receipt.png")
	require.NoError(t, imaging.SavePNG(src, image.NewRGBA(image.Rect(0, 0, 100, 80))))

	engine := &fakeEngine{}
	cache := filepath.Join(dir, "cache")
	a := NewAnalyzer(engine, nil, AnalyzerOptions{Languages: []string{"deu"}, CacheDir: cache, Logger: testLogger()})

	p := jobs.NewProgress()
	crop := jobs.CropPoints{
		"topLeft":     {X: 10, Y: 10},
		"topRight":    {X: 60, Y: 10},
		"bottomLeft":  {X: 10, Y: 40},
		"bottomRight": {X: 60, Y: 40},
	}
	text, err := a.AnalyzeImage(context.Background(), jobs.ImageInput{Path: src, Crop: crop}, p, &jobs.Token{})
	require.NoError(t, err)
	assert.Equal(t, "text:receipt.png", text)

	require.Len(t, engine.inputs, 1)
	assert.Equal(t, []string{"deu"}, engine.inputs[0].Languages)
	sent, err := imaging.Decode(engine.inputs[0].Image)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(50, 30), sent.Bounds().Size(), "engine receives the cropped image")

	snap := p.Snapshot()
	assert.Equal(t, 100, snap.Percent)
	assert.Equal(t, jobs.StatusDone, snap.Status)
	assert.Equal(t, filepath.Join(cache, "receipt_prepared.png"), snap.PreparedPath)
	assert.FileExists(t, snap.PreparedPath)
}

func TestAnalyzeImageWithoutCropSendsOriginal(t *testing.T) {
	src := filepath.Join(t.TempDir(), "page.png")
	require.NoError(t, imaging.SavePNG(src, image.NewRGBA(image.Rect(0, 0, 20, 20))))
	raw, err := os.ReadFile(src)
	require.NoError(t, err)

	engine := &fakeEngine{}
	p := jobs.NewProgress()
	_, err = NewAnalyzer(engine, nil, AnalyzerOptions{Logger: testLogger()}).
		AnalyzeImage(context.Background(), jobs.ImageInput{Path: src}, p, &jobs.Token{})
	require.NoError(t, err)
	assert.Equal(t, raw, engine.inputs[0].Image)
	assert.Equal(t, []string{"eng"}, engine.inputs[0].Languages)
	assert.Empty(t, p.Snapshot().PreparedPath)
}

func TestAnalyzeImageErrors(t *testing.T) {
	src := filepath.Join(t.TempDir(), "page.png")
	require.NoError(t, imaging.SavePNG(src, image.NewRGBA(image.Rect(0, 0, 20, 20))))

	tests := []struct {
		name   string
		path   string
		engine *fakeEngine
	}{
		{"missing file", "/nonexistent.png", &fakeEngine{}},
		{"engine failure", src, &fakeEngine{err: errors.New("tessdata not found")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAnalyzer(tt.engine, nil, AnalyzerOptions{Logger: testLogger()})
			_, err := a.AnalyzeImage(context.Background(), jobs.ImageInput{Path: tt.path}, jobs.NewProgress(), &jobs.Token{})
			assert.Error(t, err)
		})
	}
}

func TestAnalyzeImageCancelledBeforeOCR(t *testing.T) {
	src := filepath.Join(t.TempDir(), "page.png")
	require.NoError(t, imaging.SavePNG(src, image.NewRGBA(image.Rect(0, 0, 20, 20))))

	engine := &fakeEngine{}
	tok := &jobs.Token{}
	tok.RequestCancel()
	p := jobs.NewProgress()
	text, err := NewAnalyzer(engine, nil, AnalyzerOptions{Logger: testLogger()}).
		AnalyzeImage(context.Background(), jobs.ImageInput{Path: src}, p, tok)
	require.NoError(t, err)
	assert.Empty(t, text)
	assert.Empty(t, engine.inputs)
	assert.Equal(t, jobs.StatusCancelled, p.Status())
}

func TestAnalyzePDFJoinsPages(t *testing.T) {
	engine := &fakeEngine{}
	var statuses []string
	p := jobs.NewProgress()
	pages := &fakePages{doc: "letter", onPage: func(int) { statuses = append(statuses, p.Status()) }}
	a := NewAnalyzer(engine, pages, AnalyzerOptions{Logger: testLogger()})

	text, err := a.AnalyzePDF(context.Background(), jobs.PDFInput{Pages: []int{2, 5}}, p, &jobs.Token{})
	require.NoError(t, err)
	assert.Equal(t, "text:page-2\n\ntext:page-5", text)

	require.Len(t, engine.inputs, 2)
	assert.Equal(t, 5, engine.inputs[1].PageIndex)
	assert.Equal(t, []byte("letter-page-5-bytes"), engine.inputs[1].Image)
	for _, s := range statuses {
		assert.Contains(t, s, jobs.OCRPhaseMarker)
	}
	assert.Equal(t, 100, p.Percent())
}

func TestAnalyzePDFCancelAfterFirstPage(t *testing.T) {
	engine := &fakeEngine{}
	tok := &jobs.Token{}
	pages := &fakePages{doc: "letter", onPage: func(page int) {
		if page == 1 {
			tok.RequestCancel()
			tok.RequestCancel()
		}
	}}
	p := jobs.NewProgress()
	text, err := NewAnalyzer(engine, pages, AnalyzerOptions{Logger: testLogger()}).
		AnalyzePDF(context.Background(), jobs.PDFInput{Pages: []int{1, 2, 3}}, p, tok)
	require.NoError(t, err)
	assert.Equal(t, "text:page-1", text)
	assert.Len(t, engine.inputs, 1)
	assert.Equal(t, jobs.StatusCancelled, p.Status())
	assert.Equal(t, 33, p.Percent())
	assert.False(t, tok.Pending(), "the request was consumed exactly once")
}

func TestAnalyzePDFKeepsDocumentOfRun(t *testing.T) {
	engine := &fakeEngine{}
	pages := &fakePages{doc: "first"}
	pages.onPage = func(page int) {
		if page == 1 {
			pages.doc = "second"
		}
	}
	_, err := NewAnalyzer(engine, pages, AnalyzerOptions{Logger: testLogger()}).
		AnalyzePDF(context.Background(), jobs.PDFInput{Pages: []int{1, 2}}, jobs.NewProgress(), &jobs.Token{})
	require.NoError(t, err)
	require.Len(t, engine.inputs, 2)
	assert.Equal(t, []byte("first-page-1-bytes"), engine.inputs[0].Image)
	assert.Equal(t, []byte("first-page-2-bytes"), engine.inputs[1].Image)

	pages.doc = ""
	_, err = NewAnalyzer(engine, pages, AnalyzerOptions{}).
		AnalyzePDF(context.Background(), jobs.PDFInput{Pages: []int{1}}, jobs.NewProgress(), &jobs.Token{})
	assert.EqualError(t, err, "no document")
}

func TestAnalyzePDFWithoutPageSource(t *testing.T) {
	_, err := NewAnalyzer(&fakeEngine{}, nil, AnalyzerOptions{}).
		AnalyzePDF(context.Background(), jobs.PDFInput{Pages: []int{1}}, jobs.NewProgress(), &jobs.Token{})
	assert.ErrorIs(t, err, ErrNoPageSource)
}

func TestRegionFromCrop(t *testing.T) {
	r, ok := RegionFromCrop(jobs.CropPoints{"a": {X: 10.4, Y: 20}, "b": {X: 30.6, Y: 50}})
	require.True(t, ok)
	assert.Equal(t, image.Rect(10, 20, 31, 50), r.Rect())
	assert.False(t, r.IsEmpty())

	_, ok = RegionFromCrop(nil)
	assert.False(t, ok)
}
