package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/raphaelgruber/scanjobs/internal/imaging"
	"github.com/raphaelgruber/scanjobs/internal/jobs"
)

// ErrNoPageSource is returned by AnalyzePDF when no document handler is wired.
var ErrNoPageSource = errors.New("no PDF page source configured")

// Analyzer provides the AnalyzeImage and AnalyzePDF job bodies.
type Analyzer struct {
	engine    Engine
	pages     PageSource
	languages []string
	cacheDir  string
	logger    *slog.Logger
}

// AnalyzerOptions configures an Analyzer.
type AnalyzerOptions struct {
	Languages []string
	// CacheDir receives the cropped image actually sent to the engine.
	CacheDir string
	Logger   *slog.Logger
}

// NewAnalyzer creates job bodies around engine. pages may be nil when PDF
// analysis is not needed.
func NewAnalyzer(engine Engine, pages PageSource, opts AnalyzerOptions) *Analyzer {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if len(opts.Languages) == 0 {
		opts.Languages = []string{"eng"}
	}
	return &Analyzer{
		engine:    engine,
		pages:     pages,
		languages: opts.Languages,
		cacheDir:  opts.CacheDir,
		logger:    opts.Logger,
	}
}

// AnalyzeImage recognizes the text of one image, cropped to in.Crop when it
// encloses an area.
func (a *Analyzer) AnalyzeImage(ctx context.Context, in jobs.ImageInput, p *jobs.Progress, c jobs.Canceller) (string, error) {
	p.SetStatus("Loading image...")
	data, err := os.ReadFile(in.Path)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	if c.ShouldCancel() {
		p.SetStatus(jobs.StatusCancelled)
		return "", nil
	}

	if region, ok := RegionFromCrop(in.Crop); ok {
		p.SetStatus("Cropping...")
		img, err := imaging.Decode(data)
		if err != nil {
			return "", err
		}
		cropped, err := imaging.Crop(img, region.Rect())
		if err != nil {
			return "", err
		}
		if data, err = imaging.EncodePNG(cropped); err != nil {
			return "", err
		}
		if prepared, err := a.savePrepared(in.Path, data); err != nil {
			a.logger.Warn("failed to keep prepared image", "path", in.Path, "error", err)
		} else {
			p.SetPreparedPath(prepared)
		}
	}

	if c.ShouldCancel() {
		p.SetStatus(jobs.StatusCancelled)
		return "", nil
	}

	p.SetStatus(jobs.StatusRunningOCR)
	p.SetPercent(0)
	res, err := a.engine.Recognize(ctx, Input{
		ID:        filepath.Base(in.Path),
		Image:     data,
		Languages: a.languages,
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", a.engine.Name(), err)
	}
	p.SetPercent(100)
	p.SetStatus(jobs.StatusDone)

	a.logger.Debug("image analyzed", "path", in.Path, "chars", len(res.PlainText), "confidence", res.Confidence)
	return res.PlainText, nil
}

// AnalyzePDF recognizes the selected pages of the loaded document and joins
// their text with blank lines. The document is pinned when the run starts.
// Cancellation is checked before each page; a cancelled run returns the text
// of the pages already done.
func (a *Analyzer) AnalyzePDF(ctx context.Context, in jobs.PDFInput, p *jobs.Progress, c jobs.Canceller) (string, error) {
	if a.pages == nil {
		return "", ErrNoPageSource
	}
	doc, err := a.pages.CurrentDocument()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	total := len(in.Pages)
	p.SetPercent(0)
	for i, page := range in.Pages {
		if c.ShouldCancel() {
			p.SetStatus(jobs.StatusCancelled)
			a.logger.Info("pdf analysis cancelled", "pages_done", i, "pages_total", total)
			return b.String(), nil
		}
		if err := ctx.Err(); err != nil {
			return b.String(), err
		}

		p.SetStatus(fmt.Sprintf("%s page %d (%d of %d)...", jobs.OCRPhaseMarker, page, i+1, total))
		img, err := a.pages.DocumentPage(ctx, doc, page)
		if err != nil {
			return "", fmt.Errorf("render page %d: %w", page, err)
		}
		res, err := a.engine.Recognize(ctx, Input{
			ID:        fmt.Sprintf("page-%d", page),
			Image:     img,
			PageIndex: page,
			Languages: a.languages,
		})
		if err != nil {
			return "", fmt.Errorf("%s page %d: %w", a.engine.Name(), page, err)
		}

		if b.Len() > 0 && res.PlainText != "" {
			b.WriteString("\n\n")
		}
		b.WriteString(res.PlainText)
		p.SetPercent((i + 1) * 100 / total)
	}

	p.SetStatus(jobs.StatusDone)
	return b.String(), nil
}

func (a *Analyzer) savePrepared(src string, data []byte) (string, error) {
	dir := a.cacheDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}
	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	path := filepath.Join(dir, base+"_prepared.png")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write prepared image: %w", err)
	}
	return path, nil
}
