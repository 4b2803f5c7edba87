// Package pdf loads PDF documents, renders page images for OCR and
// produces the thumbnails shown while the user picks pages.
package pdf

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Sentinel errors for document access.
var (
	// ErrNoDocument indicates a page request before any document was opened.
	ErrNoDocument = errors.New("no PDF document loaded")

	// ErrPageRange indicates a page number outside the loaded document.
	ErrPageRange = errors.New("page out of range")

	// ErrNoPageImage indicates a page without an embedded raster image,
	// e.g. a born-digital page with vector text only.
	ErrNoPageImage = errors.New("page has no embedded image")
)

// Handler tracks the current document and extracts its page images.
// It is safe for concurrent use.
type Handler struct {
	workDir    string
	thumbWidth int
	conf       *model.Configuration
	logger     *slog.Logger

	mu       sync.RWMutex
	document string
	counts   map[string]int // page count of every opened document
	ids      []string
}

// NewHandler creates a handler that writes thumbnails under workDir.
func NewHandler(workDir string, thumbWidth int, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if thumbWidth <= 0 {
		thumbWidth = 200
	}
	return &Handler{
		workDir:    workDir,
		thumbWidth: thumbWidth,
		conf:       model.NewDefaultConfiguration(),
		logger:     logger,
		counts:     make(map[string]int),
	}
}

// Open makes path the current document and returns its page count.
func (h *Handler) Open(path string) (int, error) {
	count, err := h.pageCountOf(path)
	if err != nil {
		return 0, err
	}
	h.mu.Lock()
	h.document = path
	h.counts[path] = count
	h.ids = nil
	h.mu.Unlock()

	h.logger.Debug("pdf opened", "path", path, "pages", count)
	return count, nil
}

// CurrentDocument returns the path of the current document. A job pins this
// path when it starts so that a later Open does not mix pages of two
// documents into one run.
func (h *Handler) CurrentDocument() (string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.document == "" {
		return "", ErrNoDocument
	}
	return h.document, nil
}

// IDs returns the thumbnail ids ("page-N") of the current document in page
// order.
func (h *Handler) IDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]string(nil), h.ids...)
}

func (h *Handler) setIDs(ids []string) {
	h.mu.Lock()
	h.ids = ids
	h.mu.Unlock()
}

// DocumentPage returns the largest embedded image of a 1-based page of doc,
// which must have been opened before.
func (h *Handler) DocumentPage(ctx context.Context, doc string, page int) ([]byte, error) {
	h.mu.RLock()
	count, ok := h.counts[doc]
	h.mu.RUnlock()

	if doc == "" || !ok {
		return nil, ErrNoDocument
	}
	if page < 1 || page > count {
		return nil, fmt.Errorf("%w: %d of %d", ErrPageRange, page, count)
	}
	return h.pageImageOf(ctx, doc, page)
}

func (h *Handler) pageCountOf(path string) (int, error) {
	pdfCtx, err := api.ReadContextFile(path)
	if err != nil {
		return 0, fmt.Errorf("read pdf %s: %w", path, err)
	}
	return pdfCtx.PageCount, nil
}

func (h *Handler) pageImageOf(ctx context.Context, doc string, page int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(h.workDir, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	outDir, err := os.MkdirTemp(h.workDir, "page-*")
	if err != nil {
		return nil, fmt.Errorf("create extract dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	if err := api.ExtractImagesFile(doc, outDir, []string{strconv.Itoa(page)}, h.conf); err != nil {
		return nil, fmt.Errorf("extract page %d images: %w", page, err)
	}
	return largestFile(outDir, page)
}

// largestFile picks the biggest extracted image, which for scanned pages is
// the page scan itself.
func largestFile(dir string, page int) ([]byte, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list extracted images: %w", err)
	}
	var best string
	var bestSize int64 = -1
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.Size() > bestSize {
			best, bestSize = e.Name(), info.Size()
		}
	}
	if best == "" {
		return nil, fmt.Errorf("%w: page %d", ErrNoPageImage, page)
	}
	data, err := os.ReadFile(filepath.Join(dir, best))
	if err != nil {
		return nil, fmt.Errorf("read extracted image: %w", err)
	}
	return data, nil
}

func isPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}
