package pdf

import (
	"context"
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

func writeImage(t *testing.T, path string, w, h int) {
	t.Helper()
	require.NoError(t, imaging.SavePNG(path, image.NewRGBA(image.Rect(0, 0, w, h))))
}

// cancelAfter reports cancellation on the n-th check.
type cancelAfter struct {
	n     int
	calls int
}

func (c *cancelAfter) ShouldCancel() bool {
	c.calls++
	return c.calls > c.n
}

func TestThumbnailsForDirectory(t *testing.T) {
	src := t.TempDir()
	writeImage(t, filepath.Join(src, "b.png"), 800, 400)
	writeImage(t, filepath.Join(src, "a.png"), 400, 800)
	writeImage(t, filepath.Join(src, "c.png"), 100, 100)
	require.NoError(t, os.WriteFile(filepath.Join(src, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, ".hidden.png"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(src, "sub"), 0o755))

	work := t.TempDir()
	h := NewHandler(work, 200, testLogger())
	p := jobs.NewProgress()

	paths, err := h.Thumbnails(context.Background(), jobs.ThumbnailInput{Path: src}, p, &jobs.Token{})
	require.NoError(t, err)
	require.Len(t, paths, 3)
	assert.Equal(t, []string{
		filepath.Join(work, "thumbs", "a.png"),
		filepath.Join(work, "thumbs", "b.png"),
		filepath.Join(work, "thumbs", "c.png"),
	}, paths)

	img, err := imaging.Load(paths[1])
	require.NoError(t, err)
	assert.Equal(t, image.Pt(200, 100), img.Bounds().Size())

	snap := p.Snapshot()
	assert.Equal(t, "3 thumbnails ready", snap.Status)
	assert.Equal(t, 100, snap.Percent)
	assert.Empty(t, h.IDs(), "a directory does not become the current document")
}

func TestThumbnailsKeepSourcesWithSharedStem(t *testing.T) {
	src := t.TempDir()
	writeImage(t, filepath.Join(src, "scan.png"), 10, 10)
	writeImage(t, filepath.Join(src, "scan.gif"), 10, 10)
	writeImage(t, filepath.Join(src, "page.jpg"), 10, 10)

	work := t.TempDir()
	thumbs := filepath.Join(work, "thumbs")
	h := NewHandler(work, 200, testLogger())

	paths, err := h.Thumbnails(context.Background(), jobs.ThumbnailInput{Path: src}, jobs.NewProgress(), &jobs.Token{})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(thumbs, "page.png"),
		filepath.Join(thumbs, "scan.png"),
		filepath.Join(thumbs, "scan_png.png"),
	}, paths)

	for _, path := range paths {
		_, err := os.Stat(path)
		assert.NoError(t, err)
	}
}

func TestUniqueThumb(t *testing.T) {
	used := make(map[string]bool)
	dir := "/thumbs"
	assert.Equal(t, filepath.Join(dir, "scan.png"), uniqueThumb(dir, "scan.jpg", "", used))
	assert.Equal(t, filepath.Join(dir, "Scan_png.png"), uniqueThumb(dir, "Scan.PNG", "", used))
	assert.Equal(t, filepath.Join(dir, "scan_png_2.png"), uniqueThumb(dir, "scan.png", "", used))
	assert.Equal(t, filepath.Join(dir, "scan_pdf.png"), uniqueThumb(dir, "scan.pdf", "_pdf", used))
	assert.Equal(t, filepath.Join(dir, "SCAN_pdf_2.png"), uniqueThumb(dir, "SCAN.pdf", "_pdf", used))
}

func TestThumbnailsCancelledMidway(t *testing.T) {
	src := t.TempDir()
	for _, name := range []string{"1.png", "2.png", "3.png"} {
		writeImage(t, filepath.Join(src, name), 10, 10)
	}

	h := NewHandler(t.TempDir(), 200, testLogger())
	p := jobs.NewProgress()
	paths, err := h.Thumbnails(context.Background(), jobs.ThumbnailInput{Path: src}, p, &cancelAfter{n: 1})
	require.NoError(t, err)
	assert.Len(t, paths, 1)
	assert.Equal(t, jobs.StatusCancelled, p.Status())
}

func TestThumbnailsForSingleImage(t *testing.T) {
	src := filepath.Join(t.TempDir(), "receipt.png")
	writeImage(t, src, 50, 50)

	work := t.TempDir()
	paths, err := NewHandler(work, 200, testLogger()).Thumbnails(context.Background(),
		jobs.ThumbnailInput{Path: src}, jobs.NewProgress(), &jobs.Token{})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(work, "thumbs", "receipt.png")}, paths)
}

func TestThumbnailsRejectsBadSources(t *testing.T) {
	dir := t.TempDir()
	txt := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("x"), 0o644))

	h := NewHandler(t.TempDir(), 200, testLogger())

	_, err := h.Thumbnails(context.Background(), jobs.ThumbnailInput{Path: txt}, jobs.NewProgress(), &jobs.Token{})
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = h.Thumbnails(context.Background(), jobs.ThumbnailInput{Path: filepath.Join(dir, "missing")}, jobs.NewProgress(), &jobs.Token{})
	assert.ErrorIs(t, err, os.ErrNotExist)

	bogus := filepath.Join(dir, "broken.pdf")
	require.NoError(t, os.WriteFile(bogus, []byte("not a pdf"), 0o644))
	_, err = h.Thumbnails(context.Background(), jobs.ThumbnailInput{Path: bogus}, jobs.NewProgress(), &jobs.Token{})
	assert.Error(t, err)
	_, err = h.CurrentDocument()
	assert.ErrorIs(t, err, ErrNoDocument, "a failed open keeps no document")
}

func TestDocumentPageRequiresOpenedDocument(t *testing.T) {
	h := NewHandler(t.TempDir(), 0, testLogger())
	_, err := h.CurrentDocument()
	assert.ErrorIs(t, err, ErrNoDocument)
	_, err = h.DocumentPage(context.Background(), "", 1)
	assert.ErrorIs(t, err, ErrNoDocument)
	_, err = h.DocumentPage(context.Background(), "/tmp/never-opened.pdf", 1)
	assert.ErrorIs(t, err, ErrNoDocument)

	h.document = "/tmp/doc.pdf"
	h.counts["/tmp/doc.pdf"] = 2
	doc, err := h.CurrentDocument()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/doc.pdf", doc)

	_, err = h.DocumentPage(context.Background(), doc, 3)
	assert.ErrorIs(t, err, ErrPageRange)
	_, err = h.DocumentPage(context.Background(), doc, 0)
	assert.ErrorIs(t, err, ErrPageRange)
}

func TestLargestFilePicksPageScan(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "logo.png"), []byte("small"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scan.jpg"), []byte("a much larger page scan"), 0o644))

	data, err := largestFile(dir, 1)
	require.NoError(t, err)
	assert.Equal(t, "a much larger page scan", string(data))

	_, err = largestFile(t.TempDir(), 2)
	assert.ErrorIs(t, err, ErrNoPageImage)
}
