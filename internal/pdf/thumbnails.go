package pdf

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/raphaelgruber/scanjobs/internal/imaging"
	"github.com/raphaelgruber/scanjobs/internal/jobs"
)

// ErrUnsupported indicates a thumbnail source that is neither a PDF, an
// image nor a directory.
var ErrUnsupported = errors.New("unsupported thumbnail source")

type thumbSource struct {
	path string // file to read
	page int    // 1-based PDF page, 0 for images
	out  string // thumbnail path
	id   string
}

// Thumbnails is the GenerateThumbnails job body. For a PDF it opens the
// document and renders one thumbnail per page; for a directory it renders
// one per image or PDF (first page) it contains. The status text reports
// "Generating thumbnail i of n". A cancelled run returns the thumbnails
// produced so far.
func (h *Handler) Thumbnails(ctx context.Context, in jobs.ThumbnailInput, p *jobs.Progress, c jobs.Canceller) ([]string, error) {
	p.SetStatus("Scanning " + filepath.Base(in.Path) + "...")
	sources, isDoc, err := h.plan(in.Path)
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(sources))
	var ids []string
	total := len(sources)
	for i, src := range sources {
		if c.ShouldCancel() {
			p.SetStatus(jobs.StatusCancelled)
			h.logger.Info("thumbnail generation cancelled", "done", i, "total", total)
			break
		}
		if err := ctx.Err(); err != nil {
			return paths, err
		}

		p.SetStatus(fmt.Sprintf("Generating thumbnail %d of %d", i+1, total))
		if err := h.render(ctx, src); err != nil {
			if errors.Is(err, ErrNoPageImage) {
				h.logger.Warn("skipping page without image", "path", src.path, "page", src.page)
				continue
			}
			return paths, err
		}
		paths = append(paths, src.out)
		ids = append(ids, src.id)
		p.SetPercent((i + 1) * 100 / total)
	}

	if isDoc {
		h.setIDs(ids)
	}
	if p.Status() != jobs.StatusCancelled {
		p.SetStatus(fmt.Sprintf("%d thumbnails ready", len(paths)))
	}
	return paths, nil
}

// plan lists the thumbnails to produce for path. isDoc is true when path is
// a single PDF that became the current document.
func (h *Handler) plan(path string) (sources []thumbSource, isDoc bool, err error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, false, fmt.Errorf("stat %s: %w", path, err)
	}
	thumbDir := filepath.Join(h.workDir, "thumbs")

	switch {
	case info.IsDir():
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, false, fmt.Errorf("list %s: %w", path, err)
		}
		used := make(map[string]bool)
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() || strings.HasPrefix(name, ".") {
				continue
			}
			full := filepath.Join(path, name)
			switch {
			case isPDF(name):
				sources = append(sources, thumbSource{path: full, page: 1, out: uniqueThumb(thumbDir, name, "_pdf", used), id: name})
			case imaging.IsImage(name):
				sources = append(sources, thumbSource{path: full, out: uniqueThumb(thumbDir, name, "", used), id: name})
			}
		}
		return sources, false, nil

	case isPDF(path):
		count, err := h.Open(path)
		if err != nil {
			return nil, false, err
		}
		docDir := filepath.Join(thumbDir, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
		for page := 1; page <= count; page++ {
			sources = append(sources, thumbSource{
				path: path,
				page: page,
				out:  filepath.Join(docDir, fmt.Sprintf("page-%03d.png", page)),
				id:   fmt.Sprintf("page-%d", page),
			})
		}
		return sources, true, nil

	case imaging.IsImage(path):
		stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		return []thumbSource{{path: path, out: filepath.Join(thumbDir, stem+".png"), id: filepath.Base(path)}}, false, nil
	}
	return nil, false, fmt.Errorf("%w: %s", ErrUnsupported, path)
}

// uniqueThumb names the thumbnail of name as <stem><suffix>.png. Sources
// sharing a stem (scan.jpg, scan.png) fall back to <stem>_<ext>.png and then
// to a numbered name so no thumbnail overwrites another.
func uniqueThumb(dir, name, suffix string, used map[string]bool) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	candidates := []string{stem + suffix}
	if suffix == "" {
		candidates = append(candidates, stem+"_"+strings.ToLower(strings.TrimPrefix(ext, ".")))
	}
	base := candidates[len(candidates)-1]
	for i := 2; ; i++ {
		for _, c := range candidates {
			key := strings.ToLower(c)
			if !used[key] {
				used[key] = true
				return filepath.Join(dir, c+".png")
			}
		}
		candidates = []string{fmt.Sprintf("%s_%d", base, i)}
	}
}

func (h *Handler) render(ctx context.Context, src thumbSource) error {
	var data []byte
	var err error
	if src.page > 0 {
		data, err = h.pageImageOf(ctx, src.path, src.page)
	} else {
		data, err = os.ReadFile(src.path)
	}
	if err != nil {
		return err
	}
	img, err := imaging.Decode(data)
	if err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(src.path), err)
	}
	return imaging.SavePNG(src.out, imaging.Thumbnail(img, h.thumbWidth))
}
