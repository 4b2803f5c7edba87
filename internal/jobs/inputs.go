package jobs

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ImageInput is the payload of an AnalyzeImage job.
type ImageInput struct {
	Path string
	Crop CropPoints
}

// PDFInput is the payload of an AnalyzePDF job. Pages are 1-based and refer
// to the document most recently loaded for thumbnails.
type PDFInput struct {
	Pages []int
}

// RotateInput is the payload of a RotateImage job.
type RotateInput struct {
	Path     string
	Rotation int
	Gallery  bool
}

// ThumbnailInput is the payload of a GenerateThumbnails job. Path is a PDF
// file or a directory of images and PDFs.
type ThumbnailInput struct {
	Path string
}

// ParseCrop reads "x1,y1,x2,y2" as the top-left and bottom-right corners
// of a crop region. An empty string yields nil.
func ParseCrop(s string) (CropPoints, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("crop %q: want x1,y1,x2,y2", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("crop %q: %w", s, err)
		}
		v[i] = f
	}
	crop := CropPoints{
		"topLeft":     {X: v[0], Y: v[1]},
		"topRight":    {X: v[2], Y: v[1]},
		"bottomLeft":  {X: v[0], Y: v[3]},
		"bottomRight": {X: v[2], Y: v[3]},
	}
	if _, _, _, _, ok := crop.Bounds(); !ok {
		return nil, fmt.Errorf("crop %q encloses no area", s)
	}
	return crop, nil
}

// ParsePages reads a page list such as "1,3,5-7" into sorted, unique
// 1-based page numbers no greater than count. An empty list selects every
// page.
func ParsePages(s string, count int) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		pages := make([]int, count)
		for i := range pages {
			pages[i] = i + 1
		}
		return pages, nil
	}

	seen := make(map[int]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		lo, hi, isRange := strings.Cut(part, "-")
		first, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("page %q: %w", part, err)
		}
		last := first
		if isRange {
			if last, err = strconv.Atoi(strings.TrimSpace(hi)); err != nil {
				return nil, fmt.Errorf("page %q: %w", part, err)
			}
		}
		if first < 1 || last < first || last > count {
			return nil, fmt.Errorf("page %q outside 1-%d", part, count)
		}
		for p := first; p <= last; p++ {
			seen[p] = true
		}
	}

	pages := make([]int, 0, len(seen))
	for p := range seen {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	return pages, nil
}
