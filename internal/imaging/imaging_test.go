package imaging

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/scanjobs/internal/jobs"
)

var (
	red  = color.RGBA{R: 255, A: 255}
	blue = color.RGBA{B: 255, A: 255}
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// twoPixel returns a 2x1 image: red on the left, blue on the right.
func twoPixel() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, red)
	img.Set(1, 0, blue)
	return img
}

func TestRotateRightAngles(t *testing.T) {
	tests := []struct {
		degrees int
		size    image.Point
		pixels  map[image.Point]color.RGBA
	}{
		{0, image.Pt(2, 1), map[image.Point]color.RGBA{{0, 0}: red, {1, 0}: blue}},
		{90, image.Pt(1, 2), map[image.Point]color.RGBA{{0, 0}: red, {0, 1}: blue}},
		{180, image.Pt(2, 1), map[image.Point]color.RGBA{{0, 0}: blue, {1, 0}: red}},
		{270, image.Pt(1, 2), map[image.Point]color.RGBA{{0, 0}: blue, {0, 1}: red}},
		{-90, image.Pt(1, 2), map[image.Point]color.RGBA{{0, 0}: blue, {0, 1}: red}},
		{450, image.Pt(1, 2), map[image.Point]color.RGBA{{0, 0}: red, {0, 1}: blue}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d", tt.degrees), func(t *testing.T) {
			got := Rotate(twoPixel(), tt.degrees)
			require.Equal(t, tt.size, got.Bounds().Size(), "Rotate(%d) size", tt.degrees)
			for pt, want := range tt.pixels {
				if c := got.RGBAAt(pt.X, pt.Y); c != want {
					t.Errorf("Rotate(%d) at %v = %v, want %v", tt.degrees, pt, c, want)
				}
			}
		})
	}
}

func TestRotateArbitraryAngleGrowsCanvas(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 100, 50))
	got := Rotate(src, 45)
	// |100 cos45| + |50 sin45| ≈ 106.07
	assert.Equal(t, 106, got.Bounds().Dx())
	assert.Equal(t, 106, got.Bounds().Dy())
}

func TestThumbnailKeepsAspect(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 800, 600))
	got := Thumbnail(src, 200)
	assert.Equal(t, image.Pt(200, 150), got.Bounds().Size())

	small := image.NewRGBA(image.Rect(0, 0, 50, 40))
	assert.Equal(t, image.Pt(50, 40), Thumbnail(small, 200).Bounds().Size(), "no upscaling")
}

func TestCropClipsToBounds(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 10, 10))
	got, err := Crop(src, image.Rect(5, 5, 20, 20))
	require.NoError(t, err)
	assert.Equal(t, image.Pt(5, 5), got.Bounds().Size())

	_, err = Crop(src, image.Rect(20, 20, 30, 30))
	assert.ErrorIs(t, err, ErrEmptyRegion)
}

func TestIsImage(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"scan.PNG", true},
		{"photo.jpeg", true},
		{"fax.tiff", true},
		{"doc.pdf", false},
		{"notes", false},
	}
	for _, tt := range tests {
		if got := IsImage(tt.path); got != tt.want {
			t.Errorf("IsImage(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestRotatorOutputLocation(t *testing.T) {
	dir := t.TempDir()
	cache := filepath.Join(dir, "cache")
	src := filepath.Join(dir, "img.png")
	require.NoError(t, SavePNG(src, twoPixel()))

	r := NewRotator(cache, testLogger())

	tests := []struct {
		name    string
		gallery bool
		want    string
	}{
		{"camera capture beside source", false, filepath.Join(dir, "img_r90.png")},
		{"gallery image into cache", true, filepath.Join(cache, "img_r90.png")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := jobs.NewProgress()
			out, err := r.Rotate(context.Background(), jobs.RotateInput{Path: src, Rotation: 90, Gallery: tt.gallery}, p, &jobs.Token{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
			assert.Equal(t, tt.want, p.Snapshot().OutputPath)

			img, err := Load(out)
			require.NoError(t, err)
			assert.Equal(t, image.Pt(1, 2), img.Bounds().Size())
		})
	}
}

func TestRotatorHonorsCancellation(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "img.png")
	require.NoError(t, SavePNG(src, twoPixel()))

	tok := &jobs.Token{}
	tok.RequestCancel()
	p := jobs.NewProgress()
	out, err := NewRotator("", testLogger()).Rotate(context.Background(), jobs.RotateInput{Path: src, Rotation: 90}, p, tok)
	require.NoError(t, err)
	assert.Equal(t, src, out)
	assert.Equal(t, jobs.StatusCancelled, p.Status())
	assert.NoFileExists(t, filepath.Join(dir, "img_r90.png"))
}

func TestRotatorMissingFile(t *testing.T) {
	_, err := NewRotator("", testLogger()).Rotate(context.Background(),
		jobs.RotateInput{Path: "/nonexistent/img.png", Rotation: 90}, jobs.NewProgress(), &jobs.Token{})
	assert.Error(t, err)
}
