//go:build tesseract

package tesseract

import (
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/scanjobs/internal/imaging"
	"github.com/raphaelgruber/scanjobs/internal/ocr"
)

func TestVersion(t *testing.T) {
	assert.NotEmpty(t, Version())
}

func TestRecognizeBlankImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 200, 80))
	for y := 0; y < 80; y++ {
		for x := 0; x < 200; x++ {
			img.Set(x, y, color.White)
		}
	}
	data, err := imaging.EncodePNG(img)
	require.NoError(t, err)

	res, err := New().Recognize(context.Background(), ocr.Input{ID: "blank", Image: data, Languages: []string{"eng"}})
	require.NoError(t, err)
	assert.Equal(t, "blank", res.InputID)
	assert.Empty(t, res.PlainText)
}

func TestRecognizeHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Recognize(ctx, ocr.Input{ID: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}
