package imaging

import (
	"image"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// NormalizeAngle maps degrees into [0, 360).
func NormalizeAngle(degrees int) int {
	degrees %= 360
	if degrees < 0 {
		degrees += 360
	}
	return degrees
}

// Rotate turns img clockwise by degrees around its center. The result is
// sized to hold the whole rotated image; uncovered corners stay transparent.
// Right angles are exact, other angles are resampled bilinearly.
func Rotate(img image.Image, degrees int) *image.RGBA {
	degrees = NormalizeAngle(degrees)
	src := img.Bounds()
	w, h := float64(src.Dx()), float64(src.Dy())

	var sin, cos float64
	var interp draw.Interpolator = draw.BiLinear
	switch degrees {
	case 0:
		cos = 1
		interp = draw.NearestNeighbor
	case 90:
		sin = 1
		interp = draw.NearestNeighbor
	case 180:
		cos = -1
		interp = draw.NearestNeighbor
	case 270:
		sin = -1
		interp = draw.NearestNeighbor
	default:
		rad := float64(degrees) * math.Pi / 180
		sin, cos = math.Sin(rad), math.Cos(rad)
	}

	dw := math.Abs(w*cos) + math.Abs(h*sin)
	dh := math.Abs(w*sin) + math.Abs(h*cos)
	dst := image.NewRGBA(image.Rect(0, 0, int(math.Round(dw)), int(math.Round(dh))))

	// Source centre maps to destination centre.
	cx := float64(src.Min.X) + w/2
	cy := float64(src.Min.Y) + h/2
	dcx, dcy := float64(dst.Bounds().Dx())/2, float64(dst.Bounds().Dy())/2
	s2d := f64.Aff3{
		cos, -sin, dcx - cos*cx + sin*cy,
		sin, cos, dcy - sin*cx - cos*cy,
	}
	interp.Transform(dst, s2d, img, src, draw.Src, nil)
	return dst
}

// Thumbnail scales img to width pixels wide, keeping the aspect ratio.
// Images already narrower than width are copied unscaled.
func Thumbnail(img image.Image, width int) *image.RGBA {
	src := img.Bounds()
	if width <= 0 || src.Dx() <= width {
		dst := image.NewRGBA(image.Rect(0, 0, src.Dx(), src.Dy()))
		draw.Copy(dst, image.Point{}, img, src, draw.Src, nil)
		return dst
	}
	height := max(1, int(math.Round(float64(src.Dy())*float64(width)/float64(src.Dx()))))
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, src, draw.Src, nil)
	return dst
}
