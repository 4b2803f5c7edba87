package imaging

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/raphaelgruber/scanjobs/internal/jobs"
)

// Rotator provides the RotateImage job body.
type Rotator struct {
	cacheDir string
	logger   *slog.Logger
}

// NewRotator creates a rotator writing gallery output under cacheDir.
func NewRotator(cacheDir string, logger *slog.Logger) *Rotator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Rotator{cacheDir: cacheDir, logger: logger}
}

// Rotate writes a rotated PNG copy of in.Path and returns its path.
// Camera captures are written next to the source as <name>_r<angle>.png;
// gallery images go to the cache directory so the user's album is untouched.
// A zero rotation returns the source path unchanged.
func (r *Rotator) Rotate(ctx context.Context, in jobs.RotateInput, p *jobs.Progress, c jobs.Canceller) (string, error) {
	angle := NormalizeAngle(in.Rotation)
	if angle == 0 {
		p.SetOutputPath(in.Path)
		p.SetStatus(jobs.StatusDone)
		return in.Path, nil
	}

	img, err := Load(in.Path)
	if err != nil {
		return "", err
	}
	if c.ShouldCancel() {
		p.SetStatus(jobs.StatusCancelled)
		return in.Path, nil
	}

	out := r.OutputPath(in.Path, angle, in.Gallery)
	if err := SavePNG(out, Rotate(img, angle)); err != nil {
		return "", err
	}
	p.SetOutputPath(out)
	p.SetStatus(jobs.StatusDone)

	r.logger.Debug("image rotated", "source", in.Path, "output", out, "angle", angle)
	return out, nil
}

// OutputPath returns where a rotation of src by angle is written.
func (r *Rotator) OutputPath(src string, angle int, gallery bool) string {
	dir := filepath.Dir(src)
	if gallery && r.cacheDir != "" {
		dir = r.cacheDir
	}
	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	return filepath.Join(dir, fmt.Sprintf("%s_r%d.png", base, NormalizeAngle(angle)))
}
