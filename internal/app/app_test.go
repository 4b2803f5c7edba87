package app

import (
	"context"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/scanjobs/internal/config"
	"github.com/raphaelgruber/scanjobs/internal/imaging"
	"github.com/raphaelgruber/scanjobs/internal/jobs"
	"github.com/raphaelgruber/scanjobs/internal/ocr"
	"github.com/raphaelgruber/scanjobs/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type echoEngine struct{}

func (echoEngine) Name() string { return "echo" }

func (echoEngine) Recognize(ctx context.Context, in ocr.Input) (ocr.Result, error) {
	return ocr.Result{InputID: in.ID, PlainText: "hello " + in.ID}, nil
}

func newTestApp(t *testing.T) (*App, chan service.Event) {
	t.Helper()
	cfg := config.Defaults()
	cfg.CacheDir = filepath.Join(t.TempDir(), "cache")
	cfg.OCRPollInterval = 5 * time.Millisecond
	cfg.ThumbnailPollInterval = 5 * time.Millisecond

	a, err := New(cfg, echoEngine{}, testLogger())
	require.NoError(t, err)
	assert.DirExists(t, cfg.CacheDir)

	events := make(chan service.Event, 1024)
	a.Service.Subscribe(func(ev service.Event) {
		if ev.Type.Terminal() {
			events <- ev
		}
	})
	a.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		assert.NoError(t, a.Close(ctx))
	})
	return a, events
}

func waitTerminal(t *testing.T, events chan service.Event) service.Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for terminal event")
		return service.Event{}
	}
}

func TestAppRunsEachKind(t *testing.T) {
	a, events := newTestApp(t)
	dir := t.TempDir()
	src := filepath.Join(dir, "scan.png")
	require.NoError(t, imaging.SavePNG(src, image.NewRGBA(image.Rect(0, 0, 40, 20))))

	_, err := a.Service.Analyze(src, nil)
	require.NoError(t, err)
	ev := waitTerminal(t, events)
	assert.Equal(t, service.EventAnalyzed, ev.Type)
	assert.Equal(t, "hello scan.png", ev.Text)

	_, err = a.Service.PrepareForCropping(src, 90, true)
	require.NoError(t, err)
	ev = waitTerminal(t, events)
	require.Equal(t, service.EventRotated, ev.Type)
	assert.Equal(t, filepath.Join(a.Config.CacheDir, "scan_r90.png"), ev.Path)
	assert.True(t, a.Service.Rotated())

	_, err = a.Service.GetThumbnails(dir)
	require.NoError(t, err)
	ev = waitTerminal(t, events)
	require.Equal(t, service.EventThumbnailsReady, ev.Type)
	assert.Len(t, ev.Paths, 1)
	assert.True(t, a.Service.ThumbnailsReady())

	snap := a.Metrics.Snapshot()
	for _, k := range []jobs.Kind{jobs.AnalyzeImage, jobs.RotateImage, jobs.GenerateThumbnails} {
		require.Contains(t, snap.Operations, k.String())
		assert.Equal(t, int64(1), snap.Operations[k.String()].Count)
	}
}

func TestAnalyzePDFWithoutDocumentFails(t *testing.T) {
	a, events := newTestApp(t)
	_, err := a.Service.AnalyzePDF([]int{1})
	require.NoError(t, err)
	ev := waitTerminal(t, events)
	assert.Equal(t, service.EventFailed, ev.Type)
	assert.Contains(t, ev.Err, "no PDF document loaded")
}

func TestLanguages(t *testing.T) {
	assert.Equal(t, []string{"eng", "deu"}, Languages("eng+deu"))
	assert.Equal(t, []string{"eng"}, Languages(" eng "))
	assert.Nil(t, Languages(""))
}
