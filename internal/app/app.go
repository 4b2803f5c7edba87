// Package app assembles the job engine: the foreground loop, the runner,
// the job bodies and the orchestration facade.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/raphaelgruber/scanjobs/internal/config"
	"github.com/raphaelgruber/scanjobs/internal/imaging"
	"github.com/raphaelgruber/scanjobs/internal/jobs"
	"github.com/raphaelgruber/scanjobs/internal/loop"
	"github.com/raphaelgruber/scanjobs/internal/metrics"
	"github.com/raphaelgruber/scanjobs/internal/ocr"
	"github.com/raphaelgruber/scanjobs/internal/pdf"
	"github.com/raphaelgruber/scanjobs/internal/service"
)

// App holds every long-lived component. Create it with New, call Start
// before submitting jobs and Close when done.
type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Loop    *loop.Loop
	Runner  *jobs.Runner
	Service *service.OCRService
	PDF     *pdf.Handler
	Metrics *metrics.Collector

	cancel context.CancelFunc
	done   chan struct{}
}

// New wires the job bodies around engine.
func New(cfg config.Config, engine ocr.Engine, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	l := loop.New(logger)
	runner := jobs.NewRunner(logger)
	collector := metrics.NewCollector()
	pdfHandler := pdf.NewHandler(cfg.CacheDir, cfg.ThumbnailWidth, logger)
	analyzer := ocr.NewAnalyzer(engine, pdfHandler, ocr.AnalyzerOptions{
		Languages: Languages(cfg.Language),
		CacheDir:  cfg.CacheDir,
		Logger:    logger,
	})
	rotator := imaging.NewRotator(cfg.CacheDir, logger)

	svc := service.NewOCRService(l, runner, service.Bodies{
		AnalyzeImage: analyzer.AnalyzeImage,
		AnalyzePDF:   analyzer.AnalyzePDF,
		RotateImage:  rotator.Rotate,
		Thumbnails:   pdfHandler.Thumbnails,
	}, service.Options{
		OCRInterval:       cfg.OCRPollInterval,
		ThumbnailInterval: cfg.ThumbnailPollInterval,
		StuckAfter:        cfg.StuckAfter,
		Metrics:           collector,
		Logger:            logger,
	})

	return &App{
		Config:  cfg,
		Logger:  logger,
		Loop:    l,
		Runner:  runner,
		Service: svc,
		PDF:     pdfHandler,
		Metrics: collector,
	}, nil
}

// Start runs the foreground loop on its own goroutine.
func (a *App) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.done = make(chan struct{})
	go func() {
		defer close(a.done)
		if err := a.Loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.Logger.Error("loop stopped", "error", err)
		}
	}()
}

// Close stops the pollers, waits for running job bodies until ctx expires
// and then stops the loop.
func (a *App) Close(ctx context.Context) error {
	a.Service.Close()
	err := a.Runner.Shutdown(ctx)
	if a.cancel != nil {
		a.cancel()
		<-a.done
	}
	return err
}

// Languages splits a Tesseract language list such as "eng+deu".
func Languages(langs string) []string {
	var out []string
	for _, lang := range strings.Split(langs, "+") {
		if lang = strings.TrimSpace(lang); lang != "" {
			out = append(out, lang)
		}
	}
	return out
}
