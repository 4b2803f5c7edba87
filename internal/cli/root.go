// Package cli provides the command-line interface for scanjobs.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/raphaelgruber/scanjobs/internal/app"
	"github.com/raphaelgruber/scanjobs/internal/config"
	"github.com/raphaelgruber/scanjobs/internal/ocr/tesseract"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose    bool
	configPath string
	plain      bool

	// Global config and logger
	cfg         config.Config
	logger      *slog.Logger
	closeLogger func() error
)

// shutdownTimeout bounds how long a command waits for job bodies on exit.
const shutdownTimeout = 10 * time.Second

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "scanjobs",
	Short: "Run OCR, PDF, rotation and thumbnail jobs",
	Long: `Scanjobs runs document-scanning jobs in the background and reports
their progress: OCR of (cropped) images and PDF pages, image rotation for
cropping, and thumbnail generation for folders and PDFs.

Press Ctrl+C while a job runs to cancel it cooperatively.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Version and help need no config
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		if configPath != "" {
			cfg, err = config.LoadFile(configPath)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		level := cfg.LogLevel
		if verbose {
			level = slog.LevelDebug
		}
		// The progress UI owns the terminal, so logs only go to the file.
		if interactive() {
			logger, closeLogger = config.SetupFileLogger(cfg.LogFile, level)
		} else {
			logger, closeLogger = config.SetupLogger(cfg.LogFile, level)
		}
		slog.SetDefault(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if closeLogger != nil {
			if err := closeLogger(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
			}
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config (default $SCANJOBS_CONFIG)")
	rootCmd.PersistentFlags().BoolVar(&plain, "plain", false, "print progress lines instead of the interactive display")

	// Add subcommands
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(analyzePDFCmd)
	rootCmd.AddCommand(rotateCmd)
	rootCmd.AddCommand(thumbnailsCmd)
	rootCmd.AddCommand(versionCmd)
}

// interactive reports whether the progress UI can take over the terminal.
func interactive() bool {
	return !plain && term.IsTerminal(int(os.Stdout.Fd()))
}

// newApp builds and starts the job engine with the Tesseract engine.
func newApp() (*app.App, error) {
	engine := tesseract.New(tesseract.WithTessdataDir(cfg.TessdataDir))
	a, err := app.New(cfg, engine, logger)
	if err != nil {
		return nil, err
	}
	a.Start()
	return a, nil
}

func closeApp(a *app.App) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.Close(ctx); err != nil {
		logger.Warn("job bodies still running at exit", "error", err)
	}
}
