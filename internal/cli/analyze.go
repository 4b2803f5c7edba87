package cli

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/raphaelgruber/scanjobs/internal/jobs"
)

var (
	analyzeCrop  string
	analyzePages string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <image>",
	Short: "Recognize the text of an image",
	Long: `Run OCR on an image and print the recognized text.

With --crop only the given region is recognized; the cropped image is kept
in the cache directory.

Examples:
  scanjobs analyze receipt.jpg
  scanjobs analyze receipt.jpg --crop 40,120,980,1400`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

var analyzePDFCmd = &cobra.Command{
	Use:   "analyze-pdf <pdf>",
	Short: "Recognize the text of PDF pages",
	Long: `Run OCR on the scanned pages of a PDF and print their text, separated
by blank lines.

Examples:
  scanjobs analyze-pdf letter.pdf
  scanjobs analyze-pdf letter.pdf --pages 1,3-4`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyzePDF,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeCrop, "crop", "", "crop region as x1,y1,x2,y2 in image pixels")
	analyzePDFCmd.Flags().StringVar(&analyzePages, "pages", "", "pages to recognize, e.g. 1,3-4 (default all)")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	crop, err := jobs.ParseCrop(analyzeCrop)
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer closeApp(a)

	path := args[0]
	ev, err := runJob(a.Service, jobs.AnalyzeImage, "Analyzing "+filepath.Base(path), func() (uuid.UUID, error) {
		return a.Service.Analyze(path, crop)
	})
	if err != nil {
		return err
	}

	if prepared := a.Service.PreparedPath(); prepared != "" {
		logger.Info("cropped image kept", "path", prepared)
	}
	fmt.Println(ev.Text)
	return nil
}

func runAnalyzePDF(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer closeApp(a)

	path := args[0]
	count, err := a.PDF.Open(path)
	if err != nil {
		return err
	}
	pages, err := jobs.ParsePages(analyzePages, count)
	if err != nil {
		return err
	}
	if len(pages) == 0 {
		return fmt.Errorf("%s has no pages", path)
	}

	title := fmt.Sprintf("Analyzing %d of %d pages of %s", len(pages), count, filepath.Base(path))
	ev, err := runJob(a.Service, jobs.AnalyzePDF, title, func() (uuid.UUID, error) {
		return a.Service.AnalyzePDF(pages)
	})
	if err != nil {
		return err
	}
	fmt.Println(ev.Text)
	return nil
}
