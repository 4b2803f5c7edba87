package cli

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/raphaelgruber/scanjobs/internal/jobs"
)

var thumbnailsCmd = &cobra.Command{
	Use:   "thumbnails <pdf|dir|image>",
	Short: "Generate thumbnails",
	Long: `Generate PNG thumbnails and print their paths.

A PDF gets one thumbnail per page and becomes the document used by
analyze-pdf. A directory gets one thumbnail per image and one for the first
page of each PDF.

Examples:
  scanjobs thumbnails letter.pdf
  scanjobs thumbnails ~/Scans`,
	Args: cobra.ExactArgs(1),
	RunE: runThumbnails,
}

func runThumbnails(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer closeApp(a)

	path := args[0]
	ev, err := runJob(a.Service, jobs.GenerateThumbnails, "Thumbnails for "+filepath.Base(path), func() (uuid.UUID, error) {
		return a.Service.GetThumbnails(path)
	})
	if err != nil {
		return err
	}

	for _, p := range ev.Paths {
		fmt.Println(p)
	}
	return nil
}
