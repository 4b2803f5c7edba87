package cli

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/raphaelgruber/scanjobs/internal/jobs"
)

var (
	rotateAngle   int
	rotateGallery bool
)

var rotateCmd = &cobra.Command{
	Use:   "rotate <image>",
	Short: "Rotate an image before cropping",
	Long: `Write a rotated PNG copy of an image and print its path.

The copy is written next to the source as <name>_r<angle>.png. With
--gallery it goes to the cache directory instead, leaving the source
folder untouched.

Examples:
  scanjobs rotate page.jpg --angle 90
  scanjobs rotate ~/Pictures/page.jpg --angle -90 --gallery`,
	Args: cobra.ExactArgs(1),
	RunE: runRotate,
}

func init() {
	rotateCmd.Flags().IntVarP(&rotateAngle, "angle", "a", 90, "clockwise rotation in degrees")
	rotateCmd.Flags().BoolVar(&rotateGallery, "gallery", false, "write the result to the cache directory")
}

func runRotate(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer closeApp(a)

	path := args[0]
	title := fmt.Sprintf("Rotating %s by %d°", filepath.Base(path), rotateAngle)
	ev, err := runJob(a.Service, jobs.RotateImage, title, func() (uuid.UUID, error) {
		return a.Service.PrepareForCropping(path, rotateAngle, rotateGallery)
	})
	if err != nil {
		return err
	}
	fmt.Println(ev.Path)
	return nil
}
