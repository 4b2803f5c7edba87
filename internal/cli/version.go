package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/scanjobs/internal/ocr/tesseract"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("scanjobs %s\n", Version)
		fmt.Printf("tesseract %s\n", tesseract.Version())
	},
}
