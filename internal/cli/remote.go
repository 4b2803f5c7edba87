package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/scanjobs/internal/client"
	"github.com/raphaelgruber/scanjobs/internal/service"
)

var serverURL string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the job kinds of a running server",
	Long: `Show the state of every job kind on a running scanjobs-server.

Examples:
  scanjobs status
  scanjobs status --server http://scanner.local:8585`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

var cancelCmd = &cobra.Command{
	Use:   "cancel [kind]",
	Short: "Cancel jobs on a running server",
	Long: `Request cancellation of one job kind, or of every running kind.

Kinds: analyze_image, analyze_pdf, rotate_image, generate_thumbnails.

Examples:
  scanjobs cancel
  scanjobs cancel analyze-pdf`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCancel,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream events from a running server",
	Long: `Print every event published by a running scanjobs-server until
interrupted.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	for _, cmd := range []*cobra.Command{statusCmd, cancelCmd, watchCmd} {
		cmd.Flags().StringVar(&serverURL, "server", "", "server URL (default $SCANJOBS_SERVER_URL or the configured address)")
		rootCmd.AddCommand(cmd)
	}
}

// newClient resolves the server URL from the flag, the environment or the
// configured listen address.
func newClient() *client.Client {
	url := serverURL
	if url == "" && os.Getenv("SCANJOBS_SERVER_URL") == "" && cfg.ServerAddr != "" {
		addr := cfg.ServerAddr
		if strings.HasPrefix(addr, ":") {
			addr = "localhost" + addr
		}
		url = "http://" + addr
	}
	return client.New(url)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	statuses, err := newClient().Status(ctx)
	if err != nil {
		return fmt.Errorf("get status: %w", err)
	}

	fmt.Printf("%-20s %-8s %-6s %-28s %s\n", "KIND", "STATE", "PCT", "STATUS", "LAST")
	fmt.Println("--------------------------------------------------------------------------------")
	for _, st := range statuses {
		state := string(st.State)
		if st.Stuck {
			state += "!"
		}
		last := string(st.LastOutcome)
		if st.LastError != "" {
			last += ": " + st.LastError
		}
		fmt.Printf("%-20s %-8s %5d%% %-28s %s\n", st.Kind, state, st.Progress.Percent, st.Progress.Status, last)
	}
	return nil
}

func runCancel(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var kind string
	if len(args) == 1 {
		kind = args[0]
	}
	kinds, err := newClient().Cancel(ctx, kind)
	if err != nil {
		return fmt.Errorf("cancel: %w", err)
	}
	if len(kinds) == 0 {
		fmt.Println("No running jobs")
		return nil
	}
	for _, k := range kinds {
		fmt.Printf("Cancel requested: %s\n", k)
	}
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newClient().Watch(ctx, func(ev service.Event) error {
		fmt.Println(formatEvent(ev))
		return nil
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func formatEvent(ev service.Event) string {
	prefix := fmt.Sprintf("%s %-20s %-17s", ev.At.Format("15:04:05.000"), ev.Kind, ev.Type)
	switch ev.Type {
	case service.EventProgressChanged, service.EventThumbnailStatus:
		return fmt.Sprintf("%s %3d%% %s", prefix, ev.Percent, ev.Status)
	case service.EventAnalyzed:
		return fmt.Sprintf("%s %d chars", prefix, len(ev.Text))
	case service.EventRotated:
		return fmt.Sprintf("%s %s", prefix, ev.Path)
	case service.EventThumbnailsReady:
		return fmt.Sprintf("%s %d thumbnails", prefix, len(ev.Paths))
	case service.EventFailed:
		return fmt.Sprintf("%s %s", prefix, ev.Err)
	}
	return fmt.Sprintf("%s %s", prefix, ev.Status)
}
