package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/raphaelgruber/scanjobs/internal/jobs"
	"github.com/raphaelgruber/scanjobs/internal/service"
)

// errInterrupted is returned when the user leaves before the job ends.
var errInterrupted = errors.New("interrupted before the job finished")

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status     lipgloss.Color
	Success    lipgloss.Color
	Error      lipgloss.Color
	Hint       lipgloss.Color
	ProgressBg lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:     lipgloss.Color("#5FAFD7"), // light blue
	Success:    lipgloss.Color("#00D787"), // green
	Error:      lipgloss.Color("#FF005F"), // red
	Hint:       lipgloss.Color("#6C6C6C"), // dim gray
	ProgressBg: lipgloss.Color("#3A3A3A"), // dark gray
}

// Style functions for dynamic theming
func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// canceller is the part of the facade the progress UI drives.
type canceller interface {
	CancelAll() []jobs.Kind
}

// eventMsg carries a facade event into the UI.
type eventMsg service.Event

// cancelRequestedMsg reports which kinds accepted a cancel request.
type cancelRequestedMsg []jobs.Kind

// progressModel is the bubbletea model for one job run.
type progressModel struct {
	title      string
	svc        canceller
	status     string
	percent    int
	progress   progress.Model
	theme      Theme
	cancelling bool
	aborted    bool
	done       bool
	result     service.Event
}

func newProgressModel(title string, svc canceller) progressModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)
	return progressModel{
		title:    title,
		svc:      svc,
		status:   jobs.StatusInitializing,
		progress: prog,
		theme:    defaultTheme,
	}
}

// Init returns the initial command.
func (m progressModel) Init() tea.Cmd {
	return m.progress.Init()
}

// Update handles messages and returns the updated model.
func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			// A second press leaves without waiting for the body to notice.
			if m.cancelling {
				m.aborted = true
				return m, tea.Quit
			}
			m.cancelling = true
			return m, m.requestCancel()
		}

	case cancelRequestedMsg:
		if len(msg) == 0 {
			m.status = "Nothing to cancel"
		}
		return m, nil

	case eventMsg:
		ev := service.Event(msg)
		if ev.Type.Terminal() {
			m.done = true
			m.result = ev
			return m, tea.Quit
		}
		m.status = ev.Status
		switch ev.Type {
		case service.EventProgressChanged, service.EventThumbnailStatus:
			m.percent = ev.Percent
		}
		return m, nil

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// requestCancel runs the cancel outside Update.
func (m progressModel) requestCancel() tea.Cmd {
	return func() tea.Msg {
		return cancelRequestedMsg(m.svc.CancelAll())
	}
}

// View renders the progress display.
func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m progressModel) renderContent() string {
	if m.done || m.aborted {
		return m.finalView()
	}

	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", m.status))
	bar := m.progress.ViewAs(float64(m.percent) / 100)

	hint := "Press Ctrl+C to cancel"
	if m.cancelling {
		hint = "Cancelling... press Ctrl+C again to quit now"
	}
	return fmt.Sprintf("%s\n%s %s %3d%%\n%s\n", m.title, status, bar, m.percent, m.theme.hintStyle().Render(hint))
}

// finalView renders the completion message.
func (m progressModel) finalView() string {
	switch {
	case m.aborted:
		return m.theme.hintStyle().Render("\nStopped before the job finished.\n")
	case m.result.Type == service.EventFailed:
		return m.theme.errorStyle().Render(fmt.Sprintf("✗ Job failed: %s\n", m.result.Err))
	case m.result.Status == jobs.StatusCancelled:
		return m.theme.hintStyle().Render(fmt.Sprintf("Cancelled at %d%%\n", m.result.Percent))
	}
	return m.theme.completedStyle().Render("✓ Completed") + "\n"
}

// follow waits for the terminal event of a run, either through the
// interactive display or as plain progress lines on stderr.
func follow(title string, svc canceller, updates, done <-chan service.Event) (service.Event, error) {
	if interactive() {
		return followTUI(title, svc, updates, done)
	}
	return followPlain(title, svc, updates, done)
}

func followTUI(title string, svc canceller, updates, done <-chan service.Event) (service.Event, error) {
	p := tea.NewProgram(newProgressModel(title, svc))

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case ev := <-updates:
				p.Send(eventMsg(ev))
			case ev := <-done:
				p.Send(eventMsg(ev))
				return
			case <-stop:
				return
			}
		}
	}()

	finalModel, err := p.Run()
	if err != nil {
		return service.Event{}, fmt.Errorf("progress UI error: %w", err)
	}
	m, ok := finalModel.(progressModel)
	if !ok || m.aborted {
		return service.Event{}, errInterrupted
	}
	return m.result, nil
}

func followPlain(title string, svc canceller, updates, done <-chan service.Event) (service.Event, error) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	fmt.Fprintln(os.Stderr, title)
	var last string
	cancelling := false
	for {
		select {
		case ev := <-updates:
			// progress_changed already reports the OCR phase
			if ev.Type == service.EventStateChanged && strings.Contains(ev.Status, jobs.OCRPhaseMarker) {
				continue
			}
			line := ev.Status
			if ev.Type == service.EventProgressChanged || ev.Type == service.EventThumbnailStatus {
				line = fmt.Sprintf("%3d%% %s", ev.Percent, ev.Status)
			}
			if line != last {
				fmt.Fprintln(os.Stderr, line)
				last = line
			}
		case ev := <-done:
			return ev, nil
		case <-sig:
			if cancelling {
				return service.Event{}, errInterrupted
			}
			cancelling = true
			fmt.Fprintln(os.Stderr, "Cancelling... interrupt again to quit now")
			svc.CancelAll()
		}
	}
}

// watch subscribes to kind's events before a submit. Updates are dropped
// when the reader falls behind; the terminal event is never dropped.
func watch(svc *service.OCRService, kind jobs.Kind) (updates, done chan service.Event, unsubscribe func()) {
	updates = make(chan service.Event, 64)
	done = make(chan service.Event, 1)
	unsubscribe = svc.Subscribe(func(ev service.Event) {
		if ev.Kind != kind {
			return
		}
		ch := updates
		if ev.Type.Terminal() {
			ch = done
		}
		select {
		case ch <- ev:
		default:
		}
	})
	return updates, done, unsubscribe
}

// runJob submits through submit and follows the run to its end. A failed
// run is returned as an error.
func runJob(svc *service.OCRService, kind jobs.Kind, title string, submit func() (uuid.UUID, error)) (service.Event, error) {
	updates, done, unsubscribe := watch(svc, kind)
	defer unsubscribe()

	runID, err := submit()
	if err != nil {
		return service.Event{}, err
	}
	logger.Debug("following job", "kind", kind, "run_id", runID)

	ev, err := follow(title, svc, updates, done)
	if err != nil {
		return ev, err
	}
	if ev.Type == service.EventFailed {
		return ev, fmt.Errorf("%s failed: %s", kind, ev.Err)
	}
	if ev.Status == jobs.StatusCancelled && !interactive() {
		fmt.Fprintf(os.Stderr, "Cancelled at %d%%\n", ev.Percent)
	}
	return ev, nil
}
