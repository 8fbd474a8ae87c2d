package ui

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/BioHazard786/flipboard/internal/app"
	"github.com/BioHazard786/flipboard/internal/command"
	"github.com/BioHazard786/flipboard/internal/transport"
)

// HostControls is what the view needs from the host controller. Keys
// pressed in the view are applied as local commands.
type HostControls interface {
	Apply(cmd command.Command)
	State() app.Display
}

type HostViewOptions struct {
	RoomID   string
	RoomLink string
	Mode     string
}

// HostView is the live terminal display of a host. Display and status
// updates may arrive from any goroutine; only the latest of each is kept.
type HostView struct {
	controls HostControls
	opts     HostViewOptions
	spinner  spinner.Model

	mu      sync.Mutex
	display app.Display
	status  transport.Status
	notify  chan struct{}

	quitting bool
}

// refreshMsg tells the model that a newer display or status is pending.
type refreshMsg struct{}

func NewHostView(controls HostControls, opts HostViewOptions) *HostView {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return &HostView{
		controls: controls,
		opts:     opts,
		spinner:  s,
		display:  controls.State(),
		status:   transport.StatusConnecting,
		notify:   make(chan struct{}, 1),
	}
}

// SetDisplay records d for the next redraw.
func (v *HostView) SetDisplay(d app.Display) {
	v.mu.Lock()
	v.display = d
	v.mu.Unlock()
	v.wake()
}

// SetStatus records s for the next redraw.
func (v *HostView) SetStatus(s transport.Status) {
	v.mu.Lock()
	v.status = s
	v.mu.Unlock()
	v.wake()
}

func (v *HostView) wake() {
	select {
	case v.notify <- struct{}{}:
	default:
	}
}

func (v *HostView) listenForUpdates() tea.Cmd {
	return func() tea.Msg {
		<-v.notify
		return refreshMsg{}
	}
}

func (v *HostView) Init() tea.Cmd {
	return tea.Batch(v.spinner.Tick, v.listenForUpdates())
}

func (v *HostView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			v.quitting = true
			return v, tea.Quit
		case "t":
			v.controls.Apply(command.SetTheme(toggleTheme(v.current().Theme)))
		case "s":
			v.controls.Apply(command.SetSound(toggleSound(v.current().Sound)))
		case "c":
			if v.current().LiveClock {
				v.controls.Apply(command.StopLiveClock())
			} else {
				v.controls.Apply(command.StartLiveClock(command.Clock24h))
			}
		case "x":
			v.controls.Apply(command.UpdateBoard(command.EmptyBoard()))
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		v.spinner, cmd = v.spinner.Update(msg)
		return v, cmd

	case refreshMsg:
		return v, v.listenForUpdates()
	}
	return v, nil
}

func (v *HostView) current() app.Display {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.display
}

func (v *HostView) View() string {
	if v.quitting {
		return ""
	}

	v.mu.Lock()
	display, status := v.display, v.status
	v.mu.Unlock()

	var b strings.Builder
	header := HeaderStyle.Render(IconBoard + " FLIPBOARD")
	if v.opts.Mode != "" {
		header = lipgloss.JoinHorizontal(lipgloss.Top, header, " ", StatusStyle.Render(strings.ToUpper(v.opts.Mode)))
	}
	b.WriteString(header)
	b.WriteString("\n")
	b.WriteString(v.statusLine(status))
	b.WriteString("\n\n")

	summary := DisplaySummaryView(DisplaySummary{
		Status: status.String(),
		Mode:   v.opts.Mode,
		Theme:  string(display.Theme),
		Sound:  string(display.Sound),
		Clock:  clockLabel(display),
	})
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		RenderBoard(display.Board, display.Theme), "  ", summary))
	b.WriteString("\n")

	if v.opts.RoomID != "" {
		b.WriteString(NewRoomInfo(v.opts.RoomID, v.opts.RoomLink).View())
		b.WriteString("\n")
	}

	b.WriteString(FooterStyle.Render("t theme • s sound • c clock • x clear • q quit"))
	return b.String()
}

func (v *HostView) statusLine(s transport.Status) string {
	switch {
	case s == transport.StatusConnected:
		return SuccessStyle.Render(IconPeer + " Remote connected")
	case s == transport.StatusHostReady:
		return fmt.Sprintf("%s Waiting for a remote to join...", v.spinner.View())
	case s == transport.StatusConnecting:
		return fmt.Sprintf("%s Opening room...", v.spinner.View())
	case s.Failed():
		return ErrorStyle.Render(fmt.Sprintf("%s Connection %s", IconError, s))
	default:
		return WarningStyle.Render(fmt.Sprintf("%s %s", IconWarning, s))
	}
}

func clockLabel(d app.Display) string {
	if !d.LiveClock {
		return "off"
	}
	return IconClock + " " + d.ClockVariant
}

func toggleTheme(t command.Theme) command.Theme {
	if t == command.ThemeDark {
		return command.ThemeLight
	}
	return command.ThemeDark
}

func toggleSound(s command.Sound) command.Sound {
	if s == command.SoundLoud {
		return command.SoundSubtle
	}
	return command.SoundLoud
}
