// Package tui is a terminal front panel: it mirrors the brick screen, plots
// the encoder position and turns arrow keys into button presses.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/cjeanneret/SweepGo/internal/hw/button"
	"github.com/cjeanneret/SweepGo/internal/hw/display"
	"github.com/cjeanneret/SweepGo/internal/logic/oscillation"
)

const (
	refreshEvery = 100 * time.Millisecond
	positionSet  = "position"
	borderSize   = 2
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	lcdStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("108")).Foreground(lipgloss.Color("151")).Width(display.Cols)
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	activeStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("46"))
	pausedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("208"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// Status is what the panel displays.
type Status struct {
	Sweep         oscillation.Snapshot
	Screen        []string
	ExitClicks    int
	ExitThreshold int
	Escaped       bool
}

// Model is the bubbletea model of the panel.
type Model struct {
	status   func() Status
	press    func(button.Reading)
	chart    *streamlinechart.Model
	last     Status
	lastPos  int
	havePos  bool
	width    int
	height   int
	quitting bool
}

type refreshMsg time.Time

// New creates the panel. span is the sweep target in ticks and sets the
// chart's Y range.
func New(status func() Status, press func(button.Reading), span int) Model {
	if span <= 0 {
		span = oscillation.DefaultSweepTicks
	}
	limit := float64(span) * 1.1
	chart := streamlinechart.New(60, 12, streamlinechart.WithYRange(-limit, limit))
	chart.SetDataSetStyles(positionSet, runes.ThinLineStyle, lipgloss.NewStyle().Foreground(lipgloss.Color("51")))
	return Model{status: status, press: press, chart: &chart}
}

func refresh() tea.Cmd {
	return tea.Tick(refreshEvery, func(t time.Time) tea.Msg { return refreshMsg(t) })
}

func (m Model) Init() tea.Cmd {
	return refresh()
}

// keyButtons maps keys to panel buttons.
var keyButtons = map[string]button.Reading{
	"left":      button.Left,
	"right":     button.Right,
	"enter":     button.Enter,
	"backspace": button.Exit,
	"esc":       button.Exit,
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		w := m.width - borderSize - 2
		if w < 30 {
			w = 30
		}
		h := m.height - display.Rows - 10
		if h < 6 {
			h = 6
		}
		m.chart.Resize(w, h)
		return m, nil

	case tea.KeyMsg:
		switch key := msg.String(); key {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		default:
			if b, ok := keyButtons[key]; ok && m.press != nil {
				m.press(b)
			}
		}
		return m, nil

	case refreshMsg:
		m.poll()
		if m.last.Escaped {
			m.quitting = true
			return m, tea.Quit
		}
		return m, refresh()
	}
	return m, nil
}

// poll reads the status and extends the chart when the motor moved.
func (m *Model) poll() {
	if m.status == nil {
		return
	}
	m.last = m.status()
	pos := m.last.Sweep.Position
	if !m.havePos || pos != m.lastPos || m.last.Sweep.Drive != 0 {
		m.chart.PushDataSet(positionSet, float64(pos))
		m.chart.DrawAll()
		m.lastPos, m.havePos = pos, true
	}
}

func (m Model) View() string {
	if m.quitting {
		return "Front panel closed.\n"
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render("SweepGo"))
	if m.width > 0 {
		sb.WriteString(statusStyle.Render(fmt.Sprintf("  [%dx%d]", m.width, m.height)))
	}
	sb.WriteString("\n\n")

	lines := m.last.Screen
	if len(lines) == 0 {
		lines = make([]string, display.Rows)
	}
	lcd := lcdStyle.Render(strings.Join(lines, "\n"))
	sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, lcd, "  ", m.renderStatus()))
	sb.WriteString("\n")

	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")
	sb.WriteString(statusStyle.Render("←: start  →: pause  enter  esc/backspace: exit click  q: close panel"))
	sb.WriteString("\n")
	return sb.String()
}

func (m Model) renderStatus() string {
	s := m.last.Sweep
	state := s.State
	switch state {
	case oscillation.Active.String():
		state = activeStyle.Render(state)
	case oscillation.Paused.String():
		state = pausedStyle.Render(state)
	}
	rows := [][2]string{
		{"State", state},
		{"Phase", s.Phase},
		{"Cycle", fmt.Sprint(s.Cycle)},
		{"Position", fmt.Sprint(s.Position)},
		{"Drive", fmt.Sprintf("%d%%", s.Drive)},
		{"Exit", fmt.Sprintf("%d/%d", m.last.ExitClicks, m.last.ExitThreshold)},
	}
	var sb strings.Builder
	for _, r := range rows {
		sb.WriteString(labelStyle.Render(fmt.Sprintf("%-9s", r[0])))
		sb.WriteString(r[1])
		sb.WriteString("\n")
	}
	return sb.String()
}

// Run shows the panel until the user closes it, the program escapes, or ctx ends.
func Run(ctx context.Context, m Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("front panel: %w", err)
	}
	return nil
}
