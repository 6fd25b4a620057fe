// SPDX-License-Identifier: MIT

// Package tui is the interactive terminal front end: device pickers, the
// monitor and loopback toggles, the visible range control and a live
// spectrum with its peak.
package tui

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"linein/internal/analysis"
	"linein/internal/audio"
	"linein/internal/monitor"
)

// Visible range control: the upper bound moves in fixed steps.
const (
	MinVisibleHigh  = 1000.0
	MaxVisibleHigh  = 10000.0
	VisibleHighStep = 1000.0
)

const (
	refreshInterval = 50 * time.Millisecond
	spectrumHeight  = 12
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)

	barStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#E05561"))
)

// Session is what the front end drives. *monitor.Session implements it.
type Session interface {
	Start() error
	Stop() error
	SelectInput(name string) error
	SelectOutput(name string) error
	SetLoopback(on bool) error
	SetVisibleWindow(low, high float64) error
	VisibleWindow() (low, high float64)
	LatestFrame() (analysis.Frame, bool)
	Status() monitor.Status
}

var _ Session = (*monitor.Session)(nil)

// ScreenType defines which screen is currently active
type ScreenType int

const (
	MonitorScreen ScreenType = iota
	InputScreen
	OutputScreen
)

type refreshMsg struct{}

// Model is the Bubble Tea model of the monitor window.
type Model struct {
	session Session
	inputs  []audio.Device
	outputs []audio.Device

	screen   ScreenType
	cursor   int
	viewport viewport.Model
	help     help.Model
	keys     keyMap
	ready    bool
	width    int

	frame    analysis.Frame
	hasFrame bool
	status   monitor.Status
	err      error
}

// NewModel creates the model over a session and the device lists offered
// by the pickers.
func NewModel(session Session, inputs, outputs []audio.Device) Model {
	return Model{
		session: session,
		inputs:  inputs,
		outputs: outputs,
		screen:  MonitorScreen,
		help:    help.New(),
		keys:    defaultKeyMap(),
		status:  session.Status(),
	}
}

func refresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg { return refreshMsg{} })
}

// Init starts the redraw ticker.
func (m Model) Init() tea.Cmd {
	return refresh()
}

// Update handles input and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 4
		}
		m.help.Width = msg.Width

	case refreshMsg:
		m.frame, m.hasFrame = m.session.LatestFrame()
		m.status = m.session.Status()
		cmds = append(cmds, refresh())

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			return m, tea.Quit
		}
		if m.screen == MonitorScreen {
			m = m.updateMonitor(msg)
		} else {
			m = m.updatePicker(msg)
		}
		m.status = m.session.Status()
	}

	if m.screen != MonitorScreen {
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func (m Model) updateMonitor(msg tea.KeyMsg) Model {
	switch {
	case key.Matches(msg, m.keys.Monitor):
		if m.status.Monitoring {
			m.err = m.session.Stop()
			m.hasFrame = false
		} else {
			m.err = m.session.Start()
		}

	case key.Matches(msg, m.keys.Loopback):
		m.err = m.session.SetLoopback(!m.status.Loopback)

	case key.Matches(msg, m.keys.Raise):
		m.err = m.stepVisibleHigh(VisibleHighStep)

	case key.Matches(msg, m.keys.Lower):
		m.err = m.stepVisibleHigh(-VisibleHighStep)

	case key.Matches(msg, m.keys.Input):
		m.screen = InputScreen
		m.cursor = deviceIndex(m.inputs, m.status.Input)
		m.viewport.SetContent(renderDevices(m.inputs, m.cursor, m.status.Input))

	case key.Matches(msg, m.keys.Output):
		m.screen = OutputScreen
		m.cursor = deviceIndex(m.outputs, m.status.Output)
		m.viewport.SetContent(renderDevices(m.outputs, m.cursor, m.status.Output))
	}
	return m
}

// stepVisibleHigh moves the upper bound, snapped to the step grid and
// clamped to the control's range.
func (m Model) stepVisibleHigh(delta float64) error {
	low, high := m.session.VisibleWindow()
	high = math.Round(high/VisibleHighStep)*VisibleHighStep + delta
	high = math.Max(MinVisibleHigh, math.Min(MaxVisibleHigh, high))
	if low > high {
		low = 0
	}
	return m.session.SetVisibleWindow(low, high)
}

func (m Model) updatePicker(msg tea.KeyMsg) Model {
	devices, active := m.inputs, m.status.Input
	if m.screen == OutputScreen {
		devices, active = m.outputs, m.status.Output
	}

	switch {
	case key.Matches(msg, m.keys.Back):
		m.screen = MonitorScreen
		return m

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(devices)-1 {
			m.cursor++
		}

	case key.Matches(msg, m.keys.Select):
		if len(devices) == 0 {
			return m
		}
		name := devices[m.cursor].Name
		if m.screen == InputScreen {
			m.err = m.session.SelectInput(name)
		} else {
			m.err = m.session.SelectOutput(name)
		}
		m.screen = MonitorScreen
		return m
	}

	m.viewport.SetContent(renderDevices(devices, m.cursor, active))
	return m
}

// View renders the UI
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	switch m.screen {
	case InputScreen, OutputScreen:
		title := "Input Device"
		if m.screen == OutputScreen {
			title = "Output Device"
		}
		return fmt.Sprintf("%s\n\n%s\n\n%s", titleStyle.Render(title), m.viewport.View(),
			m.help.ShortHelpView(m.keys.pickerHelp()))
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Line In Monitor"))
	sb.WriteString("\n\n")
	sb.WriteString(infoStyle.Render(m.statusLine()))
	sb.WriteString("\n")
	sb.WriteString(highlightStyle.Render(peakLabel(m.frame, m.hasFrame)))
	if m.hasFrame {
		sb.WriteString("  ")
		sb.WriteString(infoStyle.Render(levelLabel(m.frame.Level, m.frame.Onset)))
	}
	sb.WriteString("\n\n")

	low, high := m.session.VisibleWindow()
	if m.hasFrame {
		sb.WriteString(barStyle.Render(renderSpectrum(m.frame.Spectrum, low, high, m.width, spectrumHeight)))
		sb.WriteString("\n")
	}
	sb.WriteString(axisLabel(low, high, m.width))
	sb.WriteString("\n")
	if m.hasFrame && len(m.frame.Bands) > 0 {
		sb.WriteString(infoStyle.Render(bandsLine(m.frame.Bands)))
		sb.WriteString("\n")
	}

	if m.err != nil {
		sb.WriteString(errorStyle.Render("Error: " + m.err.Error()))
		sb.WriteString("\n")
	} else if m.status.Err != nil {
		sb.WriteString(errorStyle.Render("Stream lost: " + m.status.Err.Error()))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	sb.WriteString(m.help.ShortHelpView(m.keys.monitorHelp()))
	return sb.String()
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func (m Model) statusLine() string {
	in, out := "none", "none"
	if m.status.Input != nil {
		in = m.status.Input.Name
	}
	if m.status.Output != nil {
		out = m.status.Output.Name
	}
	return fmt.Sprintf("In: %s  Out: %s  Monitor: %s  Loopback: %s",
		in, out, onOff(m.status.Monitoring), onOff(m.status.Loopback))
}

func peakLabel(f analysis.Frame, ok bool) string {
	if !ok || f.Peak == nil {
		return "Peak: none"
	}
	return fmt.Sprintf("Peak: %.1f Hz (%.1f)", f.Peak.Frequency, f.Peak.Magnitude)
}

// levelLabel shows the block level in dB relative to full scale.
func levelLabel(level float64, onset bool) string {
	label := "Level: -inf dBFS"
	if level > 0 {
		label = fmt.Sprintf("Level: %.1f dBFS", 20*math.Log10(level))
	}
	if onset {
		label += " *"
	}
	return label
}

func axisLabel(low, high float64, width int) string {
	left := fmt.Sprintf("%.0f Hz", low)
	right := fmt.Sprintf("%.0f Hz", high)
	gap := width - len(left) - len(right)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}

func bandsLine(bands []analysis.BandEnergy) string {
	parts := make([]string, len(bands))
	for i, b := range bands {
		parts[i] = fmt.Sprintf("%s %.0f", b.Name, b.Level)
	}
	return strings.Join(parts, "  ")
}

var partialBlocks = []rune(" ▁▂▃▄▅▆▇")

// renderSpectrum draws the bins inside [low, high] as width columns of
// height rows. Adjacent bins sharing a column are combined by maximum and
// the tallest column fills the height.
func renderSpectrum(spectrum []analysis.Bin, low, high float64, width, height int) string {
	if width <= 0 || height <= 0 {
		return ""
	}
	var visible []float64
	for _, b := range spectrum {
		if b.Frequency >= low && b.Frequency <= high {
			visible = append(visible, b.Magnitude)
		}
	}
	if len(visible) == 0 {
		return ""
	}

	cols := min(width, len(visible))
	levels := make([]float64, cols)
	peak := 0.0
	for i, v := range visible {
		c := i * cols / len(visible)
		levels[c] = math.Max(levels[c], v)
		peak = math.Max(peak, levels[c])
	}

	rows := make([]string, height)
	line := make([]rune, cols)
	for r := 0; r < height; r++ {
		level := float64(height - 1 - r)
		for c, v := range levels {
			fill := 0.0
			if peak > 0 {
				fill = v/peak*float64(height) - level
			}
			switch {
			case fill >= 1:
				line[c] = '█'
			case fill > 0:
				line[c] = partialBlocks[int(fill*float64(len(partialBlocks)))]
			default:
				line[c] = ' '
			}
		}
		rows[r] = string(line)
	}
	return strings.Join(rows, "\n")
}

// Run launches the Bubble Tea program and blocks until the user quits.
func Run(session Session, inputs, outputs []audio.Device) error {
	p := tea.NewProgram(
		NewModel(session, inputs, outputs),
		tea.WithAltScreen(),
	)
	_, err := p.Run()
	return err
}
