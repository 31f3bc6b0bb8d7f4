package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"vocalsnr/internal/analysis"
	"vocalsnr/internal/dispatch"
	"vocalsnr/internal/engine"
	"vocalsnr/internal/history"
)

// meterFullScale is the SNR shown as a full bar.
const meterFullScale = 40.0

var (
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0A0A0")).Width(12)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#E05252")).Bold(true)
	activeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#E0A030")).Bold(true)
)

// Controller is the part of the engine the meter drives.
type Controller interface {
	StartBaselineRecording() error
	StartTest() error
	Stop()
	State() engine.State
	BaselineNoisePower() float64
}

// EventMsg carries a dispatched engine event into the program.
type EventMsg dispatch.Event

type meterKeys struct {
	Baseline key.Binding
	Test     key.Binding
	Stop     key.Binding
	Quit     key.Binding
}

var keys = meterKeys{
	Baseline: key.NewBinding(key.WithKeys("b")),
	Test:     key.NewBinding(key.WithKeys("t")),
	Stop:     key.NewBinding(key.WithKeys("s", "esc")),
	Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c")),
}

// MeterModel shows the live SNR reading and drives sessions from the
// keyboard. It reads session state from a history.Tracker subscribed to
// the same dispatcher ahead of the program.
type MeterModel struct {
	ctrl    Controller
	tracker *history.Tracker
	bar     progress.Model

	snap     history.Snapshot
	state    engine.State
	baseline float64
	err      error
}

func NewMeterModel(ctrl Controller, tracker *history.Tracker) MeterModel {
	return MeterModel{
		ctrl:     ctrl,
		tracker:  tracker,
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithWidth(40), progress.WithoutPercentage()),
		state:    ctrl.State(),
		baseline: ctrl.BaselineNoisePower(),
	}
}

func (m MeterModel) Init() tea.Cmd {
	return nil
}

func (m MeterModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.bar.Width = max(10, min(msg.Width-16, 60))

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.ctrl.Stop()
			return m, tea.Quit
		case key.Matches(msg, keys.Baseline):
			m.err = nil
			return m, call(m.ctrl.StartBaselineRecording)
		case key.Matches(msg, keys.Test):
			m.err = nil
			return m, call(m.ctrl.StartTest)
		case key.Matches(msg, keys.Stop):
			m.ctrl.Stop()
		}
		m.refresh()

	case callResult:
		if msg.err != nil {
			m.err = msg.err
		}
		m.refresh()

	case EventMsg:
		if msg.Kind == dispatch.KindBaselineFailed {
			m.err = msg.Err
		}
		m.refresh()
	}
	return m, nil
}

type callResult struct{ err error }

// call runs a session start off the update loop. Starting a session emits
// events that are delivered back into the program.
func call(fn func() error) tea.Cmd {
	return func() tea.Msg { return callResult{err: fn()} }
}

func (m *MeterModel) refresh() {
	m.snap = m.tracker.Snapshot()
	m.state = m.ctrl.State()
	m.baseline = m.ctrl.BaselineNoisePower()
}

func (m MeterModel) View() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Vocal SNR Meter"))
	sb.WriteString("\n\n")

	state := m.state.String()
	if m.snap.MicrophoneActive() {
		state = activeStyle.Render(state + "  ● mic")
	}
	row(&sb, "State", state)

	if m.baseline > 0 {
		q := analysis.Classify(m.baseline)
		row(&sb, "Baseline", fmt.Sprintf("%.1f (%s)", m.baseline, q.Label))
	} else {
		row(&sb, "Baseline", "not recorded, press b in a quiet room")
	}

	latest := m.snap.Latest
	rating := m.snap.Rating
	if m.snap.Readings == 0 {
		rating = "-"
	}
	row(&sb, "SNR", fmt.Sprintf("%5.1f dB  %s", latest, highlightStyle.Render(rating)))
	row(&sb, "", m.bar.ViewAs(min(max(latest/meterFullScale, 0), 1)))
	row(&sb, "Session max", fmt.Sprintf("%5.1f dB over %d readings", m.snap.Max, m.snap.Readings))

	if m.err != nil {
		sb.WriteString("\n")
		sb.WriteString(errorStyle.Render("Error: " + m.err.Error()))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(infoStyle.Render("b: Baseline • t: Test • s: Stop • q: Quit"))
	return sb.String()
}

func row(sb *strings.Builder, label, value string) {
	sb.WriteString(labelStyle.Render(label))
	sb.WriteString(value)
	sb.WriteString("\n")
}

// RunMeter runs the meter until the user quits. Events from d are
// forwarded into the program.
func RunMeter(ctrl Controller, tracker *history.Tracker, d *dispatch.Dispatcher) error {
	p := tea.NewProgram(NewMeterModel(ctrl, tracker), tea.WithAltScreen())
	d.Subscribe(func(ev dispatch.Event) { p.Send(EventMsg(ev)) })
	_, err := p.Run()
	return err
}
