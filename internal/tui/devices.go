package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"vocalsnr/internal/audio"
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
)

// DevicePickerModel lists capture devices and lets the user choose one.
type DevicePickerModel struct {
	load          func() ([]audio.Device, error)
	devices       []audio.Device
	selectedIndex int
	chosen        int
	viewport      viewport.Model
	ready         bool
	err           error
}

type devicesMsg struct {
	devices []audio.Device
}

type errMsg struct {
	err error
}

// NewDevicePickerModel creates a picker over the input-capable host devices.
func NewDevicePickerModel() DevicePickerModel {
	return DevicePickerModel{load: inputDevices, chosen: -1}
}

func inputDevices() ([]audio.Device, error) {
	all, err := audio.HostDevices()
	if err != nil {
		return nil, err
	}
	var in []audio.Device
	for _, d := range all {
		if d.MaxInputChannels > 0 {
			in = append(in, d)
		}
	}
	return in, nil
}

func (m DevicePickerModel) Init() tea.Cmd {
	load := m.load
	return func() tea.Msg {
		devices, err := load()
		if err != nil {
			return errMsg{err}
		}
		return devicesMsg{devices}
	}
}

func (m DevicePickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 4
		}
		m.viewport.SetContent(m.renderDevices())

	case devicesMsg:
		m.devices = msg.devices
		if m.ready {
			m.viewport.SetContent(m.renderDevices())
		}

	case errMsg:
		m.err = msg.err

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, key.NewBinding(key.WithKeys("q", "ctrl+c", "esc"))):
			return m, tea.Quit
		case key.Matches(msg, key.NewBinding(key.WithKeys("up", "k"))):
			if m.selectedIndex > 0 {
				m.selectedIndex--
			}
		case key.Matches(msg, key.NewBinding(key.WithKeys("down", "j"))):
			if m.selectedIndex < len(m.devices)-1 {
				m.selectedIndex++
			}
		case key.Matches(msg, key.NewBinding(key.WithKeys("enter"))):
			if len(m.devices) > 0 {
				m.chosen = m.devices[m.selectedIndex].ID
				return m, tea.Quit
			}
		}
		m.viewport.SetContent(m.renderDevices())
	}

	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m DevicePickerModel) View() string {
	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress q to exit.", m.err)
	}
	if !m.ready {
		return "Initializing..."
	}
	title := titleStyle.Render("Input Devices")
	help := infoStyle.Render("↑/↓: Navigate • Enter: Select • q: Quit")
	return fmt.Sprintf("%s\n\n%s\n\n%s", title, m.viewport.View(), help)
}

// Chosen returns the selected device ID, or -1 if the user quit.
func (m DevicePickerModel) Chosen() int {
	return m.chosen
}

func (m DevicePickerModel) renderDevices() string {
	if len(m.devices) == 0 {
		return "No input devices found."
	}

	var sb strings.Builder
	for i, d := range m.devices {
		info := fmt.Sprintf("[%d] %s (%s)\n", d.ID, d.Name, d.HostAPI)
		info += fmt.Sprintf("    Input channels: %d, default rate %.0f Hz\n", d.MaxInputChannels, d.DefaultSampleRate)
		info += fmt.Sprintf("    Input latency: %v low, %v high\n", d.LowInputLatency, d.HighInputLatency)
		if i == m.selectedIndex {
			info = highlightStyle.Render(info)
		}
		sb.WriteString(info)
		sb.WriteString("\n")
	}
	return sb.String()
}

// PickDevice runs the picker and returns the chosen device ID, or -1.
func PickDevice() (int, error) {
	p := tea.NewProgram(NewDevicePickerModel(), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return -1, err
	}
	return final.(DevicePickerModel).Chosen(), nil
}
