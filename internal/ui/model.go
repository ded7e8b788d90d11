// ABOUTME: Bubbletea model for the probe TUI
// ABOUTME: URL entry, status line and a scrolling diagnostic log
package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/streamprobe/streamprobe-go/pkg/probe"
)

// Commands are the actions the TUI can trigger. Both are asynchronous
// and safe to call from Update.
type Commands struct {
	Play func(url string)
	Stop func()
}

// SnapshotMsg delivers controller state into the TUI.
type SnapshotMsg probe.Snapshot

// Model represents the TUI state.
type Model struct {
	cmds Commands

	// URL entry
	input string

	// Session state
	status  probe.Status
	url     string
	entries []string

	// Log window
	scroll int
	follow bool

	// Dimensions
	width  int
	height int

	quitting bool
}

// NewModel creates the initial TUI state.
func NewModel(cmds Commands, initialURL string) Model {
	return Model{
		cmds:   cmds,
		input:  initialURL,
		status: probe.Status{State: probe.StateIdle},
		follow: true,
	}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case SnapshotMsg:
		m.applySnapshot(msg)
	}

	return m, nil
}

// handleKey handles keyboard input. Anything typable goes into the URL
// field, so quitting and stopping live on control keys.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "enter":
		if m.cmds.Play != nil {
			m.cmds.Play(m.input)
		}
	case "ctrl+s":
		if m.cmds.Stop != nil {
			m.cmds.Stop()
		}
	case "esc":
		m.input = ""
	case "backspace":
		if len(m.input) > 0 {
			runes := []rune(m.input)
			m.input = string(runes[:len(runes)-1])
		}
	case "pgup":
		m.follow = false
		m.scroll -= m.logHeight() - 1
		if m.scroll < 0 {
			m.scroll = 0
		}
	case "pgdown":
		m.scroll += m.logHeight() - 1
		if m.scroll >= m.maxScroll() {
			m.scroll = m.maxScroll()
			m.follow = true
		}
	case "home":
		m.follow = false
		m.scroll = 0
	case "end":
		m.follow = true
	case " ":
		m.input += " "
	default:
		if msg.Type == tea.KeyRunes {
			m.input += string(msg.Runes)
		}
	}

	return m, nil
}

// applySnapshot updates the model from controller state.
func (m *Model) applySnapshot(msg SnapshotMsg) {
	m.status = msg.Status
	m.url = msg.URL
	m.entries = msg.Entries
	if m.follow {
		m.scroll = m.maxScroll()
	}
}

// logLines flattens entries; engine error entries span several lines.
func (m Model) logLines() []string {
	var lines []string
	for _, entry := range m.entries {
		lines = append(lines, strings.Split(entry, "\n")...)
	}
	return lines
}

func (m Model) logHeight() int {
	h := m.height - 7
	if h < 3 {
		h = 3
	}
	return h
}

func (m Model) maxScroll() int {
	max := len(m.logLines()) - m.logHeight()
	if max < 0 {
		max = 0
	}
	return max
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return "Closing probe...\n"
	}
	if m.width == 0 {
		return "Loading..."
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205"))

	labelStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("86"))

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("250"))

	faintStyle := lipgloss.NewStyle().Faint(true)

	var b strings.Builder

	b.WriteString(titleStyle.Render("streamprobe"))
	b.WriteString("\n")

	b.WriteString(labelStyle.Render("Status: "))
	b.WriteString(m.renderStatus())
	if m.url != "" {
		b.WriteString(valueStyle.Render("  " + truncate(m.url, m.width-20)))
	}
	b.WriteString("\n")

	b.WriteString(labelStyle.Render("URL> "))
	b.WriteString(valueStyle.Render(m.input))
	b.WriteString(faintStyle.Render("▏"))
	b.WriteString("\n")

	b.WriteString(faintStyle.Render(strings.Repeat("─", m.width)))
	b.WriteString("\n")
	b.WriteString(m.renderLog(valueStyle))
	b.WriteString(faintStyle.Render(strings.Repeat("─", m.width)))
	b.WriteString("\n")

	b.WriteString(faintStyle.Render("Enter:Play  Ctrl+S:Stop  PgUp/PgDn:Scroll  End:Follow  Ctrl+C:Quit"))

	return b.String()
}

// renderStatus colors the status by state.
func (m Model) renderStatus() string {
	var color lipgloss.Color
	text := strings.ToUpper(m.status.State.String())

	switch m.status.State {
	case probe.StatePlaying:
		color = lipgloss.Color("82")
	case probe.StateLoading:
		color = lipgloss.Color("220")
	case probe.StateError:
		color = lipgloss.Color("196")
		if m.status.Message != "" {
			text = fmt.Sprintf("%s  %s", text, truncate(m.status.Message, m.width-30))
		}
	default:
		color = lipgloss.Color("241")
	}

	return lipgloss.NewStyle().Bold(true).Foreground(color).Render(text)
}

// renderLog windows the flattened log to the visible height.
func (m Model) renderLog(style lipgloss.Style) string {
	lines := m.logLines()
	height := m.logHeight()

	start := m.scroll
	if m.follow {
		start = len(lines) - height
	}
	if start > len(lines)-height {
		start = len(lines) - height
	}
	if start < 0 {
		start = 0
	}

	var b strings.Builder
	for i := 0; i < height; i++ {
		idx := start + i
		if idx < len(lines) {
			b.WriteString(style.Render(truncate(lines[idx], m.width)))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// truncate shortens s to length runes. ICY titles and error messages
// are often non-ASCII, so cutting on bytes would split a rune.
func truncate(s string, length int) string {
	if length < 4 {
		length = 4
	}
	runes := []rune(s)
	if len(runes) <= length {
		return s
	}
	return string(runes[:length-3]) + "..."
}
