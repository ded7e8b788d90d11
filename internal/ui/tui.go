// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program and pumps snapshots into it
package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/streamprobe/streamprobe-go/pkg/probe"
)

// TUI manages the terminal interface.
type TUI struct {
	program *tea.Program
	updates chan probe.Snapshot
}

// New creates a TUI. Run must be called to display anything.
func New() *TUI {
	return &TUI{
		updates: make(chan probe.Snapshot, 10),
	}
}

// Push queues a snapshot for display. Never blocks; when the TUI lags,
// a newer snapshot supersedes the lost one anyway.
func (t *TUI) Push(snap probe.Snapshot) {
	select {
	case t.updates <- snap:
	default:
	}
}

// Run displays the interface until the user quits. Blocks.
func (t *TUI) Run(cmds Commands, initialURL string) error {
	t.program = tea.NewProgram(NewModel(cmds, initialURL), tea.WithAltScreen())

	go func() {
		for snap := range t.updates {
			t.program.Send(SnapshotMsg(snap))
		}
	}()

	_, err := t.program.Run()
	return err
}

// Quit asks the interface to exit, for shutdown paths that do not come
// from a keypress.
func (t *TUI) Quit() {
	if t.program != nil {
		t.program.Quit()
	}
}
