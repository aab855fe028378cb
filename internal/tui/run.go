package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
)

// Run shows the chat full screen until the user quits or ctx is done.
func Run(ctx context.Context, opts Options, programOpts ...tea.ProgramOption) error {
	m := New(ctx, opts)
	programOpts = append([]tea.ProgramOption{
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	}, programOpts...)
	p := tea.NewProgram(m, programOpts...)
	m.Attach(p)

	_, err := p.Run()
	m.Close()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return errors.Wrap(err, "failed to run terminal ui")
	}
	return nil
}
