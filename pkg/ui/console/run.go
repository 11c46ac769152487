package console

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Run shows the live bridge console until the operator quits or ctx ends.
func Run(ctx context.Context, opts Options) error {
	model := newModel(ctx, opts)
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	_, err := program.Run()
	if err != nil && !(errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil) {
		return err
	}

	fmt.Println(renderGoodbyeBanner(model.stats.Dispatched, model.stats.Sent))
	return nil
}

func renderGoodbyeBanner(dispatched, sent uint64) string {
	style := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("230")).
		Background(lipgloss.Color("22")).
		Padding(1, 2)

	return style.Render(fmt.Sprintf("📡 Bridge console closed · %d in · %d out", dispatched, sent))
}
