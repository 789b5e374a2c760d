package tui

import (
	"context"
	"errors"
	"io"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"

	"shoplist/internal/logging"
)

type Options struct {
	Actions    Actions
	View       *ProgramView
	Deployment string
	Input      io.Reader
	Output     io.Writer
	Logger     *slog.Logger
}

// Run shows the list until the user quits or ctx ends.
func Run(ctx context.Context, opts Options) error {
	if opts.Actions == nil {
		return errors.New("actions are required")
	}
	logger := logging.OrDiscard(opts.Logger)
	view := opts.View
	if view == nil {
		view = NewProgramView()
	}

	progOpts := []tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen(), tea.WithReportFocus()}
	if opts.Input != nil {
		progOpts = append(progOpts, tea.WithInput(opts.Input))
	}
	if opts.Output != nil {
		progOpts = append(progOpts, tea.WithOutput(opts.Output))
	}
	p := tea.NewProgram(NewModel(ctx, opts.Actions, view, opts.Deployment), progOpts...)
	view.attach(p.Send)
	defer view.attach(nil)

	logger.Info("ui started", "deployment", opts.Deployment)
	_, err := p.Run()
	if err != nil && errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
