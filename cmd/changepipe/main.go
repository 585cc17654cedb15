package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sokinpui/changepipe/cli"
	"github.com/sokinpui/changepipe/internal/app"
	"github.com/sokinpui/changepipe/internal/tui"
	"github.com/sokinpui/changepipe/internal/ui"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := cli.ParseFlags()
	if err != nil {
		if errors.Is(err, cli.ErrHelp) {
			return 0
		}
		// The error has already been printed.
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		return 1
	}
	defer a.Close()

	// Flag-driven modes and non-terminal output skip the TUI.
	if !a.Interactive() {
		summary, err := a.Execute(ctx)
		if err != nil {
			if len(summary.Failed) > 0 {
				// The summary already carries the write error.
				ui.PrintUpdateSummary(summary)
				return 1
			}
			ui.Error("Error: %v", err)
			tui.PrintStack(err)
			return 1
		}
		ui.PrintUpdateSummary(summary)
		if len(summary.Failed) > 0 {
			return 1
		}
		return 0
	}

	model := tui.New(ctx, a)
	p := tea.NewProgram(model, tea.WithContext(ctx))
	if !cfg.NoAnimation {
		a.SetProgressCallback(func(done, total int) {
			p.Send(tui.ProgressMsg{Done: done, Total: total})
		})
	}
	final, err := p.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
		return 1
	}
	if m, ok := final.(tui.Model); ok && m.Err() != nil {
		tui.PrintStack(m.Err())
		return 1
	}
	return 0
}
