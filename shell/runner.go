package shell

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/elijahnyp/lamp_controller/lamp"
	"github.com/elijahnyp/lamp_controller/util"
)

// Interactive reports whether stdin and stdout are terminals.
func Interactive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// RunTUI shows the lamp window until the user quits, the updates channel is
// closed or stop is closed.
func RunTUI(m Model, stop <-chan struct{}) error {
	program := tea.NewProgram(m, tea.WithAltScreen())
	go func() {
		<-stop
		program.Quit()
	}()
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("lamp shell: %w", err)
	}
	return nil
}

// RunHeadless logs each lamp change until stop is closed or the updates
// channel is closed.
func RunHeadless(updates <-chan bool, stop <-chan struct{}) {
	util.Logger.Info().Msg("running headless")
	for {
		select {
		case <-stop:
			return
		case on, ok := <-updates:
			if !ok {
				return
			}
			util.Logger.Info().Msgf("lamp is now %s", lamp.Color(on))
		}
	}
}
