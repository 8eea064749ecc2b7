package shell

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/elijahnyp/lamp_controller/lamp"
)

const circleRadius = 5

var (
	onStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	offStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	titleStyle   = lipgloss.NewStyle().Bold(true)
	captionStyle = lipgloss.NewStyle().Faint(true)
)

// stateMsg carries a lamp value delivered by the state subscription.
type stateMsg struct {
	on bool
}

// closedMsg is sent once the subscription channel is closed.
type closedMsg struct{}

type Options struct {
	Title       string
	Initial     bool
	LocalToggle bool
	// OnToggle is called on a local toggle. It must not block.
	OnToggle func()
	// OnQuit is called once when the user closes the shell.
	OnQuit func()
}

// Model is the bubbletea model for the lamp window. It never reads the lamp
// state directly; every value arrives through the updates channel.
type Model struct {
	title       string
	on          bool
	updates     <-chan bool
	localToggle bool
	onToggle    func()
	onQuit      func()
	quitting    bool
}

func NewModel(updates <-chan bool, opts Options) Model {
	title := opts.Title
	if title == "" {
		title = "Lamp"
	}
	return Model{
		title:       title,
		on:          opts.Initial,
		updates:     updates,
		localToggle: opts.LocalToggle,
		onToggle:    opts.OnToggle,
		onQuit:      opts.OnQuit,
	}
}

func (m Model) On() bool { return m.on }

func (m Model) Init() tea.Cmd {
	if m.updates == nil {
		return nil
	}
	return listenForUpdate(m.updates)
}

// listenForUpdate blocks until the next lamp value arrives.
func listenForUpdate(ch <-chan bool) tea.Cmd {
	return func() tea.Msg {
		on, ok := <-ch
		if !ok {
			return closedMsg{}
		}
		return stateMsg{on: on}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case stateMsg:
		m.on = msg.on
		return m, listenForUpdate(m.updates)
	case closedMsg:
		m.quitting = true
		return m, tea.Quit
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.quitting = true
			if m.onQuit != nil {
				// shutdown waits on the program, so it cannot run inline
				go m.onQuit()
			}
			return m, tea.Quit
		case " ", "enter", "t":
			if m.localToggle && m.onToggle != nil {
				m.onToggle()
			}
		}
	}
	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	style := offStyle
	if m.on {
		style = onStyle
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n\n")
	for _, line := range circleLines(circleRadius) {
		b.WriteString(style.Render(line))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	caption := "OFF (" + lamp.Color(m.on) + ")"
	if m.on {
		caption = "ON (" + lamp.Color(m.on) + ")"
	}
	b.WriteString(caption)
	b.WriteString("\n")
	help := "q quit"
	if m.localToggle {
		help = "space toggle • q quit"
	}
	b.WriteString(captionStyle.Render(help))
	b.WriteString("\n")
	return b.String()
}

// circleLines draws a filled circle. Terminal cells are about twice as tall
// as they are wide, so each row is sampled with a doubled x scale.
func circleLines(r int) []string {
	lines := make([]string, 0, 2*r+1)
	for y := -r; y <= r; y++ {
		var row strings.Builder
		for x := -2 * r; x <= 2*r; x++ {
			fx := float64(x) / 2
			if fx*fx+float64(y*y) <= float64(r*r)+0.5 {
				row.WriteRune('█')
			} else {
				row.WriteRune(' ')
			}
		}
		lines = append(lines, strings.TrimRight(row.String(), " "))
	}
	return lines
}
