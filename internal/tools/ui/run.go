package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type actionMsg struct {
	details []string
	err     error
}

type model struct {
	title   string
	details []string
	err     error
	done    bool
	timeout time.Duration
	action  func(context.Context) ([]string, error)
}

func (m model) Init() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		details, err := m.action(ctx)
		return actionMsg{details: details, err: err}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case actionMsg:
		m.details = msg.details
		m.err = msg.err
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	keyStyle   = lipgloss.NewStyle().Faint(true)
)

// alertWords mark detail values an operator should notice.
var alertWords = []string{"missing", "locked", "inactive"}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n")
	switch {
	case !m.done:
		b.WriteString("\nRunning...\n")
		return b.String()
	case m.err != nil:
		fmt.Fprintf(&b, "%s: %v\n", failStyle.Render("FAILED"), m.err)
	default:
		b.WriteString(okStyle.Render("OK"))
		b.WriteString("\n")
	}
	b.WriteString(renderDetails(m.details))
	return b.String()
}

// renderDetails aligns "key: value" lines on the key column; other lines are
// printed as-is.
func renderDetails(details []string) string {
	width := 0
	for _, d := range details {
		if k, _, ok := strings.Cut(d, ": "); ok && len(k) > width {
			width = len(k)
		}
	}
	var b strings.Builder
	for _, d := range details {
		k, v, ok := strings.Cut(d, ": ")
		if !ok {
			b.WriteString("- " + d + "\n")
			continue
		}
		for _, w := range alertWords {
			if strings.Contains(v, w) {
				v = failStyle.Render(v)
				break
			}
		}
		fmt.Fprintf(&b, "- %s %s\n", keyStyle.Render(fmt.Sprintf("%-*s", width+1, k+":")), v)
	}
	return b.String()
}

// Run shows title while action runs, then prints its details.
func Run(title string, timeout time.Duration, action func(context.Context) ([]string, error)) ([]string, error) {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	m := model{title: title, timeout: timeout, action: action}
	p := tea.NewProgram(m)
	final, err := p.Run()
	if err != nil {
		return nil, err
	}
	res := final.(model)
	return res.details, res.err
}
