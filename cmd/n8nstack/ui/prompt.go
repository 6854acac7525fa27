package ui

import (
	"errors"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
)

// ErrCancelled is returned when the user aborts a prompt with ctrl+c or esc.
var ErrCancelled = errors.New("cancelled")

// NoInteractionError is returned when a prompt would be needed but output is
// not going to a person at a terminal.
type NoInteractionError struct {
	Hint string
}

func (e *NoInteractionError) Error() string {
	if e.Hint == "" {
		return "not running interactively"
	}
	return "not running interactively; " + e.Hint
}

// RequireInteraction fails with a *NoInteractionError carrying hint unless
// prompts can be shown.
func RequireInteraction(hint string) error {
	if IsInteractive() {
		return nil
	}
	return &NoInteractionError{Hint: hint}
}

// Confirm asks a yes/no question on stderr. Anything but y counts as no.
// bypassHint tells a non-interactive caller how to skip the question, e.g.
// "use --force".
func Confirm(question, bypassHint string) (bool, error) {
	if err := RequireInteraction(bypassHint); err != nil {
		return false, fmt.Errorf("confirmation required: %w", err)
	}
	return runConfirm(question, os.Stdin, os.Stderr)
}

func runConfirm(question string, in io.Reader, out io.Writer) (bool, error) {
	m := &confirmModel{question: question}
	p := tea.NewProgram(m, tea.WithInput(in), tea.WithOutput(out))
	if _, err := p.Run(); err != nil {
		return false, fmt.Errorf("confirm prompt: %w", err)
	}
	if m.cancelled {
		return false, ErrCancelled
	}
	return m.confirmed, nil
}

type confirmModel struct {
	question  string
	confirmed bool
	cancelled bool
	answered  bool
}

func (m *confirmModel) Init() tea.Cmd { return nil }

func (m *confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "y", "Y":
		m.confirmed, m.answered = true, true
		return m, tea.Quit
	case "n", "N", "enter":
		m.answered = true
		return m, tea.Quit
	case "ctrl+c", "esc":
		m.cancelled = true
		return m, tea.Quit
	}
	return m, nil
}

func (m *confirmModel) View() string {
	if m.answered || m.cancelled {
		return ""
	}
	return Warn.Render("?") + " " + m.question + " " + Neutral.Render("[y/N]") + " "
}
