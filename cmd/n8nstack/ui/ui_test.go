package ui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func TestFieldsAlignValues(t *testing.T) {
	ConfigureInteraction(true)

	got := NewFields("  ").Add("key", "abc").Add("source", "file").String()
	want := "  key:    abc\n  source: file\n"
	if got != want {
		t.Fatalf("Fields.String() = %q, want %q", got, want)
	}
}

func TestLineAndCommands(t *testing.T) {
	ConfigureInteraction(true)

	if got := Line(Good, "saved %d", 2); got != "✓ saved 2" {
		t.Fatalf("Line() = %q", got)
	}
	if got := Commands("  ", []string{"sudo chown -R 1000:1000 /srv"}); got != "  $ sudo chown -R 1000:1000 /srv\n" {
		t.Fatalf("Commands() = %q", got)
	}
}

func TestTableHasNoOuterBorder(t *testing.T) {
	ConfigureInteraction(true)

	out := Table([]string{"ID", "NAME"}, [][]string{{"a1", "Alpha"}})
	if strings.ContainsAny(out, "│┌┐└┘") {
		t.Fatalf("Table() has outer or column borders:\n%s", out)
	}
	lines := strings.Split(out, "\n")
	if !strings.HasPrefix(lines[0], "ID") || !strings.Contains(out, "─") || !strings.Contains(out, "Alpha") {
		t.Fatalf("Table() = %q, want header, rule and row", out)
	}
}

func TestRequireInteraction(t *testing.T) {
	ConfigureInteraction(true)

	err := RequireInteraction("use --force")
	var nie *NoInteractionError
	if !errors.As(err, &nie) || !strings.Contains(err.Error(), "use --force") {
		t.Fatalf("RequireInteraction() error = %v, want NoInteractionError with hint", err)
	}
	if _, err := Confirm("delete?", "use --force"); !errors.As(err, &nie) {
		t.Fatalf("Confirm() error = %v, want NoInteractionError", err)
	}
}

func TestConfirmModelKeys(t *testing.T) {
	tests := []struct {
		key                  string
		confirmed, cancelled bool
	}{
		{"y", true, false},
		{"n", false, false},
		{"enter", false, false},
		{"esc", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			m := &confirmModel{question: "delete?"}
			var msg tea.KeyMsg
			switch tt.key {
			case "enter":
				msg = tea.KeyMsg{Type: tea.KeyEnter}
			case "esc":
				msg = tea.KeyMsg{Type: tea.KeyEsc}
			default:
				msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(tt.key)}
			}
			_, cmd := m.Update(msg)
			if cmd == nil {
				t.Fatal("Update() did not quit")
			}
			if m.confirmed != tt.confirmed || m.cancelled != tt.cancelled {
				t.Fatalf("confirmed=%v cancelled=%v, want %v %v", m.confirmed, m.cancelled, tt.confirmed, tt.cancelled)
			}
			if m.View() != "" {
				t.Fatalf("View() after answer = %q, want empty", m.View())
			}
		})
	}
}
