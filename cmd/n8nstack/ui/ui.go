package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Tone selects the color, and for status lines the glyph, of a piece of
// output.
type Tone uint8

const (
	Neutral Tone = iota
	Good
	Warn
	Bad
	Active
)

var tones = [...]struct {
	glyph string
	style lipgloss.Style
}{
	Neutral: {"-", lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "245", Dark: "243"})},
	Good:    {"✓", lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "28", Dark: "78"})},
	Warn:    {"!", lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "130", Dark: "214"})},
	Bad:     {"✗", lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "160", Dark: "203"})},
	// n8n's brand coral.
	Active: {"●", lipgloss.NewStyle().Foreground(lipgloss.Color("#EA4B71"))},
}

func (t Tone) Style() lipgloss.Style  { return tones[t].style }
func (t Tone) Render(s string) string { return tones[t].style.Render(s) }

// Line returns one status line, glyph first, without a trailing newline.
func Line(t Tone, format string, a ...any) string {
	return t.Render(tones[t].glyph) + " " + fmt.Sprintf(format, a...)
}

// Fields collects labelled values and renders them as an aligned block.
type Fields struct {
	indent string
	rows   [][2]string
}

func NewFields(indent string) *Fields {
	return &Fields{indent: indent}
}

func (f *Fields) Add(label, value string) *Fields {
	f.rows = append(f.rows, [2]string{label, value})
	return f
}

// String renders "label:  value" lines, each ending in a newline.
func (f *Fields) String() string {
	width := 0
	for _, r := range f.rows {
		width = max(width, len(r[0]))
	}
	var sb strings.Builder
	for _, r := range f.rows {
		label := fmt.Sprintf("%-*s", width+1, r[0]+":")
		sb.WriteString(f.indent + Neutral.Render(label) + " " + r[1] + "\n")
	}
	return sb.String()
}

// Commands renders shell commands for copy-paste, one per line.
func Commands(indent string, cmds []string) string {
	var sb strings.Builder
	for _, c := range cmds {
		sb.WriteString(indent + Neutral.Render("$") + " " + c + "\n")
	}
	return sb.String()
}

// Table renders rows under a ruled header, without outer borders so the
// output stays greppable.
func Table(headers []string, rows [][]string) string {
	cell := lipgloss.NewStyle().PaddingRight(2)
	header := cell.Bold(true).Foreground(tones[Active].style.GetForeground())

	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(Neutral.Style()).
		BorderTop(false).
		BorderBottom(false).
		BorderLeft(false).
		BorderRight(false).
		BorderColumn(false).
		BorderHeader(true).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		}).
		Headers(headers...).
		Rows(rows...).
		String()
}
