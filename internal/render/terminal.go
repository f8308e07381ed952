package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	numberStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("69"))
	exponentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	resultStyle   = lipgloss.NewStyle().Bold(true)
	introStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	rawStyle      = lipgloss.NewStyle().PaddingLeft(2)
)

// Terminal renders the transcript for a terminal, one numbered step per
// paragraph with continuation lines indented under the step text.
func (t Transcript) Terminal() string {
	if len(t.Steps) == 0 {
		return rawStyle.Render(t.Raw)
	}

	var b strings.Builder
	if t.Preamble != "" {
		b.WriteString(introStyle.Render(t.Preamble))
		b.WriteByte('\n')
	}
	for i, s := range t.Steps {
		if i > 0 {
			b.WriteByte('\n')
		}
		label := fmt.Sprintf("%d.", s.Number)
		indent := strings.Repeat(" ", len(label)+1)
		b.WriteString(numberStyle.Render(label))
		b.WriteByte(' ')
		for _, seg := range s.Segments {
			switch seg.Kind {
			case Exponent:
				b.WriteString(exponentStyle.Render(seg.Text))
			case Equality, Token:
				b.WriteString(resultStyle.Render(seg.Text))
			case Break:
				b.WriteString("\n" + indent)
			default:
				b.WriteString(seg.Text)
			}
		}
	}
	return b.String()
}
