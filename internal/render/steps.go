package render

import (
	"html"
	"regexp"
	"strconv"
	"strings"
)

// SegmentKind tells how a piece of step text is emphasized.
type SegmentKind int

const (
	Text SegmentKind = iota
	Exponent
	Equality
	Token
	Break
)

// Segment is a run of step text with a single emphasis.
type Segment struct {
	Kind SegmentKind
	Text string
}

// Step is one numbered step of a transcript.
type Step struct {
	Number   int
	Segments []Segment
}

// Transcript is a parsed solution. When Steps is empty the text had no
// markers and Raw is shown as a preformatted block.
type Transcript struct {
	Preamble string
	Steps    []Step
	Raw      string
}

var (
	markerRe   = regexp.MustCompile(`Step (\d+):`)
	emphasisRe = regexp.MustCompile(`(\d+\s*\^\s*\d+)|(=\s*\d+)|\b([0-9A-F]+)\b`)
)

// ParseSteps splits text at "Step <n>:" markers.
func ParseSteps(text string) Transcript {
	t := Transcript{Raw: text}
	locs := markerRe.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return t
	}

	t.Preamble = strings.TrimSpace(text[:locs[0][0]])
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		n, _ := strconv.Atoi(text[loc[2]:loc[3]])
		t.Steps = append(t.Steps, Step{
			Number:   n,
			Segments: emphasize(strings.TrimSpace(text[loc[1]:end])),
		})
	}
	return t
}

// FromLines builds a transcript from already separated steps, numbered from 1.
func FromLines(lines []string) Transcript {
	t := Transcript{Raw: strings.Join(lines, "\n")}
	for i, line := range lines {
		t.Steps = append(t.Steps, Step{Number: i + 1, Segments: emphasize(strings.TrimSpace(line))})
	}
	return t
}

func emphasize(body string) []Segment {
	var segs []Segment
	for i, line := range strings.Split(body, "\n") {
		if i > 0 {
			segs = append(segs, Segment{Kind: Break})
		}
		pos := 0
		for _, m := range emphasisRe.FindAllStringSubmatchIndex(line, -1) {
			if m[0] > pos {
				segs = append(segs, Segment{Kind: Text, Text: line[pos:m[0]]})
			}
			kind := Token
			switch {
			case m[2] >= 0:
				kind = Exponent
			case m[4] >= 0:
				kind = Equality
			}
			segs = append(segs, Segment{Kind: kind, Text: line[m[0]:m[1]]})
			pos = m[1]
		}
		if pos < len(line) {
			segs = append(segs, Segment{Kind: Text, Text: line[pos:]})
		}
	}
	return segs
}

// Emphasized returns the texts of all emphasized segments in order.
func (s Step) Emphasized() []string {
	var out []string
	for _, seg := range s.Segments {
		if seg.Kind == Exponent || seg.Kind == Equality || seg.Kind == Token {
			out = append(out, seg.Text)
		}
	}
	return out
}

// Plain returns the step text without emphasis.
func (s Step) Plain() string {
	var b strings.Builder
	for _, seg := range s.Segments {
		if seg.Kind == Break {
			b.WriteByte('\n')
			continue
		}
		b.WriteString(seg.Text)
	}
	return b.String()
}

// HTML renders the transcript as an ordered list, or a <pre> block when it
// has no steps. All text is escaped.
func (t Transcript) HTML() string {
	if len(t.Steps) == 0 {
		return `<pre class="solution">` + html.EscapeString(t.Raw) + `</pre>`
	}

	var b strings.Builder
	if t.Preamble != "" {
		b.WriteString(`<p class="solution-intro">`)
		b.WriteString(html.EscapeString(t.Preamble))
		b.WriteString(`</p>`)
	}
	b.WriteString(`<ol class="solution-steps">`)
	for _, s := range t.Steps {
		b.WriteString(`<li value="`)
		b.WriteString(strconv.Itoa(s.Number))
		b.WriteString(`">`)
		for _, seg := range s.Segments {
			text := html.EscapeString(seg.Text)
			switch seg.Kind {
			case Exponent:
				b.WriteString("<code>" + text + "</code>")
			case Equality, Token:
				b.WriteString("<b>" + text + "</b>")
			case Break:
				b.WriteString("<br>")
			default:
				b.WriteString(text)
			}
		}
		b.WriteString(`</li>`)
	}
	b.WriteString(`</ol>`)
	return b.String()
}

// SolutionHTML parses and renders a base-conversion solution in one call.
func SolutionHTML(text string) string {
	return ParseSteps(text).HTML()
}
