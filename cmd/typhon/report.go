package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/x/ansi"

	"github.com/vito/typhon/pkg/checker"
)

var (
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1"))
	warningStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("3"))
	infoStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4"))
	ruleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	gutterStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Faint(true)
	locStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	caretStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	summaryStyle = lipgloss.NewStyle().Bold(true)
)

// report is the diagnostics of one run, ordered by path.
type report struct {
	// color keeps ANSI styling in text output.
	color   bool
	paths   []string
	diags   map[string][]*checker.Diagnostic
	sources map[string][]string
}

func newReport(prog *checker.Program, results map[string][]*checker.Diagnostic) *report {
	r := &report{
		diags:   results,
		sources: map[string][]string{},
	}
	for path := range results {
		r.paths = append(r.paths, path)
		if f := prog.File(path); f != nil {
			r.sources[path] = strings.Split(string(f.AST.Source), "\n")
		}
	}
	slices.Sort(r.paths)
	return r
}

// Count returns the number of diagnostics with the given severity.
func (r *report) Count(sev checker.Severity) int {
	n := 0
	for _, diags := range r.diags {
		for _, d := range diags {
			if d.Severity == sev {
				n++
			}
		}
	}
	return n
}

func (r *report) WriteText(w io.Writer) {
	for _, path := range r.paths {
		for _, d := range r.diags[path] {
			r.print(w, r.formatDiagnostic(d))
		}
	}
	errs := r.Count(checker.SeverityError)
	warnings := r.Count(checker.SeverityWarning)
	infos := r.Count(checker.SeverityInformation)
	r.print(w, summaryStyle.Render(fmt.Sprintf("%d %s, %d %s, %d %s in %d %s",
		errs, plural(errs, "error"),
		warnings, plural(warnings, "warning"),
		infos, plural(infos, "note"),
		len(r.paths), plural(len(r.paths), "file")))+"\n")
}

func (r *report) print(w io.Writer, s string) {
	if !r.color {
		s = ansi.Strip(s)
	}
	_, _ = io.WriteString(w, s)
}

// formatDiagnostic renders a diagnostic with the offending source line
// and a caret underline.
func (r *report) formatDiagnostic(d *checker.Diagnostic) string {
	var b strings.Builder

	header, rest, _ := strings.Cut(d.Message, "\n")
	fmt.Fprintf(&b, "%s %s %s\n", severityLabel(d.Severity), header, ruleStyle.Render("["+d.Kind.Rule()+"]"))
	if rest != "" {
		for _, line := range strings.Split(rest, "\n") {
			fmt.Fprintf(&b, "  %s\n", line)
		}
	}

	loc := d.Location
	if loc == nil {
		return b.String()
	}
	fmt.Fprintf(&b, "  %s\n", locStyle.Render(fmt.Sprintf("--> %s:%d:%d", loc.Filename, loc.Line, loc.Column)))

	lines := r.sources[loc.Filename]
	if loc.Line < 1 || loc.Line > len(lines) {
		return b.String()
	}
	text := lines[loc.Line-1]
	gutter := padLeft(fmt.Sprint(loc.Line), 4)
	fmt.Fprintf(&b, "%s\n", gutterStyle.Render(padLeft("", 4)+" |"))
	fmt.Fprintf(&b, "%s %s\n", gutterStyle.Render(gutter+" |"), text)

	width := loc.Length
	if loc.End != nil && loc.End.Line != loc.Line {
		width = len(text) - (loc.Column - 1)
	} else if loc.End != nil {
		width = loc.End.Column - loc.Column
	}
	col := min(max(loc.Column-1, 0), len(text))
	underline := strings.Repeat(" ", col) + caretStyle.Render(strings.Repeat("^", max(width, 1)))
	fmt.Fprintf(&b, "%s %s\n\n", gutterStyle.Render(padLeft("", 4)+" |"), underline)
	return b.String()
}

func severityLabel(sev checker.Severity) string {
	switch sev {
	case checker.SeverityWarning:
		return warningStyle.Render("warning:")
	case checker.SeverityInformation:
		return infoStyle.Render("note:")
	}
	return errorStyle.Render("error:")
}

type jsonDiagnostic struct {
	File      string `json:"file"`
	Line      int    `json:"line"`
	Column    int    `json:"column"`
	EndLine   int    `json:"endLine,omitempty"`
	EndColumn int    `json:"endColumn,omitempty"`
	Severity  string `json:"severity"`
	Rule      string `json:"rule"`
	Message   string `json:"message"`
}

type jsonReport struct {
	Diagnostics []jsonDiagnostic `json:"diagnostics"`
	Summary     map[string]int   `json:"summary"`
}

func (r *report) WriteJSON(w io.Writer) error {
	out := jsonReport{
		Diagnostics: []jsonDiagnostic{},
		Summary: map[string]int{
			"files":       len(r.paths),
			"errors":      r.Count(checker.SeverityError),
			"warnings":    r.Count(checker.SeverityWarning),
			"information": r.Count(checker.SeverityInformation),
		},
	}
	for _, path := range r.paths {
		for _, d := range r.diags[path] {
			jd := jsonDiagnostic{
				File:     path,
				Severity: d.Severity.String(),
				Rule:     d.Kind.Rule(),
				Message:  d.Message,
			}
			if loc := d.Location; loc != nil {
				jd.Line, jd.Column = loc.Line, loc.Column
				if loc.End != nil {
					jd.EndLine, jd.EndColumn = loc.End.Line, loc.End.Column
				}
			}
			out.Diagnostics = append(out.Diagnostics, jd)
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

func padLeft(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat(" ", width-len(s)) + s
}
