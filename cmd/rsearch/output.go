package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/kk-code-lab/rsearch/internal/search"
	"github.com/kk-code-lab/rsearch/internal/textutil"
)

// printer writes results in grep's format: "path:line:text" for matches,
// "path-line-text" for context and "path:count" in count mode. The first
// write error is kept in err and later writes are dropped.
type printer struct {
	w   io.Writer
	err error

	path   *color.Color
	lineNo *color.Color
	dir    *color.Color
}

func newPrinter(w io.Writer, useColor bool) *printer {
	p := &printer{
		w:      w,
		path:   color.New(color.FgMagenta),
		lineNo: color.New(color.FgGreen),
		dir:    color.New(color.FgBlue, color.Bold),
	}
	for _, c := range []*color.Color{p.path, p.lineNo, p.dir} {
		if useColor {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func (p *printer) line(path string, number int, sep, text string) {
	p.printf("%s%s%s%s%s\n", p.path.Sprint(path), sep, p.lineNo.Sprint(number), sep, textutil.SanitizeLine(text))
}

// matches prints content-mode matches. With context, groups of lines that
// are not adjacent are separated by "--".
func (p *printer) matches(matches []search.Match, display func(string) string, grouped bool) {
	lastPath, lastLine := "", 0
	for _, m := range matches {
		path := display(m.Path)
		first := m.LineNumber
		if len(m.ContextBefore) > 0 {
			first = m.ContextBefore[0].LineNumber
		}
		if grouped && lastPath != "" && (path != lastPath || first > lastLine+1) {
			p.printf("--\n")
		}

		for _, c := range m.ContextBefore {
			p.line(path, c.LineNumber, "-", c.Line)
		}
		spanned := strings.Split(m.Line, "\n")
		for i, text := range spanned {
			p.line(path, m.LineNumber+i, ":", text)
		}
		lastLine = m.LineNumber + len(spanned) - 1
		for _, c := range m.ContextAfter {
			p.line(path, c.LineNumber, "-", c.Line)
			lastLine = c.LineNumber
		}
		lastPath = path
	}
}

func (p *printer) counts(matches []search.Match, display func(string) string) {
	for _, m := range matches {
		p.printf("%s:%d\n", p.path.Sprint(display(m.Path)), m.MatchCount)
	}
}

func (p *printer) paths(found []search.FoundPath) {
	for _, f := range found {
		text := textutil.SanitizeLine(f.Path)
		if f.IsDirectory {
			text = p.dir.Sprint(text)
		}
		p.printf("%s\n", text)
	}
}

func parsePositiveDuration(value string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %s", d)
	}
	return d, nil
}
