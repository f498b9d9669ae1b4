// Package ui formats command line output.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Banner is printed at the top of interactive commands
const Banner = `
  ┌──────────────────────────────────────────┐
  │  igdownloader  instagram media resolver  │
  └──────────────────────────────────────────┘
`

const (
	ProgressBar   = "█"
	ProgressEmpty = "░"
)

// Printer writes colored status lines
type Printer struct {
	out   io.Writer
	color bool
	quiet bool
}

// NewPrinter writes to out; color is enabled only when out is a terminal
func NewPrinter(out io.Writer) *Printer {
	color := false
	if f, ok := out.(*os.File); ok {
		color = term.IsTerminal(int(f.Fd()))
	}
	return &Printer{out: out, color: color}
}

// SetColor forces color on or off
func (p *Printer) SetColor(on bool) { p.color = on }

// SetQuiet suppresses everything except errors
func (p *Printer) SetQuiet(on bool) { p.quiet = on }

func (p *Printer) paint(code, text string) string {
	if !p.color {
		return text
	}
	return "\033[" + code + "m" + text + "\033[0m"
}

func (p *Printer) Cyan(s string) string    { return p.paint("36", s) }
func (p *Printer) Yellow(s string) string  { return p.paint("33", s) }
func (p *Printer) Red(s string) string     { return p.paint("31", s) }
func (p *Printer) Green(s string) string   { return p.paint("32", s) }
func (p *Printer) Magenta(s string) string { return p.paint("35", s) }
func (p *Printer) Dim(s string) string     { return p.paint("2", s) }

// Banner prints the banner
func (p *Printer) Banner() {
	if p.quiet {
		return
	}
	fmt.Fprint(p.out, p.Cyan(Banner))
}

// Error prints msg in red, with an optional detail
func (p *Printer) Error(msg string, detail ...interface{}) {
	fmt.Fprintln(p.out, p.Red(withDetail(msg, detail)))
}

// Warning prints msg in yellow, with an optional detail
func (p *Printer) Warning(msg string, detail ...interface{}) {
	if p.quiet {
		return
	}
	fmt.Fprintln(p.out, p.Yellow(withDetail(msg, detail)))
}

func (p *Printer) Success(msg string) {
	if p.quiet {
		return
	}
	fmt.Fprintln(p.out, p.Green(msg))
}

// Info prints a label: value pair
func (p *Printer) Info(label, value string) {
	if p.quiet {
		return
	}
	fmt.Fprintf(p.out, "%s: %s\n", p.Cyan(label), p.Yellow(value))
}

func (p *Printer) Highlight(msg string) {
	if p.quiet {
		return
	}
	fmt.Fprintln(p.out, p.Magenta(msg))
}

// Line prints raw text, ignoring quiet mode
func (p *Printer) Line(format string, args ...interface{}) {
	fmt.Fprintf(p.out, format+"\n", args...)
}

func withDetail(msg string, detail []interface{}) string {
	if len(detail) == 0 {
		return msg
	}
	return msg + ": " + fmt.Sprintf("%v", detail[0])
}

// Progress renders done/total as a fixed width bar
func Progress(done, total, width int) string {
	if width <= 0 {
		width = 20
	}
	filled := 0
	if total > 0 {
		filled = done * width / total
	}
	if filled > width {
		filled = width
	}
	return fmt.Sprintf("[%s%s] %d/%d",
		strings.Repeat(ProgressBar, filled),
		strings.Repeat(ProgressEmpty, width-filled),
		done, total)
}

// Truncate shortens s to max runes, marking the cut with "..."
func Truncate(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= max || max < 4 {
		return s
	}
	return string(r[:max-3]) + "..."
}
