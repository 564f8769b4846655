package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// printer writes aligned, optionally colored tables.
type printer struct {
	out   io.Writer
	width int

	header *color.Color
	key    *color.Color
	value  *color.Color
	dim    *color.Color
	warn   *color.Color
}

// newPrinter enables color only for terminals, unless noColor or NO_COLOR
// says otherwise. The terminal width bounds the widest column.
func newPrinter(out io.Writer, noColor bool) *printer {
	p := &printer{
		out:    out,
		header: color.New(color.FgHiWhite, color.Bold),
		key:    color.New(color.FgCyan),
		value:  color.New(color.FgGreen),
		dim:    color.New(color.FgHiBlack),
		warn:   color.New(color.FgYellow),
	}

	enabled := false

	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		enabled = !noColor && os.Getenv("NO_COLOR") == ""

		if w, _, err := term.GetSize(int(f.Fd())); err == nil {
			p.width = w
		}
	}

	for _, c := range []*color.Color{p.header, p.key, p.value, p.dim, p.warn} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}

	return p
}

// table prints rows under headers. Column styles apply per column index;
// the last column is right-aligned. The widest column is cut to fit the
// terminal.
func (p *printer) table(headers []string, rows [][]string, styles []*color.Color) {
	widths := make([]int, len(headers))

	for i, h := range headers {
		widths[i] = utf8.RuneCountInString(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], utf8.RuneCountInString(cell))
		}
	}

	p.fit(widths)

	line := func(cells []string, style func(i int) *color.Color) {
		parts := make([]string, len(cells))

		for i, cell := range cells {
			cell = clip(cell, widths[i])

			pad := strings.Repeat(" ", widths[i]-utf8.RuneCountInString(cell))
			if i == len(cells)-1 {
				cell = pad + cell
			} else {
				cell += pad
			}

			parts[i] = style(i).Sprint(cell)
		}

		fmt.Fprintln(p.out, strings.Join(parts, "  "))
	}

	line(headers, func(int) *color.Color { return p.header })

	for _, row := range rows {
		line(row, func(i int) *color.Color {
			if i < len(styles) && styles[i] != nil {
				return styles[i]
			}

			return p.dim
		})
	}
}

func (p *printer) fit(widths []int) {
	if p.width <= 0 {
		return
	}

	total := 2 * (len(widths) - 1)
	widest := 0

	for i, w := range widths {
		total += w
		if w > widths[widest] {
			widest = i
		}
	}

	if over := total - p.width; over > 0 {
		widths[widest] = max(8, widths[widest]-over)
	}
}

func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}

	r := []rune(s)
	if n <= 1 {
		return string(r[:n])
	}

	return string(r[:n-1]) + "…"
}
