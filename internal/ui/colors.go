package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var styles = NewPalette("#7D56F4", "#04B575", "#FF0000", "#FFA500", "#626262")

// Styles returns the default palette.
func Styles() *Palette {
	return styles
}

// struct Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
	label lipgloss.Style
}

func NewPalette(t, s, e, w, h string) *Palette {
	return &Palette{
		title: NewBold(t).MarginBottom(1),
		ok:    NewBold(s),
		err:   NewBold(e),
		warn:  NewStyle(w),
		help:  NewEm(h),
		label: NewStyle(h).Width(labelWidth),
	}
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}

const labelWidth = 12

// Row is one label/value line of a [Palette.Block].
type Row struct {
	Label string
	Value string
}

// Block renders a title followed by aligned label/value rows. Rows with empty values are skipped.
func (p *Palette) Block(title string, rows ...Row) string {
	var b strings.Builder
	b.WriteString(p.title.Render(title))
	b.WriteString("\n")

	for _, row := range rows {
		if row.Value == "" {
			continue
		}
		b.WriteString(p.label.Render(row.Label))
		b.WriteString(row.Value)
		b.WriteString("\n")
	}
	return b.String()
}

// Check renders a pass/fail status line.
func (p *Palette) Check(name string, ok bool, detail string) string {
	mark := p.ok.Render("✓")
	if !ok {
		mark = p.err.Render("✗")
	}

	line := mark + " " + name
	if detail != "" {
		line += " " + p.help.Render(detail)
	}
	return line + "\n"
}

// Warn renders a warning line.
func (p *Palette) Warn(msg string) string {
	return p.warn.Render(msg) + "\n"
}
