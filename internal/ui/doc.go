// Package ui styles terminal output for the CLI with [lipgloss].
//
// [Palette] holds the named styles. [Palette.Block] prints a titled set of aligned rows
// (used by the resolve command) and [Palette.Check] a pass/fail line (used by setup check).
//
// lipgloss detects the output's color profile, so piped output stays plain text.
package ui
