// Package ui holds terminal styling shared by the boardsync commands.
//
// Colors are dropped automatically when stdout is not a terminal or when
// NO_COLOR is set, so piped output stays plain.
package ui

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/peak-flow/boardsync/internal/board/schema"
)

var (
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#1f6feb", Dark: "#58a6ff"}).Bold(true)
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#1a7f37", Dark: "#3fb950"})
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#9a6700", Dark: "#d29922"})
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#cf222e", Dark: "#f85149"}).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#6e7781", Dark: "#8b949e"})
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

func init() {
	if !IsTerminal() || os.Getenv("NO_COLOR") != "" {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// IsTerminal reports whether stdout is attached to a terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// Width returns the terminal width, or 80 when it cannot be determined.
func Width() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

func RenderAccent(s string) string { return accentStyle.Render(s) }
func RenderPass(s string) string   { return passStyle.Render(s) }
func RenderWarn(s string) string   { return warnStyle.Render(s) }
func RenderFail(s string) string   { return failStyle.Render(s) }
func RenderMuted(s string) string  { return mutedStyle.Render(s) }
func RenderHeader(s string) string { return headerStyle.Render(s) }

// RenderBox draws s inside a rounded border.
func RenderBox(s string) string { return boxStyle.Render(s) }

// RenderState colors a sync state for listings.
func RenderState(state schema.SyncState) string {
	switch state {
	case schema.Clean:
		return RenderPass(state.String())
	case schema.Dirty, schema.Syncing:
		return RenderWarn(state.String())
	case schema.Conflict, schema.Failed:
		return RenderFail(state.String())
	default:
		return state.String()
	}
}

// RenderLabel colors a sync status label (offline, syncing, pending, synced).
func RenderLabel(label string) string {
	switch label {
	case "synced":
		return RenderPass(label)
	case "offline":
		return RenderFail(label)
	default:
		return RenderWarn(label)
	}
}

// Columns renders blocks side by side, each padded to width.
func Columns(width int, blocks ...string) string {
	styled := make([]string, len(blocks))
	col := lipgloss.NewStyle().Width(width).MarginRight(2)
	for i, b := range blocks {
		styled[i] = col.Render(b)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, styled...)
}

// Truncate shortens s to n runes with an ellipsis.
func Truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}

// KeyValue formats aligned "key: value" lines.
func KeyValue(pairs ...string) string {
	width := 0
	for i := 0; i < len(pairs); i += 2 {
		if len(pairs[i]) > width {
			width = len(pairs[i])
		}
	}
	var b strings.Builder
	for i := 0; i+1 < len(pairs); i += 2 {
		fmt.Fprintf(&b, "   %-*s  %s\n", width+1, pairs[i]+":", pairs[i+1])
	}
	return b.String()
}
