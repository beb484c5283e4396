package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/term"
)

// defaultTextWidth is used for request text when output is not a terminal.
const defaultTextWidth = 50

// textWidth sizes the free-text column to the terminal. fixed is the width
// taken by the other columns.
func textWidth(out io.Writer, fixed int) int {
	f, ok := out.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return defaultTextWidth
	}
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil || w-fixed < 20 {
		return defaultTextWidth
	}
	return w - fixed
}

// truncate shortens s to max runes, adding "..." if truncated.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

// formatAge renders how long ago t was, coarsely.
func formatAge(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
