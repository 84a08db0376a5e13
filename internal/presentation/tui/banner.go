package tui

import (
	"fmt"
	"io"

	"github.com/aretw0/weave/pkg/domain"
	"github.com/muesli/termenv"
)

// PrintBanner writes the weave banner and version.
func PrintBanner(w io.Writer, version string) {
	p := termenv.ColorProfile()
	lines := []struct {
		text  string
		color string
	}{
		{" __      _____  __ ___   _____ ", "#34d399"},
		{" \\ \\ /\\ / / _ \\/ _` \\ \\ / / _ \\", "#2dd4bf"},
		{"  \\ V  V /  __/ (_| |\\ V /  __/", "#22d3ee"},
		{"   \\_/\\_/ \\___|\\__,_| \\_/ \\___|", "#38bdf8"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w, termenv.String("   "+version).Faint())
	fmt.Fprintln(w)
}

// StatusBadge colours a platform status for terminal output.
func StatusBadge(s domain.Status) string {
	p := termenv.ColorProfile()
	out := termenv.String(string(s))
	switch s {
	case domain.StatusAvailable:
		out = out.Foreground(p.Color("#22c55e"))
	case domain.StatusUnavailable:
		out = out.Foreground(p.Color("#a3a3a3"))
	case domain.StatusError:
		out = out.Foreground(p.Color("#ef4444")).Bold()
	}
	return out.String()
}
