package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	api "github.com/aretw0/weave/pkg/adapters/http"
	"github.com/charmbracelet/glamour"
)

// NewRenderer returns a function that renders markdown using glamour.
// Without a terminal it returns the markdown unchanged.
func NewRenderer(tty bool) func(string) (string, error) {
	if !tty {
		return func(markdown string) (string, error) { return markdown, nil }
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
	)
	if err != nil {
		return func(markdown string) (string, error) { return markdown, nil }
	}
	return r.Render
}

// StatusMarkdown formats an orchestrator status as markdown tables.
func StatusMarkdown(s api.Status) string {
	var sb strings.Builder
	r := s.Report

	fmt.Fprintf(&sb, "# Platforms (%d/%d available)\n\n", r.Statistics.Available, r.Statistics.Total)
	sb.WriteString("| Platform | Type | Status | Last check | Last sync |\n")
	sb.WriteString("|---|---|---|---|---|\n")
	for _, id := range sortedKeys(r.Platforms) {
		p := r.Platforms[id]
		fmt.Fprintf(&sb, "| %s | %s | %s | %s | %s |\n", id, p.Type, p.Status, stamp(p.LastCheck), stamp(p.LastSync))
	}

	if len(s.Channels) > 0 {
		sb.WriteString("\n# Integrations\n\n")
		sb.WriteString("| Channel | Mode | Runs | Delivered | Errors | Last error |\n")
		sb.WriteString("|---|---|---|---|---|---|\n")
		for _, ch := range s.Channels {
			mode := "polling"
			if ch.Realtime {
				mode = "realtime"
			}
			fmt.Fprintf(&sb, "| %s | %s | %d | %d | %d | %s |\n", ch.Channel, mode, ch.Runs, ch.Delivered, ch.Errors, ch.LastError)
		}
	}

	if len(r.Synchronizers) > 0 {
		sb.WriteString("\n# Synchronizers\n\n")
		sb.WriteString("| Synchronizer | Strategy | Targets |\n")
		sb.WriteString("|---|---|---|\n")
		for _, id := range sortedKeys(r.Synchronizers) {
			syn := r.Synchronizers[id]
			fmt.Fprintf(&sb, "| %s | %s | %s |\n", id, syn.Strategy, strings.Join(syn.Targets, ", "))
		}
	}

	if len(s.Pipelines) > 0 {
		sb.WriteString("\n# Recent pipelines\n\n")
		sb.WriteString("| Platform | Environment | Status | Failed step |\n")
		sb.WriteString("|---|---|---|---|\n")
		for _, p := range s.Pipelines {
			fmt.Fprintf(&sb, "| %s | %s | %s | %s |\n", p.PlatformID, p.Environment, p.Status, p.FailedStep)
		}
	}

	if len(s.Compat) > 0 {
		sb.WriteString("\n# Dependency conflicts\n\n")
		for _, target := range sortedKeys(s.Compat) {
			for _, issue := range s.Compat[target] {
				fmt.Fprintf(&sb, "- **%s** `%s`: %s\n", target, issue.Package, issue.Reason)
			}
		}
	}
	return sb.String()
}

func stamp(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
