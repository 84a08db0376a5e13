package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/weave/pkg/domain"
)

// GraphOverlay contains dynamic state to visualize on the graph.
type GraphOverlay struct {
	// Highlight marks the platforms of a cascade, such as the reachable set of a change.
	Highlight []string
}

// GenerateMermaid produces a Mermaid flowchart of the dependency graph.
// Edges point from a platform to the platforms that depend on it.
// Node shapes follow the technology:
// - library: [[Subroutine]]
// - cloud: [(Database)]
// - default: [Rectangle]
// Platform status is applied as a class; the shared library is drawn as a circle.
func GenerateMermaid(platforms []domain.Platform, sharedLibrary string, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, p := range platforms {
		safeID := sanitizeMermaidID(p.ID)

		opener, closer := "[", "]"
		switch {
		case p.ID == sharedLibrary:
			opener, closer = "((", "))"
		case p.Technology == domain.TechLibrary:
			opener, closer = "[[", "]]"
		case p.Technology == domain.TechCloud:
			opener, closer = "[(", ")]"
		}
		sb.WriteString(fmt.Sprintf("    %s%s\"%s <br/> %s\"%s\n", safeID, opener, p.ID, p.Technology, closer))

		for _, dep := range p.Dependents {
			sb.WriteString(fmt.Sprintf("    %s --> %s\n", safeID, sanitizeMermaidID(dep)))
		}
	}

	sb.WriteString("\n    %% Status Styles\n")
	sb.WriteString("    classDef available fill:#e8f5e9,stroke:#2e7d32,color:#000;\n")
	sb.WriteString("    classDef unavailable fill:#eeeeee,stroke:#757575,stroke-dasharray:4,color:#000;\n")
	sb.WriteString("    classDef error fill:#ffebee,stroke:#c62828,color:#000;\n")
	for _, p := range platforms {
		switch p.Status {
		case domain.StatusAvailable, domain.StatusUnavailable, domain.StatusError:
			sb.WriteString(fmt.Sprintf("    class %s %s;\n", sanitizeMermaidID(p.ID), p.Status))
		}
	}

	if overlay != nil && len(overlay.Highlight) > 0 {
		sb.WriteString("    classDef cascade stroke:#fbc02d,stroke-width:4px;\n")
		seen := make(map[string]bool)
		for _, id := range overlay.Highlight {
			safeID := sanitizeMermaidID(id)
			if safeID != "" && !seen[safeID] {
				seen[safeID] = true
				sb.WriteString(fmt.Sprintf("    class %s cascade;\n", safeID))
			}
		}
	}

	return sb.String()
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	return s
}
