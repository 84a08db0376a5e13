package graph_test

import (
	"strings"
	"testing"

	"github.com/aretw0/weave/internal/presentation/graph"
	"github.com/aretw0/weave/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestGenerateMermaid(t *testing.T) {
	platforms := []domain.Platform{
		{ID: "shared-lib", Technology: domain.TechLibrary, Dependents: []string{"web", "cloud"}, Status: domain.StatusAvailable},
		{ID: "web", Technology: domain.TechWeb, Status: domain.StatusError},
		{ID: "cloud", Technology: domain.TechCloud, Status: domain.StatusUnknown},
	}

	out := graph.GenerateMermaid(platforms, "shared-lib", nil)

	assert.True(t, strings.HasPrefix(out, "graph TD\n"))
	assert.Contains(t, out, `shared_lib(("shared-lib <br/> library"))`)
	assert.Contains(t, out, `cloud[("cloud <br/> cloud")]`)
	assert.Contains(t, out, `web["web <br/> web"]`)
	assert.Contains(t, out, "shared_lib --> web")
	assert.Contains(t, out, "shared_lib --> cloud")
	assert.Contains(t, out, "class shared_lib available;")
	assert.Contains(t, out, "class web error;")
	assert.NotContains(t, out, "class cloud")
	assert.NotContains(t, out, "classDef cascade")
}

func TestGenerateMermaid_Overlay(t *testing.T) {
	platforms := []domain.Platform{
		{ID: "lib", Technology: domain.TechLibrary, Dependents: []string{"app"}},
		{ID: "app", Technology: domain.TechDesktop},
	}

	out := graph.GenerateMermaid(platforms, "", &graph.GraphOverlay{Highlight: []string{"lib", "app", "lib"}})

	assert.Contains(t, out, `lib[["lib <br/> library"]]`)
	assert.Contains(t, out, "classDef cascade")
	assert.Equal(t, 1, strings.Count(out, "class lib cascade;"))
	assert.Contains(t, out, "class app cascade;")
}
