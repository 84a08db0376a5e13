package propagate

import (
	"bytes"
	"os"
	"strings"

	"github.com/aretw0/weave/pkg/domain"
)

// CommonEnv are the variables every platform receives regardless of technology.
var CommonEnv = []string{"NODE_ENV", "API_URL", "API_BASE_URL", "LOG_LEVEL", "APP_VERSION"}

// SystemEnv are inherited by child processes so that shells and toolchains work.
var SystemEnv = []string{"PATH", "HOME", "USER", "SHELL", "TMPDIR", "LANG", "TERM"}

// Allowed reports whether a variable may be propagated to a platform of the given technology.
func Allowed(name string, tech domain.Technology) bool {
	for _, k := range CommonEnv {
		if name == k {
			return true
		}
	}
	prefix := tech.EnvPrefix()
	return prefix != "" && strings.HasPrefix(name, prefix)
}

// FilterEnv keeps the KEY=VALUE entries allowed for tech.
func FilterEnv(env []string, tech domain.Technology) []string {
	var out []string
	for _, kv := range env {
		name, _, ok := strings.Cut(kv, "=")
		if ok && Allowed(name, tech) {
			out = append(out, kv)
		}
	}
	return out
}

// EnvFor returns the orchestrator's own environment filtered for the platform.
func EnvFor(p domain.Platform) []string {
	return FilterEnv(os.Environ(), p.Technology)
}

// FilterDotenv rewrites the content of a .env file keeping only the assignments
// allowed for tech. Comments and blank lines are dropped. Lines of any length
// are kept whole.
func FilterDotenv(content []byte, tech domain.Technology) []byte {
	var buf bytes.Buffer
	for raw := range bytes.Lines(content) {
		line := strings.TrimSpace(string(raw))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		assignment := strings.TrimPrefix(line, "export ")
		name, _, ok := strings.Cut(assignment, "=")
		if !ok || !Allowed(strings.TrimSpace(name), tech) {
			continue
		}
		buf.WriteString(assignment)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func isDotenv(path string) bool {
	base := path
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		base = path[i+1:]
	}
	return base == ".env" || strings.HasPrefix(base, ".env.")
}
