package propagate_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aretw0/weave/pkg/domain"
	"github.com/aretw0/weave/pkg/propagate"
	"github.com/aretw0/weave/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterDotenv(t *testing.T) {
	content := []byte(`# shared settings
NODE_ENV=production
API_URL=https://api.example.com
export VITE_TITLE=Weave
EXPO_PUBLIC_KEY=abc
DATABASE_PASSWORD=secret

ELECTRON_UPDATE=1
`)

	web := string(propagate.FilterDotenv(content, domain.TechWeb))
	assert.Equal(t, "NODE_ENV=production\nAPI_URL=https://api.example.com\nVITE_TITLE=Weave\n", web)

	mobile := string(propagate.FilterDotenv(content, domain.TechMobile))
	assert.Contains(t, mobile, "EXPO_PUBLIC_KEY=abc")
	assert.NotContains(t, mobile, "VITE_")
	assert.NotContains(t, mobile, "DATABASE_PASSWORD")

	lib := string(propagate.FilterDotenv(content, domain.TechLibrary))
	assert.Equal(t, "NODE_ENV=production\nAPI_URL=https://api.example.com\n", lib)
}

func TestFilterDotenv_LongLines(t *testing.T) {
	cert := strings.Repeat("A", 200*1024)
	content := []byte("VITE_CERT=" + cert + "\nAPI_URL=https://api.example.com\nLOG_LEVEL=warn")

	web := string(propagate.FilterDotenv(content, domain.TechWeb))
	assert.Equal(t, "VITE_CERT="+cert+"\nAPI_URL=https://api.example.com\nLOG_LEVEL=warn\n", web)
}

func TestFilterEnv(t *testing.T) {
	env := []string{"PATH=/bin", "LOG_LEVEL=debug", "CLOUD_REGION=eu", "EXT_ID=42", "APP_VERSION=1.2.0"}
	assert.Equal(t, []string{"LOG_LEVEL=debug", "CLOUD_REGION=eu", "APP_VERSION=1.2.0"}, propagate.FilterEnv(env, domain.TechCloud))
	assert.Equal(t, []string{"LOG_LEVEL=debug", "EXT_ID=42", "APP_VERSION=1.2.0"}, propagate.FilterEnv(env, domain.TechExtension))
}

type fixture struct {
	root   string
	shared string
	reg    *registry.Registry
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	root := t.TempDir()
	f := fixture{root: root, shared: filepath.Join(root, "shared")}
	for _, dir := range []string{"shared/config", "shared/assets/img", "web", "mobile"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, dir), 0755))
	}
	reg, err := registry.New([]domain.Platform{
		{ID: "web", Technology: domain.TechWeb, Dir: filepath.Join(root, "web")},
		{ID: "mobile", Technology: domain.TechMobile, Dir: filepath.Join(root, "mobile")},
		{ID: "cloud", Technology: domain.TechCloud, Dir: filepath.Join(root, "cloud")},
	})
	require.NoError(t, err)
	f.reg = reg
	return f
}

func (f fixture) write(t *testing.T, rel, content string) string {
	t.Helper()
	path := filepath.Join(f.root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func batchFor(path string, kind domain.ChangeKind) domain.ChangeBatch {
	return domain.ChangeBatch{
		Path:   filepath.ToSlash(path),
		Events: []domain.ChangeEvent{{Kind: kind, Path: filepath.ToSlash(path)}},
	}
}

func TestCopyHandler(t *testing.T) {
	f := newFixture(t)
	s := domain.Synchronizer{
		ID:         "assets",
		WatchPaths: []string{filepath.ToSlash(f.shared) + "/assets/**"},
		Targets:    []string{"web", "mobile"},
		Strategy:   domain.StrategyCopy,
		Dest:       "public",
	}
	h := propagate.NewCopyHandler(s, f.reg, nil)
	ctx := context.Background()

	src := f.write(t, "shared/assets/img/logo.svg", "<svg/>")
	require.NoError(t, h.Handle(ctx, batchFor(src, domain.ChangeAdd)))

	for _, target := range []string{"web", "mobile"} {
		data, err := os.ReadFile(filepath.Join(f.root, target, "public", "img", "logo.svg"))
		require.NoError(t, err)
		assert.Equal(t, "<svg/>", string(data))
	}

	require.NoError(t, os.Remove(src))
	require.NoError(t, h.Handle(ctx, batchFor(src, domain.ChangeDelete)))
	_, err := os.Stat(filepath.Join(f.root, "web", "public", "img", "logo.svg"))
	assert.True(t, os.IsNotExist(err))
}

func TestCopyHandler_PartialFailure(t *testing.T) {
	f := newFixture(t)
	s := domain.Synchronizer{
		ID:         "assets",
		WatchPaths: []string{filepath.ToSlash(f.shared) + "/assets/**"},
		Targets:    []string{"cloud", "web"},
		Strategy:   domain.StrategyCopy,
	}
	src := f.write(t, "shared/assets/font.woff", "font")

	err := propagate.NewCopyHandler(s, f.reg, nil).Handle(context.Background(), batchFor(src, domain.ChangeModify))
	require.Error(t, err, "cloud has no directory")
	assert.Contains(t, err.Error(), "cloud")

	_, statErr := os.Stat(filepath.Join(f.root, "web", "font.woff"))
	assert.NoError(t, statErr, "web still receives the file")
}

func TestMergeHandler_FiltersDotenv(t *testing.T) {
	f := newFixture(t)
	s := domain.Synchronizer{
		ID:         "config",
		WatchPaths: []string{filepath.ToSlash(f.shared) + "/config/**"},
		Targets:    []string{"web", "mobile"},
		Strategy:   domain.StrategyMerge,
	}
	src := f.write(t, "shared/config/.env", "API_URL=http://api\nVITE_A=1\nEXPO_B=2\nSECRET=x\n")

	require.NoError(t, propagate.NewMergeHandler(s, f.reg, nil).Handle(context.Background(), batchFor(src, domain.ChangeModify)))

	web, err := os.ReadFile(filepath.Join(f.root, "web", ".env"))
	require.NoError(t, err)
	assert.Equal(t, "API_URL=http://api\nVITE_A=1\n", string(web))

	mobile, err := os.ReadFile(filepath.Join(f.root, "mobile", ".env"))
	require.NoError(t, err)
	assert.Equal(t, "API_URL=http://api\nEXPO_B=2\n", string(mobile))
}

func TestCheckCompat(t *testing.T) {
	shared := propagate.Manifest{
		Name:             "@acme/shared",
		Version:          "2.3.0",
		PeerDependencies: map[string]string{"react": "^18.0.0"},
		Dependencies:     map[string]string{"axios": "^1.4.0", "zod": "workspace:*"},
	}

	t.Run("Compatible", func(t *testing.T) {
		target := propagate.Manifest{Dependencies: map[string]string{
			"@acme/shared": "^2.0.0",
			"react":        "^18.2.0",
			"axios":        "~1.6.0",
			"zod":          "3.x",
		}}
		assert.Empty(t, propagate.CheckCompat(shared, target))
	})

	t.Run("Incompatible", func(t *testing.T) {
		target := propagate.Manifest{
			Dependencies:    map[string]string{"@acme/shared": "^1.0.0"},
			DevDependencies: map[string]string{"react": "^17.0.2"},
		}
		issues := propagate.CheckCompat(shared, target)
		require.Len(t, issues, 2)
		assert.Equal(t, "@acme/shared", issues[0].Package)
		assert.Equal(t, "react", issues[1].Package)
	})
}

func TestCompatHandler(t *testing.T) {
	f := newFixture(t)
	manifest := f.write(t, "shared/package.json", `{"name":"@acme/shared","version":"2.0.0"}`)
	f.write(t, "web/package.json", `{"dependencies":{"@acme/shared":"^1.0.0"}}`)

	s := domain.Synchronizer{
		ID:         "dependencies",
		WatchPaths: []string{filepath.ToSlash(manifest)},
		Targets:    []string{"web", "mobile"},
		Strategy:   domain.StrategyCompat,
	}
	reports := map[string][]propagate.Incompatibility{}
	h := propagate.NewCompatHandler(s, f.reg, nil, func(target string, issues []propagate.Incompatibility) {
		reports[target] = issues
	})

	require.NoError(t, h.Handle(context.Background(), batchFor(manifest, domain.ChangeModify)))
	require.Len(t, reports["web"], 1)
	_, checked := reports["mobile"]
	assert.False(t, checked, "mobile has no manifest and is only warned about")
}

type fakeCascader struct {
	origins []string
	err     error
}

func (c *fakeCascader) Cascade(_ context.Context, origin string) ([]string, error) {
	c.origins = append(c.origins, origin)
	return []string{origin}, c.err
}

func TestFor(t *testing.T) {
	cascader := &fakeCascader{err: errors.New("build failed")}
	deps := propagate.Deps{SharedLibrary: "lib", Cascader: cascader}

	h, err := propagate.For(domain.Synchronizer{ID: "code", Strategy: domain.StrategyCascade}, deps)
	require.NoError(t, err)
	err = h.Handle(context.Background(), domain.ChangeBatch{Path: "shared/src/a.ts"})
	assert.Error(t, err)
	assert.Equal(t, []string{"lib"}, cascader.origins)

	_, err = propagate.For(domain.Synchronizer{ID: "code", Strategy: domain.StrategyCascade}, propagate.Deps{})
	assert.ErrorIs(t, err, domain.ErrConfig)

	_, err = propagate.For(domain.Synchronizer{ID: "x", Strategy: "teleport"}, deps)
	assert.ErrorIs(t, err, domain.ErrConfig)
}
