package ignore

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatch_BuiltinDirs(t *testing.T) {
	rs := Compile(nil, nil)

	assert.True(t, rs.Match("node_modules/react/index.js"))
	assert.True(t, rs.Match(".git/HEAD"))
	assert.True(t, rs.Match("src/__pycache__/mod.pyc"))
	assert.True(t, rs.Match("vendor/lib/lib.go"))

	assert.False(t, rs.Match("src/main.py"))
	assert.False(t, rs.Match("README.md"))
}

func TestMatch_BuiltinExtensions(t *testing.T) {
	rs := Compile(nil, nil)

	assert.True(t, rs.Match("assets/logo.png"))
	assert.True(t, rs.Match("docs/manual.pdf"))
	assert.True(t, rs.Match("release.tar"))
	assert.False(t, rs.Match("main.go"))
}

func TestMatch_ComponentAwareNotSubstring(t *testing.T) {
	rs := Compile(nil, nil)

	// "log" is a directory rule; it must not match names containing it.
	assert.False(t, rs.Match("src/logger.py"))
	assert.False(t, rs.Match("catalog/items.go"))
	assert.True(t, rs.Match("log/app.txt"))

	// A file literally named like a directory pattern is not a directory match.
	assert.False(t, rs.Match("build"))
	assert.True(t, rs.Match("build/out.js"))
}

func TestMatch_Idempotent(t *testing.T) {
	rs := Compile([]string{"*.gen.go"}, nil)
	paths := []string{"a/main.go", "a/b.gen.go", "dist/x.js", "README.md"}

	filter := func(in []string) []string {
		var out []string
		for _, p := range in {
			if !rs.Match(p) {
				out = append(out, p)
			}
		}
		return out
	}

	once := filter(paths)
	twice := filter(once)
	assert.Equal(t, once, twice)
	assert.Equal(t, []string{"a/main.go", "README.md"}, once)
}

func TestMatch_AllowOverrides(t *testing.T) {
	rs := Compile(nil, []string{"*.png"})
	assert.False(t, rs.Match("assets/logo.png"))
	assert.True(t, rs.Match("assets/logo.jpg"))
}

func TestLoadRepoRules(t *testing.T) {
	root := t.TempDir()
	gitignore := "# comment\n\nsecrets.txt\nout/\n!kept.txt\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"), []byte(gitignore), 0600))

	rs := Compile(nil, nil)
	rs.LoadRepoRules(root, slog.Default())

	assert.True(t, rs.Match("secrets.txt"))
	assert.True(t, rs.Match("a/secrets.txt"))
	assert.True(t, rs.Match("out/bundle.js"))
	// Negation patterns are dropped, not honored.
	assert.False(t, rs.Match("kept.txt"))
}

func TestLoadRepoRules_MissingFileIsFine(t *testing.T) {
	rs := Compile(nil, nil)
	rs.LoadRepoRules(t.TempDir(), slog.Default())
	assert.False(t, rs.Match("main.go"))
}

func TestMatchDir(t *testing.T) {
	rs := Compile(nil, nil)
	assert.True(t, rs.MatchDir("node_modules"))
	assert.True(t, rs.MatchDir("src/node_modules"))
	assert.False(t, rs.MatchDir("src"))
}

func TestMatchDir_AllowKeepsDirectoryWalkable(t *testing.T) {
	// A path allow pattern keeps its own prefix directories open, and only
	// those; the allowed file is rescued while siblings stay ignored.
	rs := Compile(nil, []string{"vendor/lib/keep.go"})

	assert.False(t, rs.MatchDir("vendor"))
	assert.False(t, rs.MatchDir("vendor/lib"))
	assert.True(t, rs.MatchDir("vendor/other"))
	assert.True(t, rs.MatchDir("node_modules"))

	assert.False(t, rs.Match("vendor/lib/keep.go"))
	assert.True(t, rs.Match("vendor/lib/other.go"))
}

func TestMatchDir_BasenameAllowKeepsEverythingWalkable(t *testing.T) {
	rs := Compile(nil, []string{"*.proto"})

	assert.False(t, rs.MatchDir("node_modules"))
	assert.False(t, rs.Match("node_modules/schema.proto"))
	assert.True(t, rs.Match("node_modules/index.js"))
}

func TestMatch_GlobOnFullPath(t *testing.T) {
	rs := Compile([]string{"cmd/*.md"}, nil)
	assert.True(t, rs.Match("cmd/NOTES.md"))
	assert.False(t, rs.Match("docs/NOTES.md"))
}
