package rank

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/promptpack/internal/errors"
	"github.com/hpungsan/promptpack/internal/ignore"
	"github.com/hpungsan/promptpack/internal/scan"
	"github.com/hpungsan/promptpack/internal/vector"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// snapshotFor writes the given rel->content files into a temp dir and scans it.
func snapshotFor(t *testing.T, files map[string]string) *scan.Snapshot {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	rules := ignore.Compile(nil, nil)
	snap, err := scan.Walk(root, rules)
	require.NoError(t, err)
	return snap
}

func TestRuleStrategy_EntryBeatsTest(t *testing.T) {
	snap := snapshotFor(t, map[string]string{
		"a/main.py":      "print('hi')",
		"a/test_main.py": "assert True",
	})

	ranking, err := NewRuleStrategy().Rank(context.Background(), snap)
	require.NoError(t, err)
	require.Len(t, ranking, 2)
	assert.Equal(t, "a/main.py", ranking[0].Path)
	assert.Equal(t, "a/test_main.py", ranking[1].Path)
	assert.Greater(t, ranking[0].Score, ranking[1].Score)
}

func TestRuleStrategy_DropsAssets(t *testing.T) {
	// Images never survive the scan, and style sheets never survive ranking.
	snap := snapshotFor(t, map[string]string{
		"a/main.py":       "print('hi')",
		"assets/logo.png": "fakepng",
		"web/style.css":   "body {}",
	})
	assert.False(t, snap.Contains("assets/logo.png"))

	ranking, err := NewRuleStrategy().Rank(context.Background(), snap)
	require.NoError(t, err)
	for _, c := range ranking {
		assert.NotEqual(t, "assets/logo.png", c.Path)
		assert.NotEqual(t, "web/style.css", c.Path)
	}
}

func TestWeight(t *testing.T) {
	cases := map[string]int{
		"main.go":           weightEntry,
		"cmd/tool/root.go":  weightEntry,
		"src/index.ts":      weightEntry,
		"package.json":      weightConfig,
		"README.md":         weightDocs,
		"src/service.go":    weightCore,
		"scripts/gen.py":    weightSource,
		"notes.txt":         weightMisc,
		"tests/helpers.py":  weightTest,
		"a/test_main.py":    weightTest,
		"style.css":         0,
		"bundle.min.js":     0,
		"go.sum":            0,
		"package-lock.json": 0,
	}
	for p, want := range cases {
		assert.Equal(t, want, Weight(p), "path %s", p)
	}
}

func TestRuleStrategy_NonEmptyTreeNeverEmptyRanking(t *testing.T) {
	snap := snapshotFor(t, map[string]string{
		"style.css": "body {}",
		"go.sum":    "checksums",
	})
	require.NotEmpty(t, snap.Files)

	ranking, err := NewRuleStrategy().Rank(context.Background(), snap)
	require.NoError(t, err)
	assert.Len(t, ranking, len(snap.Files))
}

// failStrategy always errors.
type failStrategy struct{ name string }

func (f failStrategy) Name() string { return f.name }
func (f failStrategy) Rank(context.Context, *scan.Snapshot) (Ranking, error) {
	return nil, errors.NewSelectionFailed(f.name, "boom", nil)
}

// emptyStrategy succeeds with no candidates.
type emptyStrategy struct{}

func (emptyStrategy) Name() string { return "empty" }
func (emptyStrategy) Rank(context.Context, *scan.Snapshot) (Ranking, error) {
	return Ranking{}, nil
}

func TestChain_FallsThroughToRules(t *testing.T) {
	snap := snapshotFor(t, map[string]string{"main.go": "package main"})
	chain := NewChain(testLogger(), failStrategy{name: "vector"}, emptyStrategy{})

	ranking, strategy := chain.Rank(context.Background(), snap)
	assert.Equal(t, "rules", strategy)
	require.Len(t, ranking, 1)
	assert.Equal(t, "main.go", ranking[0].Path)
}

func TestChain_FirstUsableWins(t *testing.T) {
	snap := snapshotFor(t, map[string]string{"main.go": "package main"})
	ok := stubGenerator{response: `["main.go"]`}
	chain := NewChain(testLogger(), failStrategy{name: "vector"}, NewAIStrategy(ok, testLogger()))

	ranking, strategy := chain.Rank(context.Background(), snap)
	assert.Equal(t, "ai", strategy)
	require.Len(t, ranking, 1)
	assert.Equal(t, "main.go", ranking[0].Path)
}

// stubGenerator returns a canned response or error.
type stubGenerator struct {
	response string
	err      error
}

func (s stubGenerator) Generate(context.Context, string) (string, error) {
	return s.response, s.err
}

func TestAIStrategy_ParsesJSONArray(t *testing.T) {
	snap := snapshotFor(t, map[string]string{
		"src/app.py":   "app",
		"src/db.py":    "db",
		"src/other.py": "other",
	})
	s := NewAIStrategy(stubGenerator{response: `["src/db.py", "src/app.py"]`}, testLogger())

	ranking, err := s.Rank(context.Background(), snap)
	require.NoError(t, err)
	require.Len(t, ranking, 2)
	assert.Equal(t, "src/db.py", ranking[0].Path)
	assert.Equal(t, "src/app.py", ranking[1].Path)
	assert.Greater(t, ranking[0].Score, ranking[1].Score)
}

func TestAIStrategy_FencedResponse(t *testing.T) {
	snap := snapshotFor(t, map[string]string{"src/app.py": "app"})
	resp := "Here you go:\n```json\n[\"src/app.py\"]\n```\n"
	s := NewAIStrategy(stubGenerator{response: resp}, testLogger())

	ranking, err := s.Rank(context.Background(), snap)
	require.NoError(t, err)
	require.Len(t, ranking, 1)
	assert.Equal(t, "src/app.py", ranking[0].Path)
}

func TestAIStrategy_DropsUnknownPaths(t *testing.T) {
	snap := snapshotFor(t, map[string]string{"src/app.py": "app"})
	s := NewAIStrategy(stubGenerator{response: `["src/app.py", "made/up.py"]`}, testLogger())

	ranking, err := s.Rank(context.Background(), snap)
	require.NoError(t, err)
	require.Len(t, ranking, 1)
	assert.Equal(t, "src/app.py", ranking[0].Path)
}

func TestAIStrategy_SuffixResolution(t *testing.T) {
	snap := snapshotFor(t, map[string]string{"src/app.py": "app"})
	s := NewAIStrategy(stubGenerator{response: `["app.py"]`}, testLogger())

	ranking, err := s.Rank(context.Background(), snap)
	require.NoError(t, err)
	require.Len(t, ranking, 1)
	assert.Equal(t, "src/app.py", ranking[0].Path)
}

func TestAIStrategy_AmbiguousSuffixDropped(t *testing.T) {
	snap := snapshotFor(t, map[string]string{
		"src/app.py":   "app",
		"tools/app.py": "tool",
		"src/db.py":    "db",
	})
	s := NewAIStrategy(stubGenerator{response: `["app.py", "db.py"]`}, testLogger())

	ranking, err := s.Rank(context.Background(), snap)
	require.NoError(t, err)
	require.Len(t, ranking, 1)
	assert.Equal(t, "src/db.py", ranking[0].Path)
}

func TestAIStrategy_MalformedResponseFallsBack(t *testing.T) {
	snap := snapshotFor(t, map[string]string{"src/app.py": "app"})
	malformed := stubGenerator{response: "I cannot answer that in the requested format."}

	s := NewAIStrategy(malformed, testLogger())
	_, err := s.Rank(context.Background(), snap)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrSelectionFailed))

	// The full chain still produces a usable ranking.
	chain := NewChain(testLogger(), s)
	ranking, strategy := chain.Rank(context.Background(), snap)
	assert.Equal(t, "rules", strategy)
	assert.NotEmpty(t, ranking)
}

func TestAIStrategy_RemoteError(t *testing.T) {
	snap := snapshotFor(t, map[string]string{"src/app.py": "app"})
	s := NewAIStrategy(stubGenerator{err: fmt.Errorf("dial tcp: refused")}, testLogger())

	_, err := s.Rank(context.Background(), snap)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrSelectionFailed))
}

func TestVectorStrategy_RanksBySimilarity(t *testing.T) {
	snap := snapshotFor(t, map[string]string{
		"main.go":  "package main\nfunc main() { if err != nil { return } }",
		"data.txt": "lorem ipsum dolor sit amet",
	})
	query := func(*scan.Snapshot) string { return "func return if package main" }
	s := NewVectorStrategy(vector.KeywordEmbedder{}, query, 10, 0.0, testLogger())

	ranking, err := s.Rank(context.Background(), snap)
	require.NoError(t, err)
	require.NotEmpty(t, ranking)
	assert.Equal(t, "main.go", ranking[0].Path)
}

func TestVectorStrategy_SimilarityFloor(t *testing.T) {
	snap := snapshotFor(t, map[string]string{"main.go": "package main"})
	query := func(*scan.Snapshot) string { return "package" }
	s := NewVectorStrategy(vector.KeywordEmbedder{}, query, 10, 1.1, testLogger())

	_, err := s.Rank(context.Background(), snap)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrSelectionFailed))
}

func TestVectorStrategy_RespectsMaxFiles(t *testing.T) {
	files := map[string]string{}
	for i := 0; i < 5; i++ {
		files[fmt.Sprintf("f%d.go", i)] = "package main\nfunc main() {}"
	}
	snap := snapshotFor(t, files)
	s := NewVectorStrategy(vector.KeywordEmbedder{}, nil, 2, 0.0, testLogger())

	ranking, err := s.Rank(context.Background(), snap)
	require.NoError(t, err)
	assert.Len(t, ranking, 2)
}
