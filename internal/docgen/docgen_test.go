package docgen

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/promptpack/internal/budget"
	"github.com/hpungsan/promptpack/internal/ignore"
	"github.com/hpungsan/promptpack/internal/scan"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testSnapshot(t *testing.T, files map[string]string) *scan.Snapshot {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	snap, err := scan.Walk(root, ignore.Compile(nil, nil))
	require.NoError(t, err)
	return snap
}

type stubGenerator struct {
	response string
	err      error
	prompt   string
}

func (s *stubGenerator) Generate(_ context.Context, prompt string) (string, error) {
	s.prompt = prompt
	return s.response, s.err
}

func TestGenerate_UsesModelOutput(t *testing.T) {
	snap := testSnapshot(t, map[string]string{"main.go": "package main"})
	asm := &budget.Assembled{
		FileTree: snap.Files,
		Selected: []string{"main.go"},
		Contents: map[string]string{"main.go": "package main"},
	}
	gen := &stubGenerator{response: "# Overview\n\nA Go program."}
	w := NewWriter(gen, testLogger())

	doc, generated := w.Generate(context.Background(), snap, asm)
	assert.True(t, generated)
	assert.Contains(t, doc, "Generated by promptpack")
	assert.Contains(t, doc, "# Overview")
	assert.Contains(t, gen.prompt, "main.go")
	assert.Contains(t, gen.prompt, "package main")
}

func TestGenerate_FallsBackOnError(t *testing.T) {
	snap := testSnapshot(t, map[string]string{
		"README.md": "# demo\n\nA demo project.",
		"main.go":   "package main",
	})
	asm := &budget.Assembled{
		FileTree: snap.Files,
		Readme:   snap.Readme,
		Selected: []string{"main.go"},
		Contents: map[string]string{"main.go": "package main"},
	}
	gen := &stubGenerator{err: fmt.Errorf("service unavailable")}
	w := NewWriter(gen, testLogger())

	doc, generated := w.Generate(context.Background(), snap, asm)
	assert.False(t, generated)
	assert.Contains(t, doc, "## Key files")
	assert.Contains(t, doc, "- main.go")
	assert.Contains(t, doc, "A demo project.")
}

func TestGenerate_NilClientWritesFallback(t *testing.T) {
	snap := testSnapshot(t, map[string]string{"main.go": "package main"})
	asm := &budget.Assembled{
		Selected: []string{"main.go"},
		Contents: map[string]string{"main.go": "package main"},
	}
	w := NewWriter(nil, testLogger())

	doc, generated := w.Generate(context.Background(), snap, asm)
	assert.False(t, generated)
	assert.Contains(t, doc, "```\npackage main\n```")
}

func TestFallback_CapsLargeContents(t *testing.T) {
	snap := testSnapshot(t, map[string]string{"big.go": "x"})
	big := strings.Repeat("a", fallbackContentCap+100)
	asm := &budget.Assembled{
		Selected: []string{"big.go"},
		Contents: map[string]string{"big.go": big},
	}

	doc := Fallback(snap, asm)
	assert.Contains(t, doc, "... (truncated)")
	assert.NotContains(t, doc, big)
}

func TestWrite(t *testing.T) {
	snap := testSnapshot(t, map[string]string{"main.go": "package main"})
	w := NewWriter(nil, testLogger())

	path, err := w.Write(snap, "content")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(snap.Root, OutputFile), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))
}

func TestSummaryQuery_IncludesHeadingsAndDirs(t *testing.T) {
	snap := testSnapshot(t, map[string]string{
		"README.md":      "# billing-engine\n\n## Invoice processing\n\ntext\n\n### deep heading\n",
		"src/invoice.go": "package invoice",
	})

	q := SummaryQuery(snap)
	assert.Contains(t, q, "billing-engine")
	assert.Contains(t, q, "Invoice processing")
	assert.NotContains(t, q, "deep heading")
	assert.Contains(t, q, "src")
}

func TestSummaryQuery_NoReadme(t *testing.T) {
	snap := testSnapshot(t, map[string]string{"main.go": "package main"})
	q := SummaryQuery(snap)
	assert.Contains(t, q, snap.Name())
}
