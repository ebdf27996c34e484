package vector

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEmbedder maps each text to a fixed vector keyed by exact content.
type stubEmbedder struct {
	vectors map[string][]float64
}

func (s stubEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		v, ok := s.vectors[t]
		if !ok {
			return nil, fmt.Errorf("no stub vector for %q", t)
		}
		out[i] = v
	}
	return out, nil
}

func TestIndexAndQuery(t *testing.T) {
	emb := stubEmbedder{vectors: map[string][]float64{
		"auth code":   {1, 0, 0},
		"db code":     {0, 1, 0},
		"mixed code":  {1, 1, 0},
		"login query": {1, 0, 0},
	}}
	ix := NewIndex(emb)

	err := ix.Index(context.Background(),
		[]string{"auth.go", "db.go", "mixed.go"},
		[]string{"auth code", "db code", "mixed code"})
	require.NoError(t, err)
	assert.Equal(t, 3, ix.Len())

	hits, err := ix.Query(context.Background(), "login query", 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "auth.go", hits[0].Path)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-9)
	assert.Equal(t, "mixed.go", hits[1].Path)

	// Monotonically non-increasing similarity.
	assert.GreaterOrEqual(t, hits[0].Similarity, hits[1].Similarity)
}

func TestQuery_TieBreakShorterPath(t *testing.T) {
	emb := stubEmbedder{vectors: map[string][]float64{
		"same":  {1, 0},
		"same2": {1, 0},
		"q":     {1, 0},
	}}
	ix := NewIndex(emb)

	require.NoError(t, ix.Index(context.Background(),
		[]string{"deep/nested/file.go", "top.go"},
		[]string{"same", "same2"}))

	hits, err := ix.Query(context.Background(), "q", 2)
	require.NoError(t, err)
	assert.Equal(t, "top.go", hits[0].Path)
}

func TestQuery_EmptyIndex(t *testing.T) {
	ix := NewIndex(KeywordEmbedder{})
	hits, err := ix.Query(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestIndex_LengthMismatch(t *testing.T) {
	ix := NewIndex(KeywordEmbedder{})
	err := ix.Index(context.Background(), []string{"a", "b"}, []string{"only one"})
	assert.Error(t, err)
}

func TestKeywordEmbedder_Deterministic(t *testing.T) {
	emb := KeywordEmbedder{}
	a, err := emb.Embed(context.Background(), []string{"func main() { return }"})
	require.NoError(t, err)
	b, err := emb.Embed(context.Background(), []string{"func main() { return }"})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a[0], keywordDim)
}

func TestKeywordEmbedder_SimilarTextsRankCloser(t *testing.T) {
	ix := NewIndex(KeywordEmbedder{})

	goFile := "package main\nfunc main() { if err != nil { return } }"
	sqlFile := "database schema request response api http route"
	require.NoError(t, ix.Index(context.Background(),
		[]string{"main.go", "api.sql"},
		[]string{goFile, sqlFile}))

	hits, err := ix.Query(context.Background(), "func return if package", 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "main.go", hits[0].Path)
}
