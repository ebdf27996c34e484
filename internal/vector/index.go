// Package vector maintains an ephemeral in-memory embedding index and
// answers nearest-neighbor queries.
package vector

import (
	"context"
	"fmt"
	"math"
	"sort"
)

// Embedder turns texts into fixed-length vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// Hit is one query result.
type Hit struct {
	Path       string
	Similarity float64
}

type entry struct {
	path string
	vec  []float64
	ord  int // original file-tree order, for stable tie-breaks
}

// Index maps paths to normalized embedding vectors. Rebuilt fresh every
// run; nothing is persisted.
type Index struct {
	embedder Embedder
	entries  []entry
	dim      int
}

// NewIndex creates an empty index backed by the given embedder.
func NewIndex(embedder Embedder) *Index {
	return &Index{embedder: embedder}
}

// Len returns the number of indexed paths.
func (ix *Index) Len() int { return len(ix.entries) }

// Index embeds the entire candidate set and stores the normalized vectors.
// Must be called with contents for every candidate before any Query.
func (ix *Index) Index(ctx context.Context, paths []string, contents []string) error {
	if len(paths) != len(contents) {
		return fmt.Errorf("got %d paths but %d contents", len(paths), len(contents))
	}
	if len(paths) == 0 {
		return nil
	}

	vecs, err := ix.embedder.Embed(ctx, contents)
	if err != nil {
		return err
	}
	if len(vecs) != len(paths) {
		return fmt.Errorf("embedder returned %d vectors for %d paths", len(vecs), len(paths))
	}

	ix.entries = ix.entries[:0]
	ix.dim = 0
	for i, v := range vecs {
		if ix.dim == 0 {
			ix.dim = len(v)
		}
		if len(v) != ix.dim {
			return fmt.Errorf("vector for %s has dimension %d, want %d", paths[i], len(v), ix.dim)
		}
		ix.entries = append(ix.entries, entry{path: paths[i], vec: normalize(v), ord: i})
	}
	return nil
}

// Query embeds the query text and returns up to k hits ordered by descending
// similarity. Equal similarity prefers the shorter path, then file-tree
// order. Querying an empty index returns no results, never an error.
func (ix *Index) Query(ctx context.Context, text string, k int) ([]Hit, error) {
	if len(ix.entries) == 0 || k <= 0 {
		return nil, nil
	}

	qvecs, err := ix.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(qvecs) != 1 || len(qvecs[0]) != ix.dim {
		return nil, fmt.Errorf("query embedding has wrong shape")
	}
	q := normalize(qvecs[0])

	type scored struct {
		Hit
		ord int
	}
	results := make([]scored, 0, len(ix.entries))
	for _, e := range ix.entries {
		results = append(results, scored{
			Hit: Hit{Path: e.path, Similarity: dot(q, e.vec)},
			ord: e.ord,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		if len(results[i].Path) != len(results[j].Path) {
			return len(results[i].Path) < len(results[j].Path)
		}
		return results[i].ord < results[j].ord
	})

	if k > len(results) {
		k = len(results)
	}
	hits := make([]Hit, k)
	for i := 0; i < k; i++ {
		hits[i] = results[i].Hit
	}
	return hits, nil
}

// dot is cosine similarity for unit vectors.
func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func normalize(v []float64) []float64 {
	var norm float64
	for _, x := range v {
		norm += x * x
	}
	norm = math.Sqrt(norm)
	if norm < 1e-6 {
		return v
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}
