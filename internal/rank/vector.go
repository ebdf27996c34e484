package rank

import (
	"context"
	"log/slog"

	"github.com/hpungsan/promptpack/internal/errors"
	"github.com/hpungsan/promptpack/internal/scan"
	"github.com/hpungsan/promptpack/internal/vector"
)

// snippetLimit caps how much of each file is embedded. Leading content
// carries the signal: imports, package docs, top-level declarations.
const snippetLimit = 2048

// QueryFunc builds the semantic query text for a snapshot.
type QueryFunc func(snap *scan.Snapshot) string

// VectorStrategy ranks by embedding similarity against a project summary
// query. The index is rebuilt from scratch on every call.
type VectorStrategy struct {
	embedder      vector.Embedder
	query         QueryFunc
	maxFiles      int
	minSimilarity float64
	logger        *slog.Logger
}

// NewVectorStrategy creates the vector strategy. query may be nil, in which
// case a minimal name-plus-README query is used.
func NewVectorStrategy(embedder vector.Embedder, query QueryFunc, maxFiles int, minSimilarity float64, logger *slog.Logger) *VectorStrategy {
	if query == nil {
		query = defaultQuery
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &VectorStrategy{
		embedder:      embedder,
		query:         query,
		maxFiles:      maxFiles,
		minSimilarity: minSimilarity,
		logger:        logger,
	}
}

// Name implements Strategy.
func (*VectorStrategy) Name() string { return "vector" }

// Rank implements Strategy. The whole candidate set is indexed; results
// below the similarity floor are cut.
func (s *VectorStrategy) Rank(ctx context.Context, snap *scan.Snapshot) (Ranking, error) {
	paths := make([]string, 0, len(snap.Files))
	contents := make([]string, 0, len(snap.Files))
	for _, p := range snap.Files {
		text, err := snap.ReadFile(p)
		if err != nil {
			// Unreadable and binary files are not candidates.
			s.logger.Debug("skipping unembeddable file", "path", p, "error", err)
			continue
		}
		if len(text) > snippetLimit {
			text = text[:snippetLimit]
		}
		paths = append(paths, p)
		contents = append(contents, text)
	}
	if len(paths) == 0 {
		return nil, errors.NewSelectionFailed("vector", "no embeddable files", nil)
	}

	ix := vector.NewIndex(s.embedder)
	if err := ix.Index(ctx, paths, contents); err != nil {
		return nil, errors.NewSelectionFailed("vector", "indexing failed", err)
	}

	hits, err := ix.Query(ctx, s.query(snap), s.maxFiles)
	if err != nil {
		return nil, errors.NewSelectionFailed("vector", "query failed", err)
	}

	out := make(Ranking, 0, len(hits))
	for _, h := range hits {
		if h.Similarity < s.minSimilarity {
			break
		}
		out = append(out, Candidate{Path: h.Path, Score: h.Similarity})
	}
	if len(out) == 0 {
		return nil, errors.NewSelectionFailed("vector", "no candidate cleared the similarity floor", nil)
	}
	return out, nil
}

func defaultQuery(snap *scan.Snapshot) string {
	q := "core business logic and main functionality of " + snap.Name()
	if snap.HasReadme {
		readme := snap.Readme
		if len(readme) > snippetLimit {
			readme = readme[:snippetLimit]
		}
		q += "\n" + readme
	}
	return q
}
