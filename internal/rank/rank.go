// Package rank produces the ordered candidate file list for context assembly.
package rank

import (
	"context"
	"log/slog"

	"github.com/hpungsan/promptpack/internal/scan"
)

// Candidate is one ranked path. Score semantics are strategy-dependent:
// cosine similarity in [0,1] for the vector strategy, ordinal rank for the
// AI-assisted one, heuristic weight for rule-based.
type Candidate struct {
	Path  string  `json:"path"`
	Score float64 `json:"score"`
}

// Ranking is ordered descending by score; ties keep original file-tree order.
type Ranking []Candidate

// Paths returns the ranked paths in order.
func (r Ranking) Paths() []string {
	out := make([]string, len(r))
	for i, c := range r {
		out[i] = c.Path
	}
	return out
}

// Strategy ranks a snapshot's file tree.
type Strategy interface {
	Name() string
	Rank(ctx context.Context, snap *scan.Snapshot) (Ranking, error)
}

// Chain tries each primary strategy in order and falls back to the
// rule-based terminal, which is structurally guaranteed not to fail. A
// strategy failure is an error, an empty ranking, or an unparseable
// response; all are recovered here, never surfaced.
type Chain struct {
	primaries []Strategy
	terminal  *RuleStrategy
	logger    *slog.Logger
}

// NewChain builds a fallback chain over the given primaries.
func NewChain(logger *slog.Logger, primaries ...Strategy) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{
		primaries: primaries,
		terminal:  NewRuleStrategy(),
		logger:    logger,
	}
}

// Rank returns the first usable ranking and the name of the strategy that
// produced it.
func (c *Chain) Rank(ctx context.Context, snap *scan.Snapshot) (Ranking, string) {
	for _, s := range c.primaries {
		ranking, err := s.Rank(ctx, snap)
		if err != nil {
			c.logger.Warn("selection strategy failed, falling back",
				"strategy", s.Name(), "error", err)
			continue
		}
		if len(ranking) == 0 {
			c.logger.Warn("selection strategy returned no candidates, falling back",
				"strategy", s.Name())
			continue
		}
		return ranking, s.Name()
	}

	ranking, _ := c.terminal.Rank(ctx, snap)
	return ranking, c.terminal.Name()
}
