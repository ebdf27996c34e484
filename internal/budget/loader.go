// Package budget performs greedy token-budgeted content loading.
package budget

import (
	"log/slog"

	"github.com/hpungsan/promptpack/internal/rank"
	"github.com/hpungsan/promptpack/internal/scan"
	"github.com/hpungsan/promptpack/internal/tokens"
	"github.com/hpungsan/promptpack/internal/usage"
)

// Skip records one candidate the loader passed over: its estimated cost and
// the budget that remained when it was considered.
type Skip struct {
	Path      string `json:"path"`
	Tokens    int    `json:"tokens"`
	Remaining int    `json:"remaining,omitempty"`
	Reason    string `json:"reason"`
}

// Assembled is the loader output: the admitted files in ranking order plus
// the accounting of everything that was not admitted.
type Assembled struct {
	FileTree    []string          `json:"file_tree"`
	Selected    []string          `json:"selected"`
	Contents    map[string]string `json:"-"`
	Readme      string            `json:"-"`
	TotalTokens int               `json:"total_tokens"`
	Skips       []Skip            `json:"skips,omitempty"`
}

// Loader admits whole files in ranking order until the effective budget is
// exhausted. A file that does not fit is skipped, never truncated, and the
// walk continues so a smaller file further down can still be admitted.
type Loader struct {
	limit  int
	buffer float64
	ledger *usage.Ledger
	logger *slog.Logger
}

// NewLoader creates a loader. A limit of zero or below means unlimited.
// buffer is the fraction of the limit held back as safety margin.
func NewLoader(limit int, buffer float64, ledger *usage.Ledger, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{limit: limit, buffer: buffer, ledger: ledger, logger: logger}
}

// Effective returns the usable budget after the buffer cut, or zero when the
// loader is unlimited.
func (l *Loader) Effective() int {
	if l.limit <= 0 {
		return 0
	}
	return int(float64(l.limit) * (1 - l.buffer))
}

// Load walks the ranking and admits files greedily. Token accounting uses
// the deterministic estimator so budget decisions stay reproducible across
// runs regardless of remote availability.
func (l *Loader) Load(snap *scan.Snapshot, ranking rank.Ranking) *Assembled {
	effective := l.Effective()
	out := &Assembled{
		FileTree: snap.Files,
		Readme:   snap.Readme,
		Contents: make(map[string]string),
	}

	for _, c := range ranking {
		text, err := snap.ReadFile(c.Path)
		if err != nil {
			l.logger.Debug("skipping unreadable file", "path", c.Path, "error", err)
			out.Skips = append(out.Skips, Skip{Path: c.Path, Reason: "unreadable"})
			l.record(c.Path, 0, usage.StatusSkipped)
			continue
		}

		cost := tokens.Estimate(text)
		if effective > 0 && out.TotalTokens+cost > effective {
			remaining := effective - out.TotalTokens
			l.logger.Debug("file exceeds remaining budget, skipping",
				"path", c.Path, "tokens", cost, "remaining", remaining)
			out.Skips = append(out.Skips, Skip{
				Path:      c.Path,
				Tokens:    cost,
				Remaining: remaining,
				Reason:    "over budget",
			})
			l.record(c.Path, cost, usage.StatusSkipped)
			continue
		}

		out.Selected = append(out.Selected, c.Path)
		out.Contents[c.Path] = text
		out.TotalTokens += cost
		l.record(c.Path, cost, usage.StatusOK)
	}

	l.logger.Info("budget load complete",
		"selected", len(out.Selected), "skipped", len(out.Skips),
		"tokens", out.TotalTokens, "budget", effective)
	return out
}

func (l *Loader) record(path string, cost int, status string) {
	if l.ledger == nil {
		return
	}
	l.ledger.Append(usage.Record{
		Operation:   "file_load " + path,
		InputTokens: cost,
		Status:      status,
	})
}
