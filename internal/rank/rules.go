package rank

import (
	"context"
	"path"
	"sort"
	"strings"

	"github.com/hpungsan/promptpack/internal/scan"
)

// Heuristic weights. Entry points and configuration-adjacent files score
// highest; tests score low but nonzero.
const (
	weightEntry  = 100
	weightConfig = 90
	weightDocs   = 70
	weightCore   = 60
	weightSource = 40
	weightMisc   = 20
	weightTest   = 10
)

// configNames are configuration-adjacent basenames.
var configNames = map[string]bool{
	"package.json": true, "setup.py": true, "pyproject.toml": true,
	"requirements.txt": true, "gemfile": true, "composer.json": true,
	"dockerfile": true, "docker-compose.yml": true, "docker-compose.yaml": true,
	"makefile": true, "go.mod": true, "cargo.toml": true,
	"tsconfig.json": true, "webpack.config.js": true, ".env.example": true,
	".gitignore": true, ".eslintrc": true,
}

// docNames are documentation basenames worth surfacing.
var docNames = map[string]bool{
	"readme.md": true, "contributing.md": true, "license": true, "license.md": true,
}

// coreDirs are source directories whose files reveal application structure.
var coreDirs = map[string]bool{
	"src": true, "app": true, "lib": true, "core": true, "internal": true,
	"pkg": true, "controllers": true, "models": true, "services": true,
	"views": true, "api": true, "handlers": true,
}

// sourceExts are recognized code file extensions.
var sourceExts = map[string]bool{
	".go": true, ".py": true, ".js": true, ".ts": true, ".tsx": true,
	".jsx": true, ".rb": true, ".php": true, ".java": true, ".c": true,
	".cc": true, ".cpp": true, ".h": true, ".rs": true, ".kt": true,
	".swift": true, ".scala": true, ".sh": true,
}

// droppedExts score zero: style sheets, source maps, minified assets.
var droppedExts = map[string]bool{
	".css": true, ".scss": true, ".sass": true, ".less": true, ".map": true,
}

// lockNames are generated dependency lock files, scored zero.
var lockNames = map[string]bool{
	"package-lock.json": true, "yarn.lock": true, "pnpm-lock.yaml": true,
	"gemfile.lock": true, "poetry.lock": true, "cargo.lock": true, "go.sum": true,
}

// RuleStrategy is the deterministic, dependency-free selection strategy.
// It is the system's availability guarantee: it always terminates
// successfully.
type RuleStrategy struct{}

// NewRuleStrategy creates the rule-based strategy.
func NewRuleStrategy() *RuleStrategy { return &RuleStrategy{} }

// Name implements Strategy.
func (*RuleStrategy) Name() string { return "rules" }

// Rank implements Strategy. The returned error is always nil.
func (*RuleStrategy) Rank(_ context.Context, snap *scan.Snapshot) (Ranking, error) {
	out := make(Ranking, 0, len(snap.Files))
	for _, p := range snap.Files {
		if w := Weight(p); w > 0 {
			out = append(out, Candidate{Path: p, Score: float64(w)})
		}
	}

	// A tree of nothing but excluded categories still deserves a ranking:
	// fall back to a flat minimal weight.
	if len(out) == 0 && len(snap.Files) > 0 {
		for _, p := range snap.Files {
			out = append(out, Candidate{Path: p, Score: 1})
		}
	}

	sortRanking(out)
	return out, nil
}

// Weight assigns the heuristic weight for a path. Zero means dropped.
func Weight(p string) int {
	base := strings.ToLower(path.Base(p))
	ext := path.Ext(base)

	if droppedExts[ext] || lockNames[base] ||
		strings.HasSuffix(base, ".min.js") || strings.HasSuffix(base, ".min.css") {
		return 0
	}

	if isTest(p, base) {
		return weightTest
	}

	stem := strings.TrimSuffix(base, ext)
	if stem == "main" || stem == "index" || stem == "app" || firstSegment(p) == "cmd" {
		return weightEntry
	}
	if configNames[base] {
		return weightConfig
	}
	if docNames[base] {
		return weightDocs
	}
	if coreDirs[firstSegment(p)] && sourceExts[ext] {
		return weightCore
	}
	if sourceExts[ext] {
		return weightSource
	}
	return weightMisc
}

func isTest(p, base string) bool {
	if strings.HasPrefix(base, "test_") || strings.Contains(base, "_test.") ||
		strings.Contains(base, ".test.") || strings.Contains(base, ".spec.") {
		return true
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "test" || seg == "tests" || seg == "__tests__" {
			return true
		}
	}
	return false
}

func firstSegment(p string) string {
	if idx := strings.Index(p, "/"); idx >= 0 {
		return p[:idx]
	}
	return ""
}

// sortRanking orders by descending score, then shallower path, then lexical.
func sortRanking(r Ranking) {
	sort.SliceStable(r, func(i, j int) bool {
		if r[i].Score != r[j].Score {
			return r[i].Score > r[j].Score
		}
		di, dj := strings.Count(r[i].Path, "/"), strings.Count(r[j].Path, "/")
		if di != dj {
			return di < dj
		}
		return r[i].Path < r[j].Path
	})
}
