package rank

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hpungsan/promptpack/internal/errors"
	"github.com/hpungsan/promptpack/internal/scan"
)

// Generator is the remote surface the AI-assisted strategy needs.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// AIStrategy asks the generative model which files matter. Only paths are
// sent, never contents. Malformed responses are a strategy failure; the
// caller's fallback chain decides what happens next.
type AIStrategy struct {
	client Generator
	logger *slog.Logger
}

// NewAIStrategy creates the AI-assisted strategy.
func NewAIStrategy(client Generator, logger *slog.Logger) *AIStrategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &AIStrategy{client: client, logger: logger}
}

// Name implements Strategy.
func (*AIStrategy) Name() string { return "ai" }

const selectionPromptFormat = `You are an expert developer analyzing a project. Identify which files are the
most important to examine in order to understand this project's structure,
purpose, and functionality, with emphasis on core business logic.

Here is the project's README.md (if available):
%s

Here is the project's file structure:
%s

Respond with ONLY a JSON array of file paths, most important first, e.g.:
["src/main.py", "lib/core.py", "models/user.py"]

Prioritize entry points, core business logic, key workflows, and data models.
Avoid style sheets, static assets, test files, and generated artifacts.
Do not include any explanation or commentary.`

// Rank implements Strategy.
func (s *AIStrategy) Rank(ctx context.Context, snap *scan.Snapshot) (Ranking, error) {
	readme := "No README.md found."
	if snap.HasReadme {
		readme = snap.Readme
	}
	prompt := fmt.Sprintf(selectionPromptFormat, readme, snap.TreeString())

	response, err := s.client.Generate(ctx, prompt)
	if err != nil {
		return nil, errors.NewSelectionFailed("ai", "remote call failed", err)
	}

	paths := parsePathList(response)
	valid := make([]string, 0, len(paths))
	seen := make(map[string]bool)
	for _, p := range paths {
		resolved, ok := resolvePath(snap, p)
		if !ok {
			// Paths the model invented are dropped, not an error.
			s.logger.Debug("model suggested unknown path", "path", p)
			continue
		}
		if !seen[resolved] {
			seen[resolved] = true
			valid = append(valid, resolved)
		}
	}

	if len(valid) == 0 {
		return nil, errors.NewSelectionFailed("ai", "response listed no valid paths", nil)
	}

	// Ordinal scores: first suggestion ranks highest.
	out := make(Ranking, len(valid))
	for i, p := range valid {
		out[i] = Candidate{Path: p, Score: float64(len(valid) - i)}
	}
	return out, nil
}

// parsePathList extracts a path list from the model response. A JSON array
// (optionally fenced) is preferred; a plain line list is accepted.
func parsePathList(response string) []string {
	text := strings.TrimSpace(response)
	if fenced := extractFence(text); fenced != "" {
		text = fenced
	}

	var arr []string
	if err := json.Unmarshal([]byte(text), &arr); err == nil {
		return arr
	}

	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.Trim(strings.TrimSpace(line), "-*`\"',"))
		if line == "" || strings.ContainsAny(line, "{}[]") || strings.Contains(line, " ") {
			continue
		}
		out = append(out, line)
	}
	return out
}

// extractFence returns the body of the first ``` fence, if any.
func extractFence(text string) string {
	start := strings.Index(text, "```")
	if start < 0 {
		return ""
	}
	rest := text[start+3:]
	if nl := strings.Index(rest, "\n"); nl >= 0 {
		rest = rest[nl+1:]
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(rest[:end])
}

// resolvePath maps a model-suggested path onto the file tree: exact match
// first, then unique suffix match. An ambiguous suffix is dropped rather
// than guessed.
func resolvePath(snap *scan.Snapshot, p string) (string, bool) {
	p = strings.TrimPrefix(strings.ReplaceAll(strings.TrimSpace(p), "\\", "/"), "./")
	if p == "" {
		return "", false
	}
	if snap.Contains(p) {
		return p, true
	}
	var found string
	for _, f := range snap.Files {
		if strings.HasSuffix(f, "/"+p) {
			if found != "" {
				return "", false
			}
			found = f
		}
	}
	return found, found != ""
}
