// Package docgen assembles and writes the final context document.
package docgen

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"

	"github.com/hpungsan/promptpack/internal/budget"
	"github.com/hpungsan/promptpack/internal/scan"
)

// OutputFile is the document written into the project root.
const OutputFile = "PROJECT_PROMPT.md"

// fallbackContentCap bounds per-file content in the fallback document.
const fallbackContentCap = 5000

// Generator is the remote surface document generation needs.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// header is prepended to every generated document so downstream AI
// assistants know what they are reading.
const header = `<!-- Generated by promptpack. Do not edit by hand. -->

> This document is a condensed, token-budgeted overview of the project,
> assembled for AI assistants. It covers the most relevant files only.

`

// Writer produces the context document, preferring the generative model and
// falling back to a deterministic rendering when the model is unavailable.
type Writer struct {
	client Generator
	logger *slog.Logger
}

// NewWriter creates a document writer. client may be nil, which forces the
// fallback document.
func NewWriter(client Generator, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{client: client, logger: logger}
}

// Generate returns the document body for the assembled context. Remote
// failure is not fatal; the fallback document is returned instead, and the
// boolean reports whether the model produced the document.
func (w *Writer) Generate(ctx context.Context, snap *scan.Snapshot, asm *budget.Assembled) (string, bool) {
	if w.client != nil {
		doc, err := w.client.Generate(ctx, GenerationPrompt(snap, asm))
		if err == nil && strings.TrimSpace(doc) != "" {
			return header + strings.TrimSpace(doc) + "\n", true
		}
		w.logger.Warn("document generation failed, writing fallback document", "error", err)
	}
	return header + Fallback(snap, asm), false
}

// Write stores the document at the project root and returns its path.
func (w *Writer) Write(snap *scan.Snapshot, doc string) (string, error) {
	path := filepath.Join(snap.Root, OutputFile)
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", OutputFile, err)
	}
	return path, nil
}

// GenerationPrompt renders the assembled context as a single prompt asking
// the model for a structured project overview.
func GenerationPrompt(snap *scan.Snapshot, asm *budget.Assembled) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze the project %q and produce a comprehensive markdown overview\n", snap.Name())
	b.WriteString(`covering: purpose, architecture, key components and how they interact,
important data models, and anything a developer needs before making changes.
Base the overview strictly on the material below.

`)
	if asm.Readme != "" {
		b.WriteString("## README.md\n\n" + asm.Readme + "\n\n")
	}
	b.WriteString("## File structure\n\n" + snap.TreeString() + "\n")
	b.WriteString("## Selected file contents\n\n")
	for _, p := range asm.Selected {
		fmt.Fprintf(&b, "### %s\n\n```\n%s\n```\n\n", p, asm.Contents[p])
	}
	return b.String()
}

// Fallback renders the deterministic document: tree, ranked file list, and
// capped file contents. Used when no generative model is reachable.
func Fallback(snap *scan.Snapshot, asm *budget.Assembled) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", snap.Name())
	if asm.Readme != "" {
		b.WriteString("## README\n\n" + asm.Readme + "\n\n")
	}
	b.WriteString("## File structure\n\n```\n" + snap.TreeString() + "```\n\n")

	b.WriteString("## Key files\n\n")
	for _, p := range asm.Selected {
		b.WriteString("- " + p + "\n")
	}
	b.WriteString("\n")

	for _, p := range asm.Selected {
		content := asm.Contents[p]
		if len(content) > fallbackContentCap {
			content = content[:fallbackContentCap] + "\n... (truncated)"
		}
		fmt.Fprintf(&b, "### %s\n\n```\n%s\n```\n\n", p, content)
	}
	return b.String()
}

// SummaryQuery builds the semantic query for the vector strategy: project
// name, top-level directories, and the README's heading structure.
func SummaryQuery(snap *scan.Snapshot) string {
	parts := []string{
		"core business logic and main functionality of " + snap.Name(),
	}
	if dirs := topLevelDirs(snap); len(dirs) > 0 {
		parts = append(parts, "project areas: "+strings.Join(dirs, " "))
	}
	if snap.HasReadme {
		if headings := readmeHeadings(snap.Readme); len(headings) > 0 {
			parts = append(parts, strings.Join(headings, " "))
		}
	}
	return strings.Join(parts, "\n")
}

// readmeHeadings extracts level-1 and level-2 heading text from markdown.
func readmeHeadings(md string) []string {
	src := []byte(md)
	doc := goldmark.New().Parser().Parse(gmtext.NewReader(src))

	var out []string
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok || h.Level > 2 {
			return ast.WalkContinue, nil
		}
		var text strings.Builder
		for c := h.FirstChild(); c != nil; c = c.NextSibling() {
			if t, ok := c.(*ast.Text); ok {
				text.Write(t.Segment.Value(src))
			}
		}
		if s := strings.TrimSpace(text.String()); s != "" {
			out = append(out, s)
		}
		return ast.WalkSkipChildren, nil
	})
	return out
}

func topLevelDirs(snap *scan.Snapshot) []string {
	set := make(map[string]bool)
	for _, f := range snap.Files {
		if idx := strings.Index(f, "/"); idx > 0 {
			set[f[:idx]] = true
		}
	}
	out := make([]string, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}
