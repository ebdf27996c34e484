// Package scan produces the filtered file-system snapshot the pipeline runs on.
package scan

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hpungsan/promptpack/internal/ignore"
)

// Snapshot is an immutable view of a project directory: the filtered file
// tree plus the README content when present.
type Snapshot struct {
	// Root is the absolute project root.
	Root string

	// Files is the ordered, deduplicated file tree. Every path is relative
	// to Root and slash-separated.
	Files []string

	// Readme holds the README.md content, empty when absent.
	Readme string

	// HasReadme reports whether a README.md was found at the root.
	HasReadme bool

	fileSet map[string]bool
}

// Walk scans root, applies the rule set, and returns the snapshot.
// Directory entries matching the rules are pruned without descending.
func Walk(root string, rules *ignore.RuleSet) (*Snapshot, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{Root: absRoot, fileSet: make(map[string]bool)}

	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(absRoot, path)
		if relErr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rules.MatchDir(rel) {
				return fs.SkipDir
			}
			return nil
		}
		if rules.Match(rel) {
			return nil
		}
		if !snap.fileSet[rel] {
			snap.fileSet[rel] = true
			snap.Files = append(snap.Files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if data, err := os.ReadFile(filepath.Join(absRoot, "README.md")); err == nil {
		snap.Readme = string(data)
		snap.HasReadme = true
	}

	return snap, nil
}

// Contains reports whether a relative path is part of the file tree.
func (s *Snapshot) Contains(rel string) bool {
	return s.fileSet[filepath.ToSlash(rel)]
}

// Name returns the project name, the base of the root directory.
func (s *Snapshot) Name() string {
	return filepath.Base(s.Root)
}

// ReadFile reads the full content of a tree file. Binary content (NUL byte
// sniff) is reported as an error so callers can skip it.
func (s *Snapshot) ReadFile(rel string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.Root, filepath.FromSlash(rel)))
	if err != nil {
		return "", err
	}
	if isBinary(data) {
		return "", fmt.Errorf("binary file: %s", rel)
	}
	return string(data), nil
}

func isBinary(data []byte) bool {
	return bytes.Contains(data, []byte{0})
}

// TreeString renders the file tree grouped by directory, for prompts and the
// fallback document.
func (s *Snapshot) TreeString() string {
	var b strings.Builder
	b.WriteString("Project File Structure:\n")

	dirs := make(map[string][]string)
	var order []string
	for _, f := range s.Files {
		dir := ""
		if idx := strings.LastIndex(f, "/"); idx >= 0 {
			dir = f[:idx]
		}
		if _, seen := dirs[dir]; !seen {
			order = append(order, dir)
		}
		dirs[dir] = append(dirs[dir], f[strings.LastIndex(f, "/")+1:])
	}
	sort.Slice(order, func(i, j int) bool {
		di, dj := strings.Count(order[i], "/"), strings.Count(order[j], "/")
		if di != dj {
			return di < dj
		}
		return order[i] < order[j]
	})

	for _, dir := range order {
		indent := ""
		if dir != "" {
			depth := strings.Count(dir, "/")
			indent = strings.Repeat("    ", depth+1)
			b.WriteString(strings.Repeat("    ", depth))
			b.WriteString("└── " + dir[strings.LastIndex(dir, "/")+1:] + "/\n")
		}
		files := dirs[dir]
		sort.Strings(files)
		for i, f := range files {
			marker := "├── "
			if i == len(files)-1 {
				marker = "└── "
			}
			b.WriteString(indent + marker + f + "\n")
		}
	}
	return b.String()
}
