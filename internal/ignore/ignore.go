// Package ignore filters the raw file tree before any selection runs.
package ignore

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Rule is a single compiled ignore pattern.
type Rule struct {
	Pattern string
	DirOnly bool // trailing-slash patterns match any path under that directory
}

// RuleSet is a set of compiled pattern matchers. A path is ignored iff any
// rule accepts it and no allow pattern exempts it.
type RuleSet struct {
	rules []Rule
	allow []string
}

// builtinDirs are directory names ignored anywhere in a path.
var builtinDirs = []string{
	".git", ".svn", ".hg",
	".vscode", ".idea",
	"__pycache__", "node_modules", "vendor",
	"dist", "build", "coverage",
	"tmp", "temp", "cache", "log",
	".promptpack",
}

// builtinGlobs are filename patterns for binary and media artifacts.
var builtinGlobs = []string{
	"*.jpg", "*.jpeg", "*.png", "*.gif", "*.svg", "*.ico",
	"*.woff", "*.woff2", "*.ttf", "*.eot",
	"*.mp3", "*.mp4", "*.pdf",
	"*.zip", "*.tar", "*.gz",
	"*.exe", "*.bin", "*.so", "*.dylib", "*.dll",
}

// Builtin returns the fixed baseline rule list.
func Builtin() []Rule {
	rules := make([]Rule, 0, len(builtinDirs)+len(builtinGlobs))
	for _, d := range builtinDirs {
		rules = append(rules, Rule{Pattern: d, DirOnly: true})
	}
	for _, g := range builtinGlobs {
		rules = append(rules, Rule{Pattern: g})
	}
	return rules
}

// Compile builds a RuleSet from the builtin baseline, extra patterns (e.g.
// configured exclude_patterns), and allow patterns that are never ignored.
func Compile(extra []string, allow []string) *RuleSet {
	rules := Builtin()
	for _, p := range extra {
		if r, ok := parsePattern(p); ok {
			rules = append(rules, r)
		}
	}
	return &RuleSet{rules: rules, allow: allow}
}

// LoadRepoRules parses ignore-spec files at root (.gitignore, then
// .promptpackignore) and appends their patterns to the set. An unreadable
// file is logged and skipped, never fatal. Negation patterns are not
// supported and are dropped.
func (rs *RuleSet) LoadRepoRules(root string, logger *slog.Logger) {
	for _, name := range []string{".gitignore", ".promptpackignore"} {
		path := filepath.Join(root, name)
		rules, err := parseFile(path)
		if err != nil {
			if !os.IsNotExist(err) && logger != nil {
				logger.Warn("skipping unreadable ignore file", "path", path, "error", err)
			}
			continue
		}
		rs.rules = append(rs.rules, rules...)
	}
}

// parseFile reads an ignore-spec file line by line. Blank lines and comments
// are skipped.
func parseFile(path string) ([]Rule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rules []Rule
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if r, ok := parsePattern(line); ok {
			rules = append(rules, r)
		}
	}
	return rules, scanner.Err()
}

// parsePattern converts one ignore-spec line to a Rule.
func parsePattern(line string) (Rule, bool) {
	// Negation is a documented simplification: not supported.
	if strings.HasPrefix(line, "!") {
		return Rule{}, false
	}
	line = strings.TrimPrefix(line, "/")
	if line == "" {
		return Rule{}, false
	}
	if strings.HasSuffix(line, "/") {
		return Rule{Pattern: strings.TrimSuffix(line, "/"), DirOnly: true}, true
	}
	return Rule{Pattern: line}, true
}

// Match reports whether relPath should be ignored. Matching is
// path-component-aware: a pattern matches a full path segment or the whole
// relative path, never a substring. Pure function of the compiled set.
func (rs *RuleSet) Match(relPath string) bool {
	rel := filepath.ToSlash(relPath)
	base := rel[strings.LastIndex(rel, "/")+1:]

	for _, p := range rs.allow {
		if globMatch(p, base) || globMatch(p, rel) {
			return false
		}
	}

	segments := strings.Split(rel, "/")
	for _, r := range rs.rules {
		if r.DirOnly {
			// Only parent segments count: a file literally named like the
			// directory pattern is not a directory match.
			for _, seg := range segments[:len(segments)-1] {
				if globMatch(r.Pattern, seg) {
					return true
				}
			}
			continue
		}
		if globMatch(r.Pattern, base) || globMatch(r.Pattern, rel) {
			return true
		}
		for _, seg := range segments {
			if seg == r.Pattern {
				return true
			}
		}
	}
	return false
}

// MatchDir reports whether a directory path should be pruned during a walk.
// Bare-name patterns match directories as well as files, per gitignore
// convention. A directory an allow pattern could reach into is never pruned;
// Match still filters its non-allowed contents file by file.
func (rs *RuleSet) MatchDir(relPath string) bool {
	rel := filepath.ToSlash(relPath)
	if rs.allowReaches(rel) {
		return false
	}
	segments := strings.Split(rel, "/")
	for _, r := range rs.rules {
		if r.DirOnly {
			for _, seg := range segments {
				if globMatch(r.Pattern, seg) {
					return true
				}
			}
			continue
		}
		if globMatch(r.Pattern, rel) {
			return true
		}
		for _, seg := range segments {
			if seg == r.Pattern {
				return true
			}
		}
	}
	return false
}

// allowReaches reports whether any allow pattern could match a file below
// dir. Basename patterns (no slash) can match anywhere, so their presence
// keeps every directory walkable; path patterns keep only their own prefix
// directories open.
func (rs *RuleSet) allowReaches(dir string) bool {
	dsegs := strings.Split(dir, "/")
	for _, p := range rs.allow {
		if !strings.Contains(p, "/") {
			return true
		}
		psegs := strings.Split(p, "/")
		if len(psegs) <= len(dsegs) {
			continue
		}
		reaches := true
		for i := range dsegs {
			if !globMatch(psegs[i], dsegs[i]) {
				reaches = false
				break
			}
		}
		if reaches {
			return true
		}
	}
	return false
}

func globMatch(pattern, s string) bool {
	matched, err := filepath.Match(pattern, s)
	return err == nil && matched
}
