package extract

import (
	"fmt"
	"os"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// Expand resolves seed paths and doublestar patterns ("seeds/**/*.yaml") to existing
// seed files, sorted and deduplicated. A plain path that does not exist is an error.
func Expand(patterns []string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	add := func(p string) {
		if _, ok := seen[p]; ok || !Supported(p) {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	for _, pattern := range patterns {
		if !doublestar.ValidatePathPattern(pattern) {
			return nil, fmt.Errorf("invalid seed pattern %q", pattern)
		}
		if !hasMeta(pattern) {
			info, err := os.Stat(pattern)
			if err != nil {
				return nil, fmt.Errorf("seed file: %w", err)
			}
			if !info.IsDir() {
				add(pattern)
			}
			continue
		}
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("expand %q: %w", pattern, err)
		}
		for _, m := range matches {
			add(m)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Match reports whether path matches any of the patterns.
func Match(patterns []string, path string) bool {
	for _, pattern := range patterns {
		if pattern == path {
			return true
		}
		if ok, err := doublestar.PathMatch(pattern, path); err == nil && ok {
			return true
		}
	}
	return false
}

func hasMeta(pattern string) bool {
	for _, c := range pattern {
		switch c {
		case '*', '?', '[', '{':
			return true
		}
	}
	return false
}
