// Package watch implements the debounced, content-hash-deduped filesystem
// watch engine that drives the hub's push-on-change behavior (spec §4.5),
// grounded on Hyper-Int-OrcaBot's sandbox/internal/drivesync/watcher.go
// debounce idiom and nishisan-dev-n-backup's internal/agent/scanner.go glob
// matcher.
package watch

import (
	"os"
	"path/filepath"
	"strings"
)

// matchesGlob reports whether relPath (or, for directories, one of its path
// segments) matches pattern. It supports the same three glob shapes as the
// teacher's scanner:
//   - "*.log"          matches by basename
//   - "node_modules/**" matches a directory and everything under it
//   - "logs/"          (trailing slash) matches a directory by name at any depth
func matchesGlob(relPath string, isDir bool, pattern string) bool {
	base := filepath.Base(relPath)
	parts := strings.Split(relPath, string(os.PathSeparator))

	switch {
	case strings.HasSuffix(pattern, "/"):
		if !isDir {
			return false
		}
		dirPattern := strings.TrimSuffix(pattern, "/")
		dirPattern = strings.TrimPrefix(dirPattern, "*/")
		for _, part := range parts {
			if matched, _ := filepath.Match(dirPattern, part); matched {
				return true
			}
		}
		return false

	case strings.HasSuffix(pattern, "/**"):
		prefix := strings.TrimSuffix(pattern, "/**")
		for _, part := range parts {
			if matched, _ := filepath.Match(prefix, part); matched {
				return true
			}
		}
		return false

	default:
		if matched, _ := filepath.Match(pattern, relPath); matched {
			return true
		}
		matched, _ := filepath.Match(pattern, base)
		return matched
	}
}

func matchesAny(relPath string, isDir bool, patterns []string) bool {
	for _, p := range patterns {
		if matchesGlob(relPath, isDir, p) {
			return true
		}
	}
	return false
}

// Included reports whether relPath should be synced under a rule with the
// given include/exclude pattern lists: it must match an include pattern (an
// empty include list means "everything matches") and must not match any
// exclude pattern.
func Included(relPath string, isDir bool, include, exclude []string) bool {
	if len(include) > 0 && !matchesAny(relPath, isDir, include) {
		return false
	}
	if matchesAny(relPath, isDir, exclude) {
		return false
	}
	return true
}
