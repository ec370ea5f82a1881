package registry

import "path/filepath"

// matchesAny reports whether hostname matches any of patterns using shell
// glob syntax (path/filepath.Match), the same matcher the watch engine uses
// for include/exclude rules. A literal pattern with no metacharacters
// matches only that exact hostname.
func matchesAny(hostname string, patterns []string) bool {
	for _, p := range patterns {
		if ok, err := filepath.Match(p, hostname); err == nil && ok {
			return true
		}
	}
	return false
}
