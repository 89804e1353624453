package domain

import "strings"

// MatchPath aceita o caminho exato ou sub-caminhos ("/api/balance/abc").
func MatchPath(path, pattern string) bool {
	if pattern == "" {
		return false
	}
	pattern = strings.TrimSuffix(pattern, "/")
	return path == pattern || strings.HasPrefix(path, pattern+"/")
}

// MatchAny devolve o primeiro padrão que casa com path.
func MatchAny(path string, patterns []string) (string, bool) {
	for _, p := range patterns {
		if MatchPath(path, p) {
			return p, true
		}
	}
	return "", false
}
