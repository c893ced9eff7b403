package search

import (
	"regexp"
	"strings"
)

var wordRe = regexp.MustCompile(`[\p{L}\p{N}]+`)

// Tokenize returns the set of lowercase letter/digit runs in s.
func Tokenize(s string) map[string]struct{} {
	words := wordRe.FindAllString(strings.ToLower(s), -1)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// containsAll reports whether every token of want is in have.
func containsAll(have, want map[string]struct{}) bool {
	for w := range want {
		if _, ok := have[w]; !ok {
			return false
		}
	}
	return true
}
