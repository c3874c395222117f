package ui

import (
	"path"
	"sort"
	"strings"
)

const (
	maxSuggestDistance = 3
	maxSuggestions     = 3
)

// SuggestPaths returns up to three candidates close to target. Paths are
// compared both whole and by file name, so a typo in either is caught.
func SuggestPaths(target string, candidates []string) []string {
	type match struct {
		value    string
		distance int
	}

	target = strings.ToLower(target)
	base := path.Base(target)

	var matches []match
	for _, c := range candidates {
		lc := strings.ToLower(c)
		d := levenshtein(target, lc)
		if bd := levenshtein(base, path.Base(lc)); bd < d {
			d = bd
		}
		if d <= maxSuggestDistance {
			matches = append(matches, match{value: c, distance: d})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].distance != matches[j].distance {
			return matches[i].distance < matches[j].distance
		}
		return matches[i].value < matches[j].value
	})

	result := make([]string, 0, maxSuggestions)
	for i := 0; i < len(matches) && i < maxSuggestions; i++ {
		result = append(result, matches[i].value)
	}
	return result
}

// levenshtein is the single-character edit distance between a and b
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}
	if b == "" {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
