package textutil

import (
	"regexp"
	"strings"

	"github.com/antzucaro/matchr"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

func NormalizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.Trim(name, " \n\t")
	name = whitespaceRegex.ReplaceAllString(name, "")
	return name
}

// MatchName returns true if the normalized name contains any of the
// matchers, matchers are normalized the same way.
func MatchName(name string, matchers []string) bool {
	name = NormalizeName(name)
	for _, m := range matchers {
		if strings.Contains(name, NormalizeName(m)) {
			return true
		}
	}
	return false
}

// BestMatch returns the index of the candidate most similar to query by
// Jaro-Winkler distance and its score, -1 if there are no candidates.
func BestMatch(query string, candidates []string) (int, float64) {
	query = strings.ToLower(strings.TrimSpace(query))
	best := -1
	bestScore := 0.0
	for i, candidate := range candidates {
		candidate = strings.ToLower(strings.TrimSpace(candidate))
		score := matchr.JaroWinkler(query, candidate, false)
		if strings.Contains(candidate, query) && query != "" {
			score = max(score, 0.95)
		}
		if best < 0 || score > bestScore {
			best = i
			bestScore = score
		}
	}
	return best, bestScore
}
