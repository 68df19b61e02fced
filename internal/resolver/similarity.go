package resolver

import (
	"math"
	"strings"
)

// Ratio scores two strings 0..100 as 2*LCS/(len a + len b), the indel
// similarity. Identical strings score 100, an empty side scores 0.
func Ratio(a, b string) int {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 100
	}
	ra, rb := []rune(a), []rune(b)
	lcs := lcsLength(ra, rb)
	return int(math.Round(100 * float64(2*lcs) / float64(len(ra)+len(rb))))
}

func lcsLength(a, b []rune) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else {
				curr[j] = max(prev[j], curr[j-1])
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

var (
	noiseWords         = []string{"arcane", "prime", "scene", "set"}
	keptWords          = map[string]bool{"primed": true}
	blueprintKeepAfter = map[string]bool{"prime": true, "wraith": true, "vandal": true}
)

const (
	wordThreshold  = 80
	noiseThreshold = 80
)

// stripBlueprint lower-cases s and drops a trailing "blueprint" unless the
// item keeps it in its catalog name (Prime, Wraith and Vandal blueprints).
func stripBlueprint(s string) []string {
	words := strings.Fields(strings.ToLower(s))
	n := len(words)
	if n >= 2 && words[n-1] == "blueprint" && !blueprintKeepAfter[words[n-2]] {
		return words[:n-1]
	}
	return words
}

func isNoise(word string) bool {
	if keptWords[word] {
		return false
	}
	for _, nw := range noiseWords {
		if Ratio(word, nw) >= noiseThreshold {
			return true
		}
	}
	return false
}

// clean is applied to queries and candidate names alike.
func clean(s string) string {
	words := stripBlueprint(s)
	kept := words[:0]
	for _, w := range words {
		if !isNoise(w) {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}

// substituteWords replaces each query word with the target of the best
// matching word alias when that match scores at least 80.
func substituteWords(query string, aliases map[string]string) string {
	words := strings.Fields(strings.ToLower(query))
	for i, w := range words {
		best, bestScore := "", 0
		for word, target := range aliases {
			score := Ratio(w, word)
			if score > bestScore || (score == bestScore && score > 0 && target < best) {
				best, bestScore = target, score
			}
		}
		if bestScore >= wordThreshold {
			words[i] = best
		}
	}
	return strings.Join(words, " ")
}
