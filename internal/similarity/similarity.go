// Package similarity implements the character-LCS similarity kernel
// used by the three-way analyzer's fuzzy-match step.
package similarity

import "strings"

// DefaultThreshold is the default minimum similarity for an AIModified
// match, configurable via [analyzer].similarity_threshold.
const DefaultThreshold = 0.6

// prefilterRatio is the length-ratio cutoff below which Similarity returns 0
// without running the DP, bounding worst-case cost.
const prefilterRatio = 0.5

// Similarity returns the character-LCS similarity of a and b in [0,1]:
// 1.0 if equal, 0.0 if either is empty, else LCS length / max(len(a), len(b)).
// Both strings are whitespace-trimmed before comparison so indentation does
// not dominate the ratio. A length prefilter (min/max < 0.5) short-circuits
// to 0 without running the O(n*m) DP.
func Similarity(a, b string) float64 {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)

	if a == b {
		if a == "" {
			return 0
		}
		return 1
	}
	if a == "" || b == "" {
		return 0
	}

	la, lb := len([]rune(a)), len([]rune(b))
	minLen, maxLen := la, lb
	if minLen > maxLen {
		minLen, maxLen = maxLen, minLen
	}
	if float64(minLen)/float64(maxLen) < prefilterRatio {
		return 0
	}

	lcs := lcsLength(a, b)
	return float64(lcs) / float64(maxLen)
}

// lcsLength computes the length of the longest common subsequence of runes
// in a and b via the classic O(|a|*|b|) dynamic program.
func lcsLength(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	n, m := len(ra), len(rb)

	prev := make([]int, m+1)
	curr := make([]int, m+1)

	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			if ra[i-1] == rb[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[m]
}
