// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package textmatch

import "strings"

const (
	shortTokenLen       = 3
	shortTokenThreshold = 0.9
	shortTokenWeight    = 0.8
	longTokenThreshold  = 0.85
	matchedRatioFloor   = 0.8
	partialPenalty      = 0.3
	prefixBonus         = 0.2
	noMatchScore        = 0.01
)

// LevenshteinDistance is the edit distance between a and b, counted in runes.
func LevenshteinDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)

	matrix := make([][]int, len(rb)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(ra)+1)
		matrix[i][0] = i
	}
	for j := 0; j <= len(ra); j++ {
		matrix[0][j] = j
	}

	for i := 1; i <= len(rb); i++ {
		for j := 1; j <= len(ra); j++ {
			if rb[i-1] == ra[j-1] {
				matrix[i][j] = matrix[i-1][j-1]
				continue
			}
			matrix[i][j] = 1 + min(matrix[i-1][j-1], matrix[i][j-1], matrix[i-1][j])
		}
	}

	return matrix[len(rb)][len(ra)]
}

// StringSimilarity maps the edit distance into [0,1], 1 meaning identical.
func StringSimilarity(a, b string) float64 {
	longer, shorter := a, b
	if len([]rune(a)) < len([]rune(b)) {
		longer, shorter = b, a
	}

	n := len([]rune(longer))
	if n == 0 {
		return 1.0
	}
	return float64(n-LevenshteinDistance(longer, shorter)) / float64(n)
}

// RelevanceScore rates how well title answers query, in [0,1].
//
// A query contained verbatim in the title scores 1. Otherwise each query token
// takes its best fuzzy match among the title tokens, short tokens needing a
// closer match than long ones. Queries where under 80% of the tokens matched
// are penalised and titles starting with the query get a bonus.
func RelevanceScore(query, title string) float64 {
	normQuery := Normalize(query)
	normTitle := Normalize(title)

	queryTokens := strings.Fields(normQuery)
	titleTokens := strings.Fields(normTitle)

	if len(queryTokens) == 0 {
		return 0
	}

	if strings.Contains(normTitle, normQuery) {
		return 1.0
	}

	var total float64
	matched := 0

	for _, qt := range queryTokens {
		best := 0.0
		for _, tt := range titleTokens {
			if qt == tt {
				best = 1.0
				break
			}

			sim := StringSimilarity(qt, tt)
			if len([]rune(qt)) <= shortTokenLen {
				if sim >= shortTokenThreshold {
					best = max(best, sim*shortTokenWeight)
				}
			} else if sim >= longTokenThreshold {
				best = max(best, sim)
			}
		}

		if best > 0 {
			total += best
			matched++
		}
	}

	if matched == 0 {
		return noMatchScore
	}

	score := total / float64(len(queryTokens))

	if float64(matched)/float64(len(queryTokens)) < matchedRatioFloor {
		score *= partialPenalty
	}

	if strings.HasPrefix(normTitle, normQuery) {
		score += prefixBonus
	}

	return min(1.0, score)
}

// MinListingScore is the score a listing title must reach to be kept for query.
func MinListingScore(query string) float64 {
	switch n := len(Tokens(query)); {
	case n >= 3:
		return 0.85
	case n == 2:
		return 0.8
	default:
		return 0.9
	}
}
