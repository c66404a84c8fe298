// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package scraper

import (
	"strconv"
	"strings"

	"github.com/autobrr/ztdl/pkg/textmatch"
)

const (
	filmTitleThreshold   = 0.8
	seriesTitleThreshold = 0.9
	synopsisThreshold    = 0.6
	maxYearDrift         = 2
)

// Consolidate groups entries that refer to the same title. Each group is
// seeded by the first unclaimed entry and collects every later entry similar
// to that seed.
func Consolidate(ct ContentType, entries []*DetailedEntry) []*ConsolidatedEntry {
	similar := filmsSimilar
	if ct.Episodic() {
		similar = seriesSimilar
	}

	claimed := make([]bool, len(entries))
	out := make([]*ConsolidatedEntry, 0, len(entries))

	for i, seed := range entries {
		if claimed[i] || seed == nil {
			continue
		}
		claimed[i] = true

		group := []*DetailedEntry{seed}
		for j := i + 1; j < len(entries); j++ {
			if claimed[j] || entries[j] == nil {
				continue
			}
			if similar(seed, entries[j]) {
				claimed[j] = true
				group = append(group, entries[j])
			}
		}

		out = append(out, merge(ct, group))
	}

	return out
}

func merge(ct ContentType, group []*DetailedEntry) *ConsolidatedEntry {
	best := group[0]
	titles := make([]string, 0, len(group))
	seen := make(map[string]struct{}, len(group))
	links := newLinkMap(ct)

	for _, e := range group {
		if e.RelevanceScore > best.RelevanceScore {
			best = e
		}
		if _, ok := seen[e.Title]; !ok {
			seen[e.Title] = struct{}{}
			titles = append(titles, e.Title)
		}
		mergeLinks(&links, e.Links)
	}

	entry := &ConsolidatedEntry{
		Title:          best.Title,
		Image:          best.Image,
		Description:    best.Description,
		ReleaseYear:    best.ReleaseYear,
		RelevanceScore: best.RelevanceScore,
		SimilarTitles:  titles,
	}
	if !links.Empty() {
		entry.Details = &links
	}
	return entry
}

// mergeLinks copies src into dst. Later variants overwrite earlier ones; a
// season keeps the episode count of the entry that introduced it.
func mergeLinks(dst *LinkMap, src LinkMap) {
	if dst.Kind == KindFilm {
		for language, qualities := range src.Films {
			for quality, link := range qualities {
				dst.Films.set(language, quality, link)
			}
		}
		return
	}

	for key, season := range src.Seasons {
		if season == nil {
			continue
		}
		target, ok := dst.Seasons[key]
		if !ok {
			target = &SeasonDetails{Episodes: season.Episodes}
			dst.Seasons[key] = target
		}
		for language, qualities := range season.Versions {
			for quality, link := range qualities {
				target.set(language, quality, link)
			}
		}
	}
}

func filmsSimilar(a, b *DetailedEntry) bool {
	if titleSimilarity(a, b) < filmTitleThreshold {
		return false
	}

	if ya, okA := leadingInt(a.ReleaseYear); okA {
		if yb, okB := leadingInt(b.ReleaseYear); okB {
			diff := ya - yb
			if diff < 0 {
				diff = -diff
			}
			if diff > maxYearDrift {
				return false
			}
		}
	}

	if a.Description != "" && b.Description != "" {
		sim := textmatch.StringSimilarity(textmatch.Normalize(a.Description), textmatch.Normalize(b.Description))
		if sim < synopsisThreshold {
			return false
		}
	}

	return true
}

func seriesSimilar(a, b *DetailedEntry) bool {
	return titleSimilarity(a, b) >= seriesTitleThreshold
}

func titleSimilarity(a, b *DetailedEntry) float64 {
	return textmatch.StringSimilarity(textmatch.Normalize(a.Title), textmatch.Normalize(b.Title))
}

// leadingInt reads the integer prefix of s, so "2010 (USA)" yields 2010.
func leadingInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	start := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == start {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}
