// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package textmatch normalizes scraped titles and scores them against search queries.
package textmatch

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	trademarkSymbols = regexp.MustCompile(`[®©™℠℗]`)
	trademarkParens  = regexp.MustCompile(`(?i)\((tm|sm|r|c|p)\)`)
	punctuation      = regexp.MustCompile(`[()\[\]{}.:,'"_!?#/\\-]+`)
	trademarkWords   = regexp.MustCompile(`(?i)\b(tm|sm|r|c|p)\b`)
	whitespace       = regexp.MustCompile(`\s+`)

	seasonSuffix = regexp.MustCompile(`(?i)\s*-\s*Saison\s*\d+.*$`)
	seasonInLink = regexp.MustCompile(`(?i)saison(\d+)`)
)

func isCombiningMark(r rune) bool {
	return r >= 0x0300 && r <= 0x036f
}

func stripAccents(s string) string {
	// transform chains carry state, build one per call
	t := transform.Chain(norm.NFD, runes.Remove(runes.Predicate(isCombiningMark)))
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Normalize lowercases s, strips trademark symbols and accents, and collapses
// punctuation into single spaces.
func Normalize(s string) string {
	s = strings.ToLower(s)
	s = trademarkSymbols.ReplaceAllString(s, " ")
	s = trademarkParens.ReplaceAllString(s, " ")
	s = stripAccents(s)
	s = punctuation.ReplaceAllString(s, " ")
	s = trademarkWords.ReplaceAllString(s, " ")
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Tokens splits the normalized form of s on whitespace.
func Tokens(s string) []string {
	return strings.FieldsFunc(Normalize(s), unicode.IsSpace)
}

// StripSeason removes a trailing " - Saison N" marker and anything after it.
func StripSeason(title string) string {
	return strings.TrimSpace(seasonSuffix.ReplaceAllString(title, ""))
}

// SeasonFromLink returns the "saisonN" number encoded in a link, or "" when absent.
func SeasonFromLink(link string) string {
	m := seasonInLink.FindStringSubmatch(link)
	if m == nil {
		return ""
	}
	return m[1]
}
