// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package scraper

import (
	"bytes"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"strings"
)

// ContentType is the indexing site's catalogue section.
type ContentType string

const (
	ContentFilms  ContentType = "films"
	ContentSeries ContentType = "series"
	ContentMangas ContentType = "mangas"
)

// ContentTypes lists every section in the order searchAll reports them.
var ContentTypes = []ContentType{ContentFilms, ContentSeries, ContentMangas}

// ErrInvalidContentType is returned by ParseContentType.
var ErrInvalidContentType = errors.New("invalid type parameter. Must be one of: films, series, mangas")

// ParseContentType accepts the section name in any case.
func ParseContentType(s string) (ContentType, error) {
	switch ct := ContentType(strings.ToLower(strings.TrimSpace(s))); ct {
	case ContentFilms, ContentSeries, ContentMangas:
		return ct, nil
	default:
		return "", ErrInvalidContentType
	}
}

// Episodic reports whether entries of this type are organised in seasons.
func (ct ContentType) Episodic() bool {
	return ct == ContentSeries || ct == ContentMangas
}

// aliases are the values of the site's "p" parameter that belong to the section.
func (ct ContentType) aliases() []string {
	switch ct {
	case ContentFilms:
		return []string{"film", "films"}
	case ContentSeries:
		return []string{"serie", "series"}
	case ContentMangas:
		return []string{"manga", "mangas"}
	}
	return nil
}

// RawListingEntry is one search result as shown on a listing page.
type RawListingEntry struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Image   string `json:"image,omitempty"`
	Date    string `json:"date,omitempty"`
	Version string `json:"version,omitempty"`
}

// VersionLink is the page holding one language/quality variant of a film.
type VersionLink struct {
	Link       string `json:"link"`
	Resolution string `json:"resolution,omitempty"`
	Source     string `json:"source,omitempty"`
}

// FilmVersions maps language -> quality -> link.
type FilmVersions map[string]map[string]VersionLink

func (v FilmVersions) set(language, quality string, link VersionLink) {
	if v[language] == nil {
		v[language] = make(map[string]VersionLink)
	}
	v[language][quality] = link
}

func (v FilmVersions) has(language, quality string) bool {
	_, ok := v[language][quality]
	return ok
}

// EpisodeLink is the page of one language/quality variant of a season.
type EpisodeLink struct {
	Link     string `json:"link"`
	FileSize string `json:"fileSize,omitempty"`
}

// SeasonDetails holds every variant of one season.
type SeasonDetails struct {
	Episodes int                               `json:"episodes,omitempty"`
	Versions map[string]map[string]EpisodeLink `json:"versions"`
}

func (s *SeasonDetails) set(language, quality string, link EpisodeLink) {
	if s.Versions == nil {
		s.Versions = make(map[string]map[string]EpisodeLink)
	}
	if s.Versions[language] == nil {
		s.Versions[language] = make(map[string]EpisodeLink)
	}
	s.Versions[language][quality] = link
}

// Seasons maps "SAISON_<n>" keys to their details.
type Seasons map[string]*SeasonDetails

// SeasonKey builds the map key for season n.
func SeasonKey(n int) string {
	return "SAISON_" + strconv.Itoa(n)
}

func seasonNumber(key string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(strings.ToUpper(key), "SAISON_"))
	if err != nil {
		return 0
	}
	return n
}

// Keys returns the season keys in numeric order.
func (s Seasons) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.SliceStable(keys, func(i, j int) bool {
		a, b := seasonNumber(keys[i]), seasonNumber(keys[j])
		if a != b {
			return a < b
		}
		return keys[i] < keys[j]
	})
	return keys
}

// MarshalJSON writes seasons in numeric order rather than Go's lexical map order.
func (s Seasons) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range s.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(s[key])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// LinkKind tells which half of a LinkMap is populated.
type LinkKind int

const (
	KindFilm LinkKind = iota
	KindSeries
)

// LinkMap is the download structure of an entry: language/quality variants for
// films, seasons of variants for series and mangas.
type LinkMap struct {
	Kind    LinkKind
	Films   FilmVersions
	Seasons Seasons
}

func newLinkMap(ct ContentType) LinkMap {
	if ct.Episodic() {
		return LinkMap{Kind: KindSeries, Seasons: make(Seasons)}
	}
	return LinkMap{Kind: KindFilm, Films: make(FilmVersions)}
}

// Empty reports whether no downloadable variant was found.
func (m LinkMap) Empty() bool {
	if m.Kind == KindSeries {
		return len(m.Seasons) == 0
	}
	return len(m.Films) == 0
}

func (m LinkMap) MarshalJSON() ([]byte, error) {
	if m.Kind == KindSeries {
		if m.Seasons == nil {
			return []byte("{}"), nil
		}
		return m.Seasons.MarshalJSON()
	}
	if m.Films == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m.Films)
}

// DetailedEntry is a listing entry enriched with its detail page.
type DetailedEntry struct {
	Title          string  `json:"title"`
	Link           string  `json:"link"`
	Image          string  `json:"image,omitempty"`
	Description    string  `json:"description,omitempty"`
	ReleaseYear    string  `json:"release_date,omitempty"`
	RelevanceScore float64 `json:"relevanceScore"`
	Links          LinkMap `json:"details"`
}

// ConsolidatedEntry is one title after grouping the listings that refer to it.
type ConsolidatedEntry struct {
	Title          string   `json:"title"`
	Image          string   `json:"image,omitempty"`
	Description    string   `json:"description,omitempty"`
	ReleaseYear    string   `json:"release_date,omitempty"`
	Details        *LinkMap `json:"details,omitempty"`
	RelevanceScore float64  `json:"relevanceScore"`
	SimilarTitles  []string `json:"similarTitles"`
}

// SearchResult is the ranked result set of one section.
type SearchResult struct {
	Type    ContentType          `json:"type"`
	Results []*ConsolidatedEntry `json:"results"`
}

// PageCounts is the number of listing pages per section for a query.
type PageCounts struct {
	Films  int `json:"films"`
	Series int `json:"series"`
	Mangas int `json:"mangas"`
}
