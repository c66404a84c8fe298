// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package scraper

import (
	"context"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/ztdl/pkg/textmatch"
)

const (
	listingAnchorSelector = `a[href*="?p="][href*="id="]`
	paginationSelector    = `.navigation[align="center"]`
)

var (
	pageParam    = regexp.MustCompile(`page=(\d+)`)
	sectionParam = regexp.MustCompile(`(?i)[?&]p=([^&]+)`)
)

// SearchURL builds the listing URL of one section. Page 1 carries no page parameter.
func SearchURL(baseURL string, ct ContentType, query string, year, page int) string {
	var b strings.Builder
	b.WriteString(baseURL)
	b.WriteString("?p=")
	b.WriteString(string(ct))
	b.WriteString("&search=")
	b.WriteString(encodeQuery(query))
	if year > 0 {
		b.WriteString("&year=")
		b.WriteString(strconv.Itoa(year))
	}
	if page > 1 {
		b.WriteString("&page=")
		b.WriteString(strconv.Itoa(page))
	}
	return b.String()
}

// encodeQuery percent-encodes spaces as %20, which is what the site's own form sends.
func encodeQuery(q string) string {
	return strings.ReplaceAll(url.QueryEscape(q), "+", "%20")
}

// sectionOf extracts the "p" parameter from a possibly relative href.
func sectionOf(href string) string {
	m := sectionParam.FindStringSubmatch(href)
	if m == nil {
		return ""
	}
	v, err := url.PathUnescape(m[1])
	if err != nil {
		return m[1]
	}
	return v
}

// absoluteURL resolves href against the site root, which always ends with a slash.
func absoluteURL(baseURL, href string) string {
	if href == "" || strings.HasPrefix(href, "http") {
		return href
	}
	return baseURL + strings.TrimPrefix(href, "/")
}

func typeMatches(param string, ct ContentType) bool {
	return slices.Contains(ct.aliases(), strings.ToLower(param))
}

// ScrapePage returns the entries of one listing page relevant to query.
// Errors are logged and yield an empty list so sibling pages are unaffected.
func (s *Service) ScrapePage(ctx context.Context, pageURL string, ct ContentType, query string) []RawListingEntry {
	doc, err := s.fetcher.Document(ctx, pageURL)
	if err != nil {
		log.Error().Err(err).Str("url", pageURL).Msg("scraper: failed to scrape listing page")
		return []RawListingEntry{}
	}

	s.metrics.pageScraped(ct)

	entries := parseListing(doc, ct, query, s.site.CurrentBaseURL())
	log.Debug().Str("url", pageURL).Int("entries", len(entries)).Msg("scraper: listing page scraped")
	return entries
}

func parseListing(doc *goquery.Document, ct ContentType, query, baseURL string) []RawListingEntry {
	minScore := textmatch.MinListingScore(query)
	seen := make(map[string]struct{})
	entries := make([]RawListingEntry, 0)

	doc.Find(listingAnchorSelector).Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok || href == "" {
			return
		}

		p := sectionOf(href)
		if p == "" || !typeMatches(p, ct) {
			return
		}
		if _, dup := seen[href]; dup {
			return
		}

		title := strings.TrimSpace(a.Text())
		if utf8.RuneCountInString(title) <= 1 {
			return
		}

		// other seasons are discovered from the season 1 detail page
		if ct.Episodic() {
			if season := textmatch.SeasonFromLink(href); season != "" && season != "1" {
				return
			}
		}

		if textmatch.RelevanceScore(query, title) < minScore {
			return
		}

		container := a.Closest(".cover_global")
		image := absoluteURL(baseURL, container.Find("img.mainimg").AttrOr("src", ""))
		if image == "" {
			image = absoluteURL(baseURL, a.Find("img").AttrOr("src", ""))
		}

		entries = append(entries, RawListingEntry{
			Title:   title,
			Link:    absoluteURL(baseURL, href),
			Image:   image,
			Date:    strings.TrimSpace(container.Find("time").First().Text()),
			Version: strings.TrimSpace(container.Find(".detail_release").First().Text()),
		})
		seen[href] = struct{}{}
	})

	return entries
}

// TotalPages returns the number of listing pages for pageURL, 1 when unknown.
func (s *Service) TotalPages(ctx context.Context, pageURL string) int {
	doc, err := s.fetcher.Document(ctx, pageURL)
	if err != nil {
		log.Error().Err(err).Str("url", pageURL).Msg("scraper: failed to read pagination")
		return 1
	}
	return parseTotalPages(doc)
}

func parseTotalPages(doc *goquery.Document) int {
	nav := doc.Find(paginationSelector)
	if nav.Length() == 0 {
		return 1
	}

	maxPage := 1
	nav.Find(`a[href*="page="]`).Each(func(_ int, a *goquery.Selection) {
		m := pageParam.FindStringSubmatch(a.AttrOr("href", ""))
		if m == nil {
			return
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > maxPage {
			maxPage = n
		}
	})
	return maxPage
}
