// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package availability

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
)

// HostPriority ranks file hosts from most to least reliable. Verification stops
// at the first host that unlocks.
var HostPriority = []string{
	"1fichier",
	"Uptobox",
	"Mega",
	"Rapidgator",
	"Nitroflare",
	"Turbobit",
	"Xubster",
	"DailyUploads",
	"Uploady",
	"Darkibox",
	"GoFile",
}

const (
	hostBlockSelector = ".postinfo"
	hostNameSelector  = `div[style*="font-weight:bold"]`
	protectedSelector = `a[href*="dl-protect.link"]`

	filmKey       = "film"
	episodePrefix = "episode_"
)

var episodeLabel = regexp.MustCompile(`(?i)episode\s*(\d+)`)

// HostLinks are the protected links one host offers on a download page.
type HostLinks struct {
	Film     string            `json:"link,omitempty"`
	Episodes map[string]string `json:"episodes,omitempty"`
}

// Link returns the link for an episode key, "film" for movies.
func (h *HostLinks) Link(key string) string {
	if h == nil {
		return ""
	}
	if key == filmKey {
		return h.Film
	}
	return h.Episodes[key]
}

// HostLinkMap maps host names to their links.
type HostLinkMap map[string]*HostLinks

// EpisodeKeys returns every episode key offered by any host, in numeric order.
func (m HostLinkMap) EpisodeKeys() []string {
	seen := make(map[string]struct{})
	for _, h := range m {
		for key := range h.Episodes {
			seen[key] = struct{}{}
		}
	}

	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	slices.SortFunc(keys, func(a, b string) int {
		return episodeNumber(a) - episodeNumber(b)
	})
	return keys
}

// EpisodeKey builds the key of episode n, as in "episode_3".
func EpisodeKey(n string) string {
	return episodePrefix + n
}

func episodeNumber(key string) int {
	var n int
	if _, err := fmt.Sscanf(strings.TrimPrefix(key, episodePrefix), "%d", &n); err != nil {
		return 0
	}
	return n
}

// ExtractHostLinks reads the protected links of a download page grouped by
// host. When targetEpisode is set only that episode is kept.
func (s *Service) ExtractHostLinks(ctx context.Context, pageURL, targetEpisode string) (HostLinkMap, error) {
	doc, err := s.fetcher.Document(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("scrape download links: %w", err)
	}
	hosts := parseHostLinks(doc, targetEpisode)
	log.Debug().Str("url", pageURL).Int("hosts", len(hosts)).Msg("availability: download links scraped")
	return hosts, nil
}

func parseHostLinks(doc *goquery.Document, targetEpisode string) HostLinkMap {
	hosts := make(HostLinkMap)

	doc.Find(hostBlockSelector).Each(func(_ int, block *goquery.Selection) {
		var current *HostLinks

		// descendants come back in document order, so each link belongs to the
		// last host name seen before it
		block.Find("*").Each(func(_ int, el *goquery.Selection) {
			if el.Is(hostNameSelector) {
				name := strings.TrimSpace(el.Text())
				if !slices.Contains(HostPriority, name) {
					// its links are dropped until the next known host
					current = nil
					log.Trace().Str("host", name).Msg("availability: ignoring unknown host")
					return
				}
				if hosts[name] == nil {
					hosts[name] = &HostLinks{}
				}
				current = hosts[name]
				return
			}

			if current == nil || !el.Is(protectedSelector) {
				return
			}

			href := el.AttrOr("href", "")
			label := strings.ToLower(strings.TrimSpace(el.Text()))
			if href == "" || strings.Contains(label, "partie") {
				return
			}

			switch {
			case strings.Contains(label, "télécharger") || strings.Contains(label, "telecharger"):
				current.Film = href
			case strings.Contains(label, "episode"):
				m := episodeLabel.FindStringSubmatch(label)
				if m == nil || (targetEpisode != "" && m[1] != targetEpisode) {
					return
				}
				if current.Episodes == nil {
					current.Episodes = make(map[string]string)
				}
				current.Episodes[EpisodeKey(m[1])] = href
			}
		})
	})

	return hosts
}
