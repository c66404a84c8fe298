// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package scraper

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/moistari/rls"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/autobrr/ztdl/pkg/textmatch"
)

const (
	currentVersionSelector = `div[style*="color:red"][style*="font-weight:bold"]`
	otherVersionsSelector  = `.otherversions a`
	synopsisMarkerSelector = `img[src*="synopsis.png"]`
	filmQualitySelector    = `.otherquality span[style*="color:#FE8903"] b`
	filmLanguageSelector   = `.otherquality span[style*="color:#03AAFE"] b`
	episodeLinkSelector    = `a[href*="dl-protect.link"][href*="Episode"]`

	unknownLanguage = "UNKNOWN"
	qualityHD       = "HD"
	qualityNormal   = "NORMAL"
)

var (
	filmVersionPattern   = regexp.MustCompile(`(?i)([A-Z0-9\-\s]+)\s*\|\s*([A-Z]+)`)
	multiLanguagePattern = regexp.MustCompile(`(?i)MULTI\s*\(([^)]+)\)`)
	productionYearHTML   = regexp.MustCompile(`(?i)Année de production\s*:</strong>\s*([^<]+)`)
	productionYearText   = regexp.MustCompile(`(?i)Année de production\s*:\s*(\d{4})`)

	seriesLanguagePattern = regexp.MustCompile(`(?i)^([A-Z]+)(?:\s*HD\d*)?`)
	otherSeasonPattern    = regexp.MustCompile(`(?i)Saison\s*(\d+)\s*\(([A-Z\s]+)\)`)
	sameSeasonPattern     = regexp.MustCompile(`(?i)\(([A-Z\s]+)\)`)
	languageQuality       = regexp.MustCompile(`(?i)^([A-Z]+)(?:\s+(HD))?$`)

	episodeCountPattern = regexp.MustCompile(`(?i)(\d+)\s*Episodes?\s*\|\s*Saison\s*\d+`)
	episodeSizePattern  = regexp.MustCompile(`(?i)Taille d['’][^:]*:\s*(~?\d+(?:\.\d+)?\s*[KMG]o)`)
)

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// qualityKey turns "Blu-Ray 1080p" into "BLU-RAY_1080P".
func qualityKey(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), "_"))
}

// describeQuality reads resolution and source from a quality key like "WEB-DL_1080P".
func describeQuality(link, quality string) VersionLink {
	release := rls.ParseString("Film." + strings.ToLower(strings.ReplaceAll(quality, "_", ".")))
	return VersionLink{
		Link:       link,
		Resolution: release.Resolution,
		Source:     release.Source,
	}
}

// ScrapeFilmDetail fetches a film page. Errors are logged and produce an entry
// without links.
func (s *Service) ScrapeFilmDetail(ctx context.Context, item RawListingEntry, query string) *DetailedEntry {
	entry, _ := s.scrapeFilmDetail(ctx, item, query)
	return entry
}

func (s *Service) scrapeFilmDetail(ctx context.Context, item RawListingEntry, query string) (*DetailedEntry, bool) {
	entry := &DetailedEntry{
		Title:          item.Title,
		Link:           item.Link,
		Image:          item.Image,
		RelevanceScore: textmatch.RelevanceScore(query, item.Title),
		Links:          newLinkMap(ContentFilms),
	}

	doc, err := s.fetcher.Document(ctx, item.Link)
	if err != nil {
		log.Error().Err(err).Str("title", item.Title).Msg("scraper: failed to scrape film details")
		s.metrics.detailFailed(ContentFilms)
		return entry, false
	}

	entry.Links.Films = parseFilmVersions(doc, item.Link, s.site.CurrentBaseURL())
	entry.Description = parseSynopsis(doc)
	entry.ReleaseYear = parseProductionYear(doc)
	return entry, true
}

func parseFilmVersions(doc *goquery.Document, pageLink, baseURL string) FilmVersions {
	versions := make(FilmVersions)

	current := strings.TrimSpace(doc.Find(currentVersionSelector).Text())
	if m := filmVersionPattern.FindStringSubmatch(current); m != nil {
		quality := qualityKey(m[1])
		language := strings.ToUpper(strings.TrimSpace(m[2]))
		versions.set(language, quality, describeQuality(pageLink, quality))
	}

	doc.Find(otherVersionsSelector).Each(func(_ int, a *goquery.Selection) {
		href := a.AttrOr("href", "")
		if href == "" {
			return
		}
		qualitySel := a.Find(filmQualitySelector)
		languageSel := a.Find(filmLanguageSelector)
		if qualitySel.Length() == 0 || languageSel.Length() == 0 {
			return
		}

		quality := qualityKey(qualitySel.Text())
		language := filmLanguage(languageSel.Text())

		// the highlighted version wins over a duplicate listed below it
		if versions.has(language, quality) {
			return
		}
		versions.set(language, quality, describeQuality(absoluteURL(baseURL, href), quality))
	})

	return versions
}

// filmLanguage maps "(VOSTFR)" to VOSTFR and "MULTI (TRUEFRENCH)" to TRUEFRENCH.
func filmLanguage(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.Contains(strings.ToUpper(raw), "MULTI") {
		if m := multiLanguagePattern.FindStringSubmatch(raw); m != nil {
			return strings.TrimSpace(m[1])
		}
		return "MULTI"
	}
	return strings.TrimSpace(strings.NewReplacer("(", "", ")", "").Replace(raw))
}

func parseSynopsis(doc *goquery.Document) string {
	marker := doc.Find(synopsisMarkerSelector)
	if marker.Length() == 0 {
		return ""
	}
	return strings.TrimSpace(marker.Parent().Find("em").First().Text())
}

func parseProductionYear(doc *goquery.Document) string {
	var year string
	doc.Find("strong").Each(func(_ int, el *goquery.Selection) {
		if !strings.Contains(strings.ToLower(strings.TrimSpace(el.Text())), "année de production") {
			return
		}
		parentHTML, err := el.Parent().Html()
		if err != nil {
			return
		}
		if m := productionYearHTML.FindStringSubmatch(parentHTML); m != nil {
			year = strings.TrimSpace(m[1])
		}
	})
	if year != "" {
		return year
	}
	return productionYearFallback(doc)
}

func productionYearFallback(doc *goquery.Document) string {
	if m := productionYearText.FindStringSubmatch(doc.Text()); m != nil {
		return m[1]
	}
	return ""
}

// ScrapeSeriesDetail fetches the season 1 page of a show, discovers its other
// seasons and variants, then reads episode counts and sizes from every variant
// page in parallel. Errors on the main page produce an entry without links.
func (s *Service) ScrapeSeriesDetail(ctx context.Context, item RawListingEntry, query string, ct ContentType) *DetailedEntry {
	entry, _ := s.scrapeSeriesDetail(ctx, item, query, ct)
	return entry
}

func (s *Service) scrapeSeriesDetail(ctx context.Context, item RawListingEntry, query string, ct ContentType) (*DetailedEntry, bool) {
	title := textmatch.StripSeason(item.Title)
	entry := &DetailedEntry{
		Title:          title,
		Link:           item.Link,
		Image:          item.Image,
		RelevanceScore: textmatch.RelevanceScore(query, title),
		Links:          newLinkMap(ct),
	}

	doc, err := s.fetcher.Document(ctx, item.Link)
	if err != nil {
		log.Error().Err(err).Str("title", item.Title).Msg("scraper: failed to scrape series details")
		s.metrics.detailFailed(ct)
		return entry, false
	}

	seasons := parseSeasons(doc, item.Link, s.site.CurrentBaseURL())
	s.fillSeasonDetails(ctx, seasons)

	entry.Links.Seasons = seasons
	entry.Description = parseSynopsis(doc)
	if link := seasonOneLink(seasons); link != "" {
		entry.ReleaseYear = s.seasonReleaseYear(ctx, link)
	}
	return entry, true
}

func parseSeasons(doc *goquery.Document, pageLink, baseURL string) Seasons {
	seasons := make(Seasons)
	season := func(n string) *SeasonDetails {
		num, err := strconv.Atoi(n)
		if err != nil {
			return nil
		}
		key := SeasonKey(num)
		if seasons[key] == nil {
			seasons[key] = &SeasonDetails{}
		}
		return seasons[key]
	}

	currentSeason := textmatch.SeasonFromLink(pageLink)

	current := strings.TrimSpace(doc.Find(currentVersionSelector).Text())
	currentLanguage := unknownLanguage
	if m := seriesLanguagePattern.FindStringSubmatch(current); m != nil {
		currentLanguage = strings.ToUpper(m[1])
	}
	currentQuality := qualityNormal
	if strings.Contains(current, qualityHD) {
		currentQuality = qualityHD
	}
	if currentSeason != "" {
		if sd := season(currentSeason); sd != nil {
			sd.set(currentLanguage, currentQuality, EpisodeLink{Link: pageLink})
		}
	}

	doc.Find(otherVersionsSelector).Each(func(_ int, a *goquery.Selection) {
		href := a.AttrOr("href", "")
		label := a.Find(".otherquality")
		if href == "" || label.Length() == 0 {
			return
		}
		text := collapseSpaces(label.Text())

		var seasonNum, variant string
		if m := otherSeasonPattern.FindStringSubmatch(text); m != nil {
			seasonNum, variant = m[1], m[2]
		} else if m := sameSeasonPattern.FindStringSubmatch(text); m != nil && currentSeason != "" {
			seasonNum, variant = currentSeason, m[1]
		} else {
			return
		}

		lq := languageQuality.FindStringSubmatch(strings.TrimSpace(variant))
		if lq == nil {
			return
		}
		quality := qualityNormal
		if lq[2] != "" {
			quality = strings.ToUpper(lq[2])
		}
		if sd := season(seasonNum); sd != nil {
			sd.set(strings.ToUpper(lq[1]), quality, EpisodeLink{Link: absoluteURL(baseURL, href)})
		}
	})

	return seasons
}

// fillSeasonDetails fetches every variant page and records episode counts and
// per-episode sizes. A failed fetch only loses that variant's details.
func (s *Service) fillSeasonDetails(ctx context.Context, seasons Seasons) {
	type variant struct {
		season            *SeasonDetails
		key               string
		language, quality string
		link              EpisodeLink
	}

	var variants []variant
	for key, sd := range seasons {
		for language, qualities := range sd.Versions {
			for quality, link := range qualities {
				variants = append(variants, variant{season: sd, key: key, language: language, quality: quality, link: link})
			}
		}
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for _, v := range variants {
		v := v
		g.Go(func() error {
			doc, err := s.fetcher.Document(ctx, v.link.Link)
			if err != nil {
				log.Error().Err(err).Str("season", v.key).Str("language", v.language).Str("quality", v.quality).
					Msg("scraper: failed to read season details")
				return nil
			}
			episodes, size := parseSeasonPage(doc)

			mu.Lock()
			defer mu.Unlock()
			// variants may disagree, the highest count is kept
			if episodes > v.season.Episodes {
				v.season.Episodes = episodes
			}
			if size != "" {
				v.link.FileSize = size
				v.season.Versions[v.language][v.quality] = v.link
			}
			return nil
		})
	}

	_ = g.Wait()
}

func parseSeasonPage(doc *goquery.Document) (episodes int, fileSize string) {
	doc.Find("div").Each(func(_ int, el *goquery.Selection) {
		if m := episodeCountPattern.FindStringSubmatch(strings.TrimSpace(el.Text())); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				episodes = n
			}
		}
	})

	doc.Find("strong").Each(func(_ int, el *goquery.Selection) {
		text := strings.TrimSpace(el.Text())
		if !strings.Contains(text, "Taille d'un episode") && !strings.Contains(text, "Taille d'un épisode") &&
			!strings.Contains(text, "Taille d’un episode") && !strings.Contains(text, "Taille d’un épisode") {
			return
		}
		if m := episodeSizePattern.FindStringSubmatch(strings.TrimSpace(el.Parent().Text())); m != nil {
			fileSize = strings.TrimSpace(m[1])
		}
	})

	if episodes == 0 {
		episodes = doc.Find(episodeLinkSelector).Length()
	}
	return episodes, fileSize
}

// seasonOneLink picks the lowest season's first variant in sorted key order.
func seasonOneLink(seasons Seasons) string {
	keys := seasons.Keys()
	if len(keys) == 0 {
		return ""
	}
	sd := seasons[keys[0]]
	if sd == nil || len(sd.Versions) == 0 {
		return ""
	}

	languages := sortedKeys(sd.Versions)
	qualities := sortedKeys(sd.Versions[languages[0]])
	if len(qualities) == 0 {
		return ""
	}
	return sd.Versions[languages[0]][qualities[0]].Link
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *Service) seasonReleaseYear(ctx context.Context, link string) string {
	doc, err := s.fetcher.Document(ctx, link)
	if err != nil {
		log.Debug().Err(err).Str("url", link).Msg("scraper: failed to read production year")
		return ""
	}

	var year string
	doc.Find("strong").Each(func(_ int, el *goquery.Selection) {
		if !strings.Contains(el.Text(), "Année de production") {
			return
		}
		if m := productionYearText.FindStringSubmatch(strings.TrimSpace(el.Parent().Text())); m != nil {
			year = m[1]
		}
	})
	if year != "" {
		return year
	}
	return productionYearFallback(doc)
}
