// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package scraper

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const inceptionPage = `<html><body>
<div style="color:red; font-weight:bold">Blu-Ray 1080p | FRENCH</div>
<div class="otherversions">
	<a href="?p=film&id=2-inception"><span class="otherquality"><span style="color:#FE8903"><b>WEB-DL 720p</b></span> <span style="color:#03AAFE"><b>(VOSTFR)</b></span></span></a>
	<a href="?p=film&id=3-inception"><span class="otherquality"><span style="color:#FE8903"><b>Blu-Ray 1080p</b></span> <span style="color:#03AAFE"><b>(FRENCH)</b></span></span></a>
	<a href="?p=film&id=4-inception"><span class="otherquality"><span style="color:#FE8903"><b>4K</b></span> <span style="color:#03AAFE"><b>MULTI (TRUEFRENCH)</b></span></span></a>
	<a href="?p=film&id=5-inception"><span class="otherquality"><span style="color:#FE8903"><b>HDRip</b></span></span></a>
</div>
<div><img src="/img/synopsis.png"><em>Dom Cobb est un voleur expérimenté.</em></div>
<div><strong>Année de production :</strong> 2010</div>
</body></html>`

func TestScrapeFilmDetail(t *testing.T) {
	link := "https://zt.example/?p=film&id=1-inception"
	svc, _ := newTestService(map[string]string{link: inceptionPage})

	entry := svc.ScrapeFilmDetail(context.Background(), RawListingEntry{Title: "Inception", Link: link, Image: "img.jpg"}, "inception")
	require.NotNil(t, entry)

	assert.Equal(t, "Inception", entry.Title)
	assert.Equal(t, "img.jpg", entry.Image)
	assert.Equal(t, 1.0, entry.RelevanceScore)
	assert.Equal(t, "Dom Cobb est un voleur expérimenté.", entry.Description)
	assert.Equal(t, "2010", entry.ReleaseYear)

	films := entry.Links.Films
	require.Equal(t, KindFilm, entry.Links.Kind)
	assert.Len(t, films, 3)

	// the highlighted version is not replaced by the duplicate in the list
	assert.Equal(t, link, films["FRENCH"]["BLU-RAY_1080P"].Link)
	assert.Equal(t, "1080p", films["FRENCH"]["BLU-RAY_1080P"].Resolution)
	assert.Equal(t, "https://zt.example/?p=film&id=2-inception", films["VOSTFR"]["WEB-DL_720P"].Link)
	assert.Equal(t, "720p", films["VOSTFR"]["WEB-DL_720P"].Resolution)
	assert.Equal(t, "https://zt.example/?p=film&id=4-inception", films["TRUEFRENCH"]["4K"].Link)
}

func TestScrapeFilmDetailFailure(t *testing.T) {
	svc, _ := newTestService(nil)

	entry, ok := svc.scrapeFilmDetail(context.Background(), RawListingEntry{Title: "Inception", Link: "https://zt.example/missing"}, "inception")
	assert.False(t, ok)
	assert.Equal(t, "Inception", entry.Title)
	assert.Equal(t, 1.0, entry.RelevanceScore)
	assert.True(t, entry.Links.Empty())
}

func TestFilmLanguage(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"(VOSTFR)", "VOSTFR"},
		{"FRENCH", "FRENCH"},
		{"MULTI (TRUEFRENCH)", "TRUEFRENCH"},
		{"MULTI", "MULTI"},
		{" (french) ", "french"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, filmLanguage(tt.raw))
		})
	}
}

func TestParseProductionYearFallsBackToPageText(t *testing.T) {
	doc := mustDocument(`<html><body><p>Année de production : 1999 - Genre : Action</p></body></html>`)
	assert.Equal(t, "1999", parseProductionYear(doc))

	assert.Empty(t, parseProductionYear(mustDocument(`<p>nothing here</p>`)))
}

const (
	showSeason1 = "https://zt.example/?p=series&id=10-breaking-bad-saison1"
	showSeason2 = "https://zt.example/?p=series&id=11-breaking-bad-saison2"
	showVF      = "https://zt.example/?p=series&id=12-breaking-bad-saison1"
)

func showPages() map[string]string {
	return map[string]string{
		showSeason1: `<html><body>
<div style="color:red;font-weight:bold">VOSTFR HD</div>
<div class="otherversions">
	<a href="?p=series&id=11-breaking-bad-saison2"><span class="otherquality">Saison 2 <b>(VOSTFR HD)</b></span></a>
	<a href="?p=series&id=12-breaking-bad-saison1"><span class="otherquality"><b>(VF)</b></span></a>
	<a href="?p=series&id=13-breaking-bad-saison1"><span class="otherquality">Bonus</span></a>
</div>
<div><img src="/img/synopsis.png"><em>Un professeur de chimie.</em></div>
<div>10 Episodes | Saison 1</div>
<div><strong>Taille d'un episode :</strong> ~545 Mo</div>
</body></html>`,
		showSeason2: `<html><body><div>8 Episodes | Saison 2</div></body></html>`,
		showVF: `<html><body>
<a href="https://dl-protect.link/a?fn=Episode1">Episode 1</a>
<a href="https://dl-protect.link/b?fn=Episode2">Episode 2</a>
<a href="https://dl-protect.link/c?fn=Episode3">Episode 3</a>
<div><strong>Taille d’un épisode :</strong> 1.2 Go</div>
<div><strong>Année de production :</strong> 2008</div>
</body></html>`,
	}
}

func TestScrapeSeriesDetail(t *testing.T) {
	svc, _ := newTestService(showPages())

	item := RawListingEntry{Title: "Breaking Bad - Saison 1", Link: showSeason1}
	entry := svc.ScrapeSeriesDetail(context.Background(), item, "breaking bad", ContentSeries)
	require.NotNil(t, entry)

	assert.Equal(t, "Breaking Bad", entry.Title)
	assert.Equal(t, 1.0, entry.RelevanceScore)
	assert.Equal(t, "Un professeur de chimie.", entry.Description)
	assert.Equal(t, "2008", entry.ReleaseYear)

	seasons := entry.Links.Seasons
	require.Equal(t, KindSeries, entry.Links.Kind)
	assert.Equal(t, []string{"SAISON_1", "SAISON_2"}, seasons.Keys())

	s1 := seasons["SAISON_1"]
	assert.Equal(t, 10, s1.Episodes)
	assert.Equal(t, EpisodeLink{Link: showSeason1, FileSize: "~545 Mo"}, s1.Versions["VOSTFR"]["HD"])
	assert.Equal(t, EpisodeLink{Link: showVF, FileSize: "1.2 Go"}, s1.Versions["VF"]["NORMAL"])

	s2 := seasons["SAISON_2"]
	assert.Equal(t, 8, s2.Episodes)
	assert.Equal(t, EpisodeLink{Link: showSeason2}, s2.Versions["VOSTFR"]["HD"])
}

func TestScrapeSeriesDetailSkipsFailedVariants(t *testing.T) {
	pages := showPages()
	delete(pages, showSeason2)
	svc, _ := newTestService(pages)

	entry, ok := svc.scrapeSeriesDetail(context.Background(), RawListingEntry{Title: "Breaking Bad - Saison 1", Link: showSeason1}, "breaking bad", ContentSeries)
	require.True(t, ok)

	s2 := entry.Links.Seasons["SAISON_2"]
	require.NotNil(t, s2)
	assert.Zero(t, s2.Episodes)
	assert.Equal(t, showSeason2, s2.Versions["VOSTFR"]["HD"].Link)
}

func TestParseSeasonPageCountsEpisodeLinks(t *testing.T) {
	episodes, size := parseSeasonPage(mustDocument(showPages()[showVF]))
	assert.Equal(t, 3, episodes)
	assert.Equal(t, "1.2 Go", size)
}

func TestSeasonOneLink(t *testing.T) {
	seasons := Seasons{
		"SAISON_3": {Versions: map[string]map[string]EpisodeLink{"VF": {"HD": {Link: "s3"}}}},
		"SAISON_2": {Versions: map[string]map[string]EpisodeLink{
			"VOSTFR": {"HD": {Link: "s2-vostfr"}},
			"VF":     {"NORMAL": {Link: "s2-vf-normal"}, "HD": {Link: "s2-vf-hd"}},
		}},
	}
	assert.Equal(t, "s2-vf-hd", seasonOneLink(seasons))
	assert.Empty(t, seasonOneLink(Seasons{}))
}
