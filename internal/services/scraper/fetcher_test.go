// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package scraper

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"github.com/autobrr/ztdl/internal/services/sitefetch"
)

const testBaseURL = "https://zt.example/"

type staticSite string

func (s staticSite) CurrentBaseURL() string { return string(s) }

// fakeFetcher serves canned pages and answers 404 for anything else.
type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	calls map[string]int
}

func newFakeFetcher(pages map[string]string) *fakeFetcher {
	return &fakeFetcher{pages: pages, calls: make(map[string]int)}
}

func (f *fakeFetcher) Document(_ context.Context, url string) (*goquery.Document, error) {
	f.mu.Lock()
	f.calls[url]++
	body, ok := f.pages[url]
	f.mu.Unlock()

	if !ok {
		return nil, &sitefetch.StatusError{StatusCode: http.StatusNotFound, URL: url}
	}
	return goquery.NewDocumentFromReader(strings.NewReader(body))
}

func (f *fakeFetcher) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func newTestService(pages map[string]string, opts ...Option) (*Service, *fakeFetcher) {
	fetcher := newFakeFetcher(pages)
	return NewService(fetcher, staticSite(testBaseURL), opts...), fetcher
}

func mustDocument(html string) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		panic(err)
	}
	return doc
}

func listingCard(href, title string) string {
	return `<div class="cover_global"><img class="mainimg" src="/img/` + strings.ReplaceAll(title, " ", "-") + `.jpg">` +
		`<div class="cover_infos_title"><a href="` + href + `">` + title + `</a></div>` +
		`<time>12 mai 2003</time><span class="detail_release">BLU-RAY 1080p</span></div>`
}

func listingPage(pages int, cards ...string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, c := range cards {
		b.WriteString(c)
	}
	if pages > 1 {
		b.WriteString(`<div class="navigation" align="center">`)
		for i := 2; i <= pages; i++ {
			n := strconv.Itoa(i)
			b.WriteString(`<a href="?p=films&search=x&page=` + n + `">` + n + `</a>`)
		}
		b.WriteString(`</div>`)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func filmPage(current string, year string) string {
	return `<html><body>` +
		`<div style="color:red;font-weight:bold">` + current + `</div>` +
		`<div><strong>Année de production :</strong> ` + year + `</div>` +
		`</body></html>`
}
