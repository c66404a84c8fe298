// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package scraper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/autobrr/ztdl/internal/services/sitefetch"
)

// ErrAllDetailsFailed is returned when listing pages produced entries but none
// of their detail pages could be read.
var ErrAllDetailsFailed = errors.New("every detail page failed to load")

// BaseURLProvider yields the site root, with a trailing slash.
type BaseURLProvider interface {
	CurrentBaseURL() string
}

type Option func(*Service)

func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// Service searches the indexing site and turns its pages into consolidated results.
type Service struct {
	fetcher sitefetch.Fetcher
	site    BaseURLProvider
	metrics *Metrics
	now     func() time.Time
}

func NewService(fetcher sitefetch.Fetcher, site BaseURLProvider, opts ...Option) *Service {
	s := &Service{
		fetcher: fetcher,
		site:    site,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) SearchFilms(ctx context.Context, query string, year int) (*SearchResult, error) {
	return s.search(ctx, ContentFilms, query, year)
}

func (s *Service) SearchSeries(ctx context.Context, query string, year int) (*SearchResult, error) {
	return s.search(ctx, ContentSeries, query, year)
}

func (s *Service) SearchMangas(ctx context.Context, query string, year int) (*SearchResult, error) {
	return s.search(ctx, ContentMangas, query, year)
}

// SearchAll searches every section concurrently. Results come back in
// films, series, mangas order.
func (s *Service) SearchAll(ctx context.Context, query string, year int) ([]*SearchResult, error) {
	results := make([]*SearchResult, len(ContentTypes))

	g, gctx := errgroup.WithContext(ctx)
	for i, ct := range ContentTypes {
		i, ct := i, ct
		g.Go(func() error {
			res, err := s.search(gctx, ct, query, year)
			if err != nil {
				return fmt.Errorf("search %s: %w", ct, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Search searches one section, or all of them when ct is empty.
func (s *Service) Search(ctx context.Context, query string, ct ContentType, year int) ([]*SearchResult, error) {
	if ct == "" {
		return s.SearchAll(ctx, query, year)
	}
	res, err := s.search(ctx, ct, query, year)
	if err != nil {
		return nil, err
	}
	return []*SearchResult{res}, nil
}

func (s *Service) search(ctx context.Context, ct ContentType, query string, year int) (result *SearchResult, err error) {
	start := s.now()
	defer func() {
		s.metrics.observeSearch(ct, err, s.now().Sub(start))
	}()

	baseURL := s.site.CurrentBaseURL()
	firstPage := SearchURL(baseURL, ct, query, year, 1)

	totalPages := s.TotalPages(ctx, firstPage)
	log.Info().Str("type", string(ct)).Str("query", query).Int("year", year).Int("pages", totalPages).
		Msg("scraper: starting search")

	pages := make([][]RawListingEntry, totalPages)
	var pg errgroup.Group
	for i := 0; i < totalPages; i++ {
		i := i
		pg.Go(func() error {
			pages[i] = s.ScrapePage(ctx, SearchURL(baseURL, ct, query, year, i+1), ct, query)
			return nil
		})
	}
	_ = pg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var raw []RawListingEntry
	for _, entries := range pages {
		raw = append(raw, entries...)
	}

	details := make([]*DetailedEntry, len(raw))
	succeeded := make([]bool, len(raw))
	var dg errgroup.Group
	for i, item := range raw {
		i, item := i, item
		dg.Go(func() error {
			if ct.Episodic() {
				details[i], succeeded[i] = s.scrapeSeriesDetail(ctx, item, query, ct)
			} else {
				details[i], succeeded[i] = s.scrapeFilmDetail(ctx, item, query)
			}
			return nil
		})
	}
	_ = dg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(raw) > 0 && !anyTrue(succeeded) {
		return nil, ErrAllDetailsFailed
	}

	consolidated := Consolidate(ct, details)
	sort.SliceStable(consolidated, func(i, j int) bool {
		return consolidated[i].RelevanceScore > consolidated[j].RelevanceScore
	})

	log.Info().Str("type", string(ct)).Int("raw", len(raw)).Int("results", len(consolidated)).
		Msg("scraper: search complete")

	return &SearchResult{Type: ct, Results: consolidated}, nil
}

func anyTrue(values []bool) bool {
	for _, v := range values {
		if v {
			return true
		}
	}
	return false
}

// PageCounts reports how many listing pages each section has for query.
func (s *Service) PageCounts(ctx context.Context, query string, year int) (*PageCounts, error) {
	baseURL := s.site.CurrentBaseURL()
	counts := make([]int, len(ContentTypes))

	var g errgroup.Group
	for i, ct := range ContentTypes {
		i, ct := i, ct
		g.Go(func() error {
			counts[i] = s.TotalPages(ctx, SearchURL(baseURL, ct, query, year, 1))
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &PageCounts{Films: counts[0], Series: counts[1], Mangas: counts[2]}, nil
}
