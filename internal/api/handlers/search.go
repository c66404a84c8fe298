// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/ztdl/internal/services/scraper"
)

const (
	minSearchYear = 1950

	msgYearInvalid = "Invalid year parameter. Must be a valid year between 1950 and current year"
	msgTypeInvalid = "Invalid type parameter. Must be one of: films, series, mangas"
)

type Searcher interface {
	Search(ctx context.Context, query string, ct scraper.ContentType, year int) ([]*scraper.SearchResult, error)
	PageCounts(ctx context.Context, query string, year int) (*scraper.PageCounts, error)
}

// SiteRefresher re-resolves the indexing site's address before a search.
type SiteRefresher interface {
	Refresh(ctx context.Context)
}

type SearchHandler struct {
	searcher      Searcher
	site          SiteRefresher
	refreshBefore atomic.Bool
	now           func() time.Time
}

func NewSearchHandler(searcher Searcher, site SiteRefresher, refreshBeforeSearch bool) *SearchHandler {
	h := &SearchHandler{
		searcher: searcher,
		site:     site,
		now:      time.Now,
	}
	h.refreshBefore.Store(refreshBeforeSearch)
	return h
}

// SetRefreshBeforeSearch toggles the pre-flight site refresh. Safe for concurrent use.
func (h *SearchHandler) SetRefreshBeforeSearch(enabled bool) {
	h.refreshBefore.Store(enabled)
}

type SearchResponse struct {
	Success   bool                    `json:"success"`
	Query     string                  `json:"query"`
	Data      []*scraper.SearchResult `json:"data"`
	Timestamp time.Time               `json:"timestamp"`
}

type PageCountsResponse struct {
	Success bool                `json:"success"`
	Query   string              `json:"query"`
	Data    *scraper.PageCounts `json:"data"`
}

func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	query, ok := h.parseQuery(w, r)
	if !ok {
		return
	}

	var ct scraper.ContentType
	if raw := params.Get("type"); raw != "" {
		parsed, err := scraper.ParseContentType(raw)
		if err != nil {
			RespondError(w, http.StatusBadRequest, msgTypeInvalid)
			return
		}
		ct = parsed
	}

	year, ok := parseYear(params.Get("year"), h.now())
	if !ok {
		RespondError(w, http.StatusBadRequest, msgYearInvalid)
		return
	}

	if h.refreshBefore.Load() && h.site != nil {
		h.site.Refresh(r.Context())
	}

	log.Info().Str("query", query).Str("type", string(ct)).Int("year", year).Msg("search request received")

	results, err := h.searcher.Search(r.Context(), query, ct, year)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Debug().Str("query", query).Msg("search aborted by client")
			return
		}
		log.Error().Err(err).Str("query", query).Msg("search failed")
		RespondError(w, http.StatusInternalServerError, "Internal server error during search")
		return
	}

	RespondJSON(w, http.StatusOK, SearchResponse{
		Success:   true,
		Query:     query,
		Data:      results,
		Timestamp: h.now().UTC(),
	})
}

func (h *SearchHandler) PageCounts(w http.ResponseWriter, r *http.Request) {
	query, ok := h.parseQuery(w, r)
	if !ok {
		return
	}

	year, ok := parseYear(r.URL.Query().Get("year"), h.now())
	if !ok {
		RespondError(w, http.StatusBadRequest, msgYearInvalid)
		return
	}

	counts, err := h.searcher.PageCounts(r.Context(), query, year)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		log.Error().Err(err).Str("query", query).Msg("page count lookup failed")
		RespondError(w, http.StatusInternalServerError, "Failed to count result pages")
		return
	}

	RespondJSON(w, http.StatusOK, PageCountsResponse{Success: true, Query: query, Data: counts})
}

func (h *SearchHandler) parseQuery(w http.ResponseWriter, r *http.Request) (string, bool) {
	params := r.URL.Query()
	if !params.Has("query") {
		RespondError(w, http.StatusBadRequest, "Query parameter is required")
		return "", false
	}

	query := strings.TrimSpace(params.Get("query"))
	if query == "" {
		RespondError(w, http.StatusBadRequest, "Query cannot be empty")
		return "", false
	}
	return query, true
}

// parseYear returns 0 for an absent year.
func parseYear(raw string, now time.Time) (int, bool) {
	if raw == "" {
		return 0, true
	}

	year, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || year < minSearchYear || year > now.Year() {
		return 0, false
	}
	return year, true
}
