// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains Prometheus metrics for the search pipeline
type Metrics struct {
	Searches       *prometheus.CounterVec
	SearchDuration *prometheus.HistogramVec
	PagesScraped   *prometheus.CounterVec
	DetailFailures *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Searches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ztdl_searches_total",
			Help: "Searches by content type and result",
		}, []string{"type", "result"}),
		SearchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ztdl_search_duration_seconds",
			Help:    "Time to scrape, enrich and consolidate one content type",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
		}, []string{"type"}),
		PagesScraped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ztdl_listing_pages_scraped_total",
			Help: "Listing pages fetched by content type",
		}, []string{"type"}),
		DetailFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ztdl_detail_failures_total",
			Help: "Detail pages that could not be fetched",
		}, []string{"type"}),
	}
}

func (m *Metrics) observeSearch(ct ContentType, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.Searches.WithLabelValues(string(ct), result).Inc()
	m.SearchDuration.WithLabelValues(string(ct)).Observe(elapsed.Seconds())
}

func (m *Metrics) pageScraped(ct ContentType) {
	if m == nil {
		return
	}
	m.PagesScraped.WithLabelValues(string(ct)).Inc()
}

func (m *Metrics) detailFailed(ct ContentType) {
	if m == nil {
		return
	}
	m.DetailFailures.WithLabelValues(string(ct)).Inc()
}
