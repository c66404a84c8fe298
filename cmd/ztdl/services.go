// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/ztdl/internal/buildinfo"
	"github.com/autobrr/ztdl/internal/config"
	"github.com/autobrr/ztdl/internal/database"
	"github.com/autobrr/ztdl/internal/domain"
	"github.com/autobrr/ztdl/internal/metrics"
	"github.com/autobrr/ztdl/internal/models"
	"github.com/autobrr/ztdl/internal/services/alldebrid"
	"github.com/autobrr/ztdl/internal/services/availability"
	"github.com/autobrr/ztdl/internal/services/scraper"
	"github.com/autobrr/ztdl/internal/services/sitefetch"
	"github.com/autobrr/ztdl/internal/services/sitelocation"
)

// services is the wired application shared by the server and the one-shot commands.
type services struct {
	db           *database.DB
	tracker      *sitelocation.Tracker
	scraper      *scraper.Service
	debrid       *alldebrid.Client
	checker      *alldebrid.Checker
	availability *availability.Service

	closeOnce sync.Once
}

// newServices opens the database and builds every service. A nil metrics
// manager leaves the services uninstrumented.
func newServices(cfg *config.AppConfig, metricsManager *metrics.Manager, sink availability.Sink) (*services, error) {
	conf := cfg.Config

	db, err := database.New(cfg.GetDatabasePath())
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	var (
		trackerOpts      []sitelocation.Option
		scraperOpts      []scraper.Option
		checkerOpts      []alldebrid.CheckerOption
		availabilityOpts = []availability.Option{availability.WithSink(sink)}
	)
	if metricsManager != nil {
		reg := metricsManager.Registerer()
		trackerOpts = append(trackerOpts, sitelocation.WithMetrics(sitelocation.NewMetrics(reg)))
		scraperOpts = append(scraperOpts, scraper.WithMetrics(scraper.NewMetrics(reg)))
		checkerOpts = append(checkerOpts, alldebrid.WithCheckerMetrics(alldebrid.NewMetrics(reg)))
		availabilityOpts = append(availabilityOpts, availability.WithMetrics(availability.NewMetrics(reg)))
	}

	timeout := conf.RequestTimeout()

	trackerCfg := sitelocation.DefaultConfig()
	if conf.SiteURL != "" {
		trackerCfg.DefaultURL = conf.SiteURL
	}
	trackerCfg.CheckInterval = conf.SiteCheckInterval()

	tracker := sitelocation.NewTracker(trackerCfg, models.NewSiteLocationStore(db), sitefetch.NewClient(timeout), trackerOpts...)

	loadCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := tracker.Load(loadCtx); err != nil {
		log.Warn().Err(err).Msg("Failed to load stored site location, using default")
	}

	fetcher := newSiteFetcher(timeout, tracker.CurrentBaseURL)

	debrid := alldebrid.NewClient(conf.AllDebridAPIKey, timeout, alldebrid.WithBaseURL(conf.AllDebridBaseURL))
	checker := alldebrid.NewChecker(debrid, checkerConfig(conf), checkerOpts...)

	s := &services{
		db:           db,
		tracker:      tracker,
		scraper:      scraper.NewService(fetcher, tracker, scraperOpts...),
		debrid:       debrid,
		checker:      checker,
		availability: availability.NewService(fetcher, checker, availabilityOpts...),
	}

	cfg.RegisterReloadListener(func(conf *domain.Config) {
		tracker.SetCheckInterval(conf.SiteCheckInterval())
		checker.SetConfig(checkerConfig(conf))
	})

	log.Debug().
		Str("site", tracker.CurrentBaseURL()).
		Str("userAgent", buildinfo.UserAgent).
		Bool("debrid", debrid.Configured()).
		Msg("Services initialized")

	return s, nil
}

// newSiteFetcher builds the page fetcher shared by search and download pages.
// The site refuses requests whose Referer is not its current domain.
func newSiteFetcher(timeout time.Duration, baseURL func() string) *sitefetch.Client {
	return sitefetch.NewClient(timeout, sitefetch.WithReferer(baseURL))
}

func checkerConfig(conf *domain.Config) alldebrid.CheckerConfig {
	return alldebrid.CheckerConfig{
		RetryDelay: conf.UnlockRetryDelay(),
		MaxRetries: conf.UnlockMaxRetries,
	}
}

func (s *services) Close() {
	s.closeOnce.Do(func() {
		if err := s.db.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close database")
		}
	})
}
