// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package sitelocation follows the indexing site across domain changes.
package sitelocation

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/avast/retry-go"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/autobrr/ztdl/internal/models"
	"github.com/autobrr/ztdl/internal/services/sitefetch"
)

const announcementSelector = `h2 span[style*="font-weight:bold"][style*="color:red"][style*="font-size: 110%"]`

var (
	fullURLPattern    = regexp.MustCompile(`https?://[^\s]+`)
	bareDomainPattern = regexp.MustCompile(`zone-telechargement\.[a-zA-Z0-9.-]+`)
)

// Store persists the tracked location.
type Store interface {
	Get(ctx context.Context) (*models.SiteLocation, error)
	Save(ctx context.Context, loc *models.SiteLocation) error
}

// Config controls the background check cadence and health classification.
type Config struct {
	DefaultURL       string
	CheckInterval    time.Duration
	HealthyThreshold time.Duration
	FetchAttempts    uint
	FetchRetryDelay  time.Duration
}

// DefaultConfig returns sane defaults.
func DefaultConfig() Config {
	return Config{
		DefaultURL:       "https://zone-telechargement.diy/",
		CheckInterval:    30 * time.Minute,
		HealthyThreshold: 10 * time.Second,
		FetchAttempts:    2,
		FetchRetryDelay:  time.Second,
	}
}

// Status is the tracked location as exposed to API consumers.
type Status struct {
	CurrentURL   string     `json:"currentUrl"`
	URLHistory   []string   `json:"urlHistory"`
	LastChecked  *time.Time `json:"lastChecked"`
	ResponseTime int64      `json:"responseTime"`
	IsHealthy    bool       `json:"isHealthy"`
}

type Option func(*Tracker)

func WithMetrics(m *Metrics) Option {
	return func(t *Tracker) {
		t.metrics = m
	}
}

// Tracker owns the current base URL of the indexing site. Refresh is the only writer.
type Tracker struct {
	cfg     Config
	store   Store
	fetcher sitefetch.Fetcher
	metrics *Metrics
	group   singleflight.Group
	now     func() time.Time

	mu       sync.RWMutex
	current  string
	interval time.Duration
	reset    chan struct{}
}

func NewTracker(cfg Config, store Store, fetcher sitefetch.Fetcher, opts ...Option) *Tracker {
	def := DefaultConfig()
	if cfg.DefaultURL == "" {
		cfg.DefaultURL = def.DefaultURL
	}
	if cfg.HealthyThreshold <= 0 {
		cfg.HealthyThreshold = def.HealthyThreshold
	}
	if cfg.FetchAttempts == 0 {
		cfg.FetchAttempts = def.FetchAttempts
	}
	if cfg.FetchRetryDelay <= 0 {
		cfg.FetchRetryDelay = def.FetchRetryDelay
	}

	t := &Tracker{
		cfg:      cfg,
		store:    store,
		fetcher:  fetcher,
		now:      time.Now,
		current:  ensureTrailingSlash(cfg.DefaultURL),
		interval: cfg.CheckInterval,
		reset:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// CurrentBaseURL returns the site root, always ending with a slash.
func (t *Tracker) CurrentBaseURL() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}

func (t *Tracker) setCurrent(u string) {
	t.mu.Lock()
	t.current = ensureTrailingSlash(u)
	t.mu.Unlock()
}

// Load primes the in-memory URL from the store. A missing record keeps the default.
func (t *Tracker) Load(ctx context.Context) error {
	loc, err := t.store.Get(ctx)
	if errors.Is(err, models.ErrSiteLocationNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	t.setCurrent(loc.CurrentURL)
	return nil
}

func (t *Tracker) loadOrDefault(ctx context.Context) *models.SiteLocation {
	loc, err := t.store.Get(ctx)
	if err == nil {
		return loc
	}
	if !errors.Is(err, models.ErrSiteLocationNotFound) {
		log.Warn().Err(err).Msg("sitelocation: failed to load record, using in-memory location")
	}
	return &models.SiteLocation{CurrentURL: t.CurrentBaseURL()}
}

// Refresh checks the site's announcement banner for a new domain. Failures are logged
// and the previous location stays in use. Concurrent calls share one check.
func (t *Tracker) Refresh(ctx context.Context) {
	_, _, _ = t.group.Do("refresh", func() (any, error) {
		t.refresh(ctx)
		return nil, nil
	})
}

func (t *Tracker) refresh(ctx context.Context) {
	loc := t.loadOrDefault(ctx)
	current := ensureTrailingSlash(loc.CurrentURL)

	var (
		doc     *goquery.Document
		elapsed time.Duration
	)
	err := retry.Do(
		func() error {
			start := t.now()
			d, err := t.fetcher.Document(ctx, current)
			if err != nil {
				return err
			}
			doc, elapsed = d, t.now().Sub(start)
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(t.cfg.FetchAttempts),
		retry.Delay(t.cfg.FetchRetryDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isRetryable),
	)
	if err != nil {
		t.metrics.observeRefresh("error", 0)
		log.Warn().Err(err).Str("url", current).Msg("sitelocation: check failed, keeping current location")
		return
	}

	relocated := false
	if found := ExtractAnnouncedURL(doc); found != "" {
		found = ensureTrailingSlash(found)
		if found != current {
			log.Info().Str("from", current).Str("to", found).Msg("sitelocation: site moved")
			loc.URLHistory = append(loc.URLHistory, current)
			current = found
			relocated = true
		}
	}

	checkedAt := t.now().UTC()
	loc.CurrentURL = current
	loc.LastCheckedAt = &checkedAt
	loc.ResponseTimeMs = elapsed.Milliseconds()

	if err := t.store.Save(ctx, loc); err != nil {
		log.Error().Err(err).Msg("sitelocation: failed to save location")
	}
	t.setCurrent(current)

	result := "unchanged"
	if relocated {
		result = "relocated"
	}
	t.metrics.observeRefresh(result, elapsed)
	log.Debug().Str("url", current).Dur("responseTime", elapsed).Bool("relocated", relocated).Msg("sitelocation: check complete")
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *sitefetch.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= http.StatusInternalServerError || statusErr.StatusCode == http.StatusTooManyRequests
	}
	return true
}

// ExtractAnnouncedURL reads the new domain from the home page banner, "" when absent.
func ExtractAnnouncedURL(doc *goquery.Document) string {
	text := strings.TrimSpace(doc.Find(announcementSelector).First().Text())
	if text == "" {
		return ""
	}
	if m := fullURLPattern.FindString(text); m != "" {
		return m
	}
	if m := bareDomainPattern.FindString(text); m != "" {
		return "https://" + m
	}
	return ""
}

// Status returns the persisted record, or models.ErrSiteLocationNotFound before the first check.
func (t *Tracker) Status(ctx context.Context) (*Status, error) {
	loc, err := t.store.Get(ctx)
	if err != nil {
		return nil, err
	}

	history := loc.URLHistory
	if history == nil {
		history = []string{}
	}
	threshold := t.cfg.HealthyThreshold.Milliseconds()

	return &Status{
		CurrentURL:   ensureTrailingSlash(loc.CurrentURL),
		URLHistory:   history,
		LastChecked:  loc.LastCheckedAt,
		ResponseTime: loc.ResponseTimeMs,
		IsHealthy:    loc.ResponseTimeMs > 0 && loc.ResponseTimeMs < threshold,
	}, nil
}

// SetCheckInterval changes the background cadence; zero pauses the loop.
func (t *Tracker) SetCheckInterval(d time.Duration) {
	t.mu.Lock()
	changed := t.interval != d
	t.interval = d
	t.mu.Unlock()

	if changed {
		select {
		case t.reset <- struct{}{}:
		default:
		}
	}
}

func (t *Tracker) checkInterval() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.interval
}

// Start launches the background check loop.
func (t *Tracker) Start(ctx context.Context) {
	if t == nil {
		return
	}
	go func() {
		if t.checkInterval() > 0 {
			t.Refresh(ctx)
		}
		t.loop(ctx)
	}()
}

func (t *Tracker) loop(ctx context.Context) {
	for {
		var tick <-chan time.Time
		var ticker *time.Ticker
		if d := t.checkInterval(); d > 0 {
			ticker = time.NewTicker(d)
			tick = ticker.C
		}

		select {
		case <-ctx.Done():
			if ticker != nil {
				ticker.Stop()
			}
			return
		case <-t.reset:
		case <-tick:
			t.Refresh(ctx)
		}

		if ticker != nil {
			ticker.Stop()
		}
	}
}

func ensureTrailingSlash(u string) string {
	u = strings.TrimSpace(u)
	if u == "" || strings.HasSuffix(u, "/") {
		return u
	}
	return u + "/"
}
