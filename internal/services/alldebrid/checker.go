// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package alldebrid

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultRetryDelay = 2 * time.Second

	errNoRedirectorLinks = "no links found in redirector"
	errNothingUnlocked   = "no link could be unlocked"
)

// ErrCancelled is returned once the caller's context is done. It takes
// precedence over any other outcome of a check.
var ErrCancelled = errors.New("verification cancelled by user")

// Unlocker is the part of the API a Checker needs.
type Unlocker interface {
	Redirector(ctx context.Context, link string) ([]string, error)
	Unlock(ctx context.Context, link string) (*UnlockedLink, error)
}

// LinkAvailability is the outcome of checking one protected link.
type LinkAvailability struct {
	Available    bool   `json:"available"`
	DebridedLink string `json:"debridedLink,omitempty"`
	Filename     string `json:"filename,omitempty"`
	Filesize     int64  `json:"filesize,omitempty"`
	Error        string `json:"error,omitempty"`
}

type CheckerConfig struct {
	RetryDelay time.Duration
	// MaxRetries bounds transient retries, 0 retries until cancelled.
	MaxRetries int
}

type CheckerOption func(*Checker)

func WithCheckerMetrics(m *Metrics) CheckerOption {
	return func(c *Checker) {
		c.metrics = m
	}
}

// Checker resolves protected links through the redirector and unlock endpoints.
type Checker struct {
	api     Unlocker
	metrics *Metrics

	mu  sync.RWMutex
	cfg CheckerConfig
}

func NewChecker(api Unlocker, cfg CheckerConfig, opts ...CheckerOption) *Checker {
	c := &Checker{api: api, cfg: cfg.normalized()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (cfg CheckerConfig) normalized() CheckerConfig {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return cfg
}

// SetConfig replaces the retry settings. Checks already waiting keep their
// current delay.
func (c *Checker) SetConfig(cfg CheckerConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg.normalized()
}

func (c *Checker) config() CheckerConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// Check resolves link to a direct download. Failures are reported in the
// result, only ErrCancelled is returned as an error.
func (c *Checker) Check(ctx context.Context, link string) (*LinkAvailability, error) {
	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return nil, ErrCancelled
		}

		log.Debug().Str("link", link).Int("attempt", attempt).Msg("alldebrid: checking link availability")

		result, err := c.attempt(ctx, link)
		if err == nil {
			c.metrics.observeCheck(result)
			return result, nil
		}
		if ctx.Err() != nil || errors.Is(err, ErrCancelled) {
			return nil, ErrCancelled
		}

		log.Error().Err(err).Str("link", link).Int("attempt", attempt).Msg("alldebrid: link check failed")

		cfg := c.config()
		if !IsTransient(err) || (cfg.MaxRetries > 0 && attempt > cfg.MaxRetries) {
			result := &LinkAvailability{Available: false, Error: err.Error()}
			c.metrics.observeCheck(result)
			return result, nil
		}

		c.metrics.transientRetry()
		log.Info().Str("link", link).Int("attempt", attempt).Dur("delay", cfg.RetryDelay).
			Msg("alldebrid: could not extract links, retrying")

		if err := wait(ctx, cfg.RetryDelay); err != nil {
			return nil, err
		}
	}
}

// attempt runs the redirector then unlock sequence once. A returned error is
// either a redirector failure or cancellation.
func (c *Checker) attempt(ctx context.Context, link string) (*LinkAvailability, error) {
	links, err := c.api.Redirector(ctx, link)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return &LinkAvailability{Available: false, Error: errNoRedirectorLinks}, nil
	}

	for _, hosterLink := range links {
		if ctx.Err() != nil {
			return nil, ErrCancelled
		}

		unlocked, err := c.api.Unlock(ctx, hosterLink)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ErrCancelled
			}
			log.Debug().Err(err).Str("link", hosterLink).Msg("alldebrid: failed to unlock link")
			continue
		}
		if unlocked == nil || unlocked.Link == "" {
			continue
		}

		log.Debug().Str("filename", unlocked.Filename).Msg("alldebrid: link unlocked")
		return &LinkAvailability{
			Available:    true,
			DebridedLink: unlocked.Link,
			Filename:     unlocked.Filename,
			Filesize:     unlocked.Filesize,
		}, nil
	}

	return &LinkAvailability{Available: false, Error: errNothingUnlocked}, nil
}

func wait(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ErrCancelled
	case <-timer.C:
		return nil
	}
}
