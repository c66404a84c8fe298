// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package availability checks which episodes of a download page can be
// unlocked, reporting progress per session.
package availability

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/ztdl/internal/services/alldebrid"
	"github.com/autobrr/ztdl/internal/services/scraper"
	"github.com/autobrr/ztdl/internal/services/sitefetch"
)

// ErrCancelled is returned when a session is cancelled or its context ends.
var ErrCancelled = alldebrid.ErrCancelled

const (
	progressStarted   = 0
	progressScraping  = 10
	progressScraped   = 30
	progressVerifying = 40
	progressSpan      = 50
	progressComplete  = 100
)

// LinkChecker resolves one protected link.
type LinkChecker interface {
	Check(ctx context.Context, link string) (*alldebrid.LinkAvailability, error)
}

// CheckRequest describes one availability check.
type CheckRequest struct {
	DownloadURL string
	Type        scraper.ContentType
	// Episodes are episode numbers; empty checks every episode on the page.
	Episodes  []string
	SessionID string
}

// DownloadAvailability is the aggregated result of a check.
type DownloadAvailability struct {
	Type         scraper.ContentType             `json:"type"`
	Episodes     []string                        `json:"episodes,omitempty"`
	Availability map[string]*EpisodeAvailability `json:"availability"`
}

type Option func(*Service)

func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithSink(sink Sink) Option {
	return func(s *Service) {
		if sink != nil {
			s.sink = sink
		}
	}
}

type Service struct {
	fetcher  sitefetch.Fetcher
	checker  LinkChecker
	sink     Sink
	sessions *sessionRegistry
	metrics  *Metrics
	now      func() time.Time
}

func NewService(fetcher sitefetch.Fetcher, checker LinkChecker, opts ...Option) *Service {
	s := &Service{
		fetcher:  fetcher,
		checker:  checker,
		sink:     noopSink{},
		sessions: newSessionRegistry(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FormatEpisodeName renders an episode key for humans.
func FormatEpisodeName(key string) string {
	if key == filmKey {
		return "Film"
	}
	if n, ok := strings.CutPrefix(key, episodePrefix); ok {
		return "Episode " + n
	}
	return key
}

// Check runs a check and waits for its result. Cancelling ctx cancels the check.
func (s *Service) Check(ctx context.Context, req CheckRequest) (*DownloadAvailability, error) {
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	sctx, sess, err := s.sessions.register(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	s.started(req.SessionID)
	return s.run(sctx, sess, req)
}

// StartCheck registers the session and runs the check in the background.
// Progress and the result are delivered through the sink.
func (s *Service) StartCheck(ctx context.Context, req CheckRequest) (string, error) {
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	sctx, sess, err := s.sessions.register(context.WithoutCancel(ctx), req.SessionID)
	if err != nil {
		return "", err
	}
	// published before returning so subscribers never see an earlier run of this id
	s.started(req.SessionID)

	go func() {
		if _, err := s.run(sctx, sess, req); err != nil {
			log.Debug().Err(err).Str("session", req.SessionID).Msg("availability: background check ended with error")
		}
	}()
	return req.SessionID, nil
}

// Cancel stops a running session. It reports whether the session existed.
func (s *Service) Cancel(sessionID string) bool {
	if err := s.sessions.cancel(sessionID); err != nil {
		log.Debug().Err(err).Str("session", sessionID).Msg("availability: nothing to cancel")
		return false
	}
	s.publish(sessionID, EventError, ErrCancelled.Error(), ptr(progressStarted), nil)
	log.Info().Str("session", sessionID).Msg("availability: check cancelled")
	return true
}

// ActiveSessions lists the ids of running checks.
func (s *Service) ActiveSessions() []string {
	return s.sessions.ids()
}

func (s *Service) run(ctx context.Context, sess *session, req CheckRequest) (result *DownloadAvailability, err error) {
	id := req.SessionID
	s.metrics.sessionStarted()

	defer func() {
		outcome := "complete"
		switch {
		case errors.Is(err, ErrCancelled):
			outcome = "cancelled"
			// Cancel already reported user cancellations
			if !sess.cancelled.Load() {
				s.publish(id, EventError, ErrCancelled.Error(), ptr(progressStarted), nil)
			}
			log.Debug().Str("session", id).Msg("availability: check stopped after cancellation")
		case err != nil:
			outcome = "error"
			s.publish(id, EventError, "verification error: "+err.Error(), ptr(progressStarted), nil)
			log.Error().Err(err).Str("session", id).Msg("availability: check failed")
		}
		s.sessions.remove(id, sess)
		s.metrics.sessionFinished(outcome)
	}()

	cancelled := func() bool {
		return sess.cancelled.Load() || ctx.Err() != nil
	}

	log.Info().Str("session", id).Str("type", string(req.Type)).Strs("episodes", req.Episodes).
		Msg("availability: checking download page")

	s.publish(id, EventStatus, "Scraping download links...", ptr(progressScraping), nil)
	hosts, err := s.ExtractHostLinks(ctx, req.DownloadURL, "")
	if err != nil {
		if cancelled() {
			return nil, ErrCancelled
		}
		return nil, err
	}
	s.publish(id, EventStatus, fmt.Sprintf("Scraping complete - %d hosts found", len(hosts)), ptr(progressScraped), nil)

	keys := planEpisodes(req, hosts)
	s.publish(id, EventStatus, fmt.Sprintf("Checking %d episode(s) on %d host(s)...", len(keys), len(hosts)), ptr(progressVerifying), nil)

	var (
		progressMu sync.Mutex
		done       int
	)
	total := float64(len(keys))
	settled := settleAll(keys, func(key string) (*EpisodeAvailability, error) {
		if cancelled() {
			return nil, ErrCancelled
		}

		res, err := s.VerifyEpisode(ctx, id, key, req.Type, hosts)
		if err == nil && cancelled() {
			err = ErrCancelled
		}
		if errors.Is(err, ErrCancelled) {
			return nil, err
		}

		verdict := "done"
		if err != nil {
			verdict = "failed"
		}

		// counter and event are updated together so progress never goes backwards
		progressMu.Lock()
		done++
		s.publish(id, EventStatus,
			fmt.Sprintf("%s %s (%d/%d)", FormatEpisodeName(key), verdict, done, len(keys)),
			ptr(progressVerifying+float64(done)/total*progressSpan), nil)
		progressMu.Unlock()
		return res, err
	})

	if cancelled() {
		return nil, ErrCancelled
	}

	availability := &DownloadAvailability{
		Type:         req.Type,
		Episodes:     req.Episodes,
		Availability: make(map[string]*EpisodeAvailability, len(keys)),
	}
	for i, st := range settled {
		if errors.Is(st.err, ErrCancelled) {
			return nil, ErrCancelled
		}
		res := st.value
		if st.err != nil || res == nil {
			msg := "no result"
			if st.err != nil {
				msg = st.err.Error()
			}
			res = &EpisodeAvailability{Available: false, Error: "verification error: " + msg}
		}
		s.metrics.observeEpisode(res.Available)
		availability.Availability[keys[i]] = res
	}

	s.publish(id, EventComplete, "Verification complete", ptr(progressComplete), availability)
	log.Info().Str("session", id).Int("episodes", len(keys)).Msg("availability: check complete")
	return availability, nil
}

func planEpisodes(req CheckRequest, hosts HostLinkMap) []string {
	if !req.Type.Episodic() {
		return []string{filmKey}
	}
	if len(req.Episodes) > 0 {
		keys := make([]string, 0, len(req.Episodes))
		for _, ep := range req.Episodes {
			keys = append(keys, EpisodeKey(ep))
		}
		return keys
	}
	return hosts.EpisodeKeys()
}

func (s *Service) started(sessionID string) {
	s.publish(sessionID, EventStarted, "Availability check started", ptr(progressStarted), nil)
}

func (s *Service) status(sessionID, message string) {
	s.publish(sessionID, EventStatus, message, nil, nil)
}

func (s *Service) publish(sessionID string, typ EventType, message string, progress *float64, data any) {
	s.sink.Publish(Event{
		SessionID: sessionID,
		Type:      typ,
		Message:   message,
		Progress:  progress,
		Data:      data,
		Timestamp: s.now(),
	})
}

func ptr(v float64) *float64 {
	return &v
}
