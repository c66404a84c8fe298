// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package availability

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/ztdl/internal/services/alldebrid"
	"github.com/autobrr/ztdl/internal/services/scraper"
)

const errNoHostAvailable = "no host available"

// EpisodeAvailability is the verification result of one episode key.
type EpisodeAvailability struct {
	Host      string `json:"host,omitempty"`
	Link      string `json:"link,omitempty"`
	Available bool   `json:"available"`
	Error     string `json:"error,omitempty"`
	Filesize  int64  `json:"filesize,omitempty"`
}

// VerifyEpisode tries the hosts in priority order and stops at the first one
// whose link unlocks. Only cancellation is returned as an error.
func (s *Service) VerifyEpisode(ctx context.Context, sessionID, episodeKey string, ct scraper.ContentType, hosts HostLinkMap) (*EpisodeAvailability, error) {
	name := FormatEpisodeName(episodeKey)

	for _, host := range HostPriority {
		if ctx.Err() != nil {
			return nil, alldebrid.ErrCancelled
		}

		links, ok := hosts[host]
		if !ok {
			continue
		}
		key := episodeKey
		if !ct.Episodic() {
			key = filmKey
		}
		link := links.Link(key)
		if link == "" {
			continue
		}

		s.status(sessionID, fmt.Sprintf("Testing %s for %s...", host, name))
		log.Debug().Str("session", sessionID).Str("host", host).Str("episode", episodeKey).Msg("availability: testing host")

		res, err := s.checker.Check(ctx, link)
		if err != nil {
			if errors.Is(err, alldebrid.ErrCancelled) {
				return nil, err
			}
			s.status(sessionID, fmt.Sprintf("Error with %s for %s", host, name))
			log.Info().Err(err).Str("host", host).Str("episode", episodeKey).Msg("availability: host check failed")
			continue
		}

		if res.Available {
			s.status(sessionID, fmt.Sprintf("%s available on %s", name, host))
			log.Debug().Str("host", host).Str("episode", episodeKey).Msg("availability: episode available")
			return &EpisodeAvailability{
				Host:      host,
				Link:      res.DebridedLink,
				Available: true,
				Filesize:  res.Filesize,
			}, nil
		}

		s.status(sessionID, fmt.Sprintf("%s unavailable for %s", host, name))
	}

	return &EpisodeAvailability{Available: false, Error: errNoHostAvailable}, nil
}
