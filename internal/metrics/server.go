// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

type Server struct {
	server *http.Server
	users  map[string][]byte
}

// NewMetricsServer serves /metrics on host:port. basicAuthUsers is "user:bcrypt,user2:bcrypt2";
// empty disables authentication.
func NewMetricsServer(manager *Manager, host string, port int, basicAuthUsers string) *Server {
	s := &Server{users: ParseBasicAuthUsers(basicAuthUsers)}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Group(func(r chi.Router) {
		if len(s.users) > 0 {
			r.Use(s.basicAuth)
		}
		r.Handle("/metrics", promhttp.HandlerFor(manager.Gatherer(), promhttp.HandlerOpts{}))
	})

	s.server = &http.Server{
		Addr:              net.JoinHostPort(host, strconv.Itoa(port)),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) ListenAndServe() error {
	log.Info().Str("addr", s.server.Addr).Bool("auth", len(s.users) > 0).Msg("Starting metrics server")
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if ok {
			if hash, found := s.users[user]; found && bcrypt.CompareHashAndPassword(hash, []byte(pass)) == nil {
				next.ServeHTTP(w, r)
				return
			}
		}
		w.Header().Set("WWW-Authenticate", `Basic realm="metrics"`)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	})
}

// ParseBasicAuthUsers parses "user:hash" pairs, skipping malformed entries.
func ParseBasicAuthUsers(raw string) map[string][]byte {
	users := make(map[string][]byte)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		user, hash, found := strings.Cut(pair, ":")
		if !found || user == "" || hash == "" {
			log.Warn().Str("user", user).Msg("Ignoring malformed metrics basic auth entry")
			continue
		}
		users[user] = []byte(hash)
	}
	return users
}
