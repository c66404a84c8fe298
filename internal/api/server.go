// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/CAFxX/httpcompression"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/ztdl/internal/api/handlers"
	"github.com/autobrr/ztdl/internal/api/middleware"
	"github.com/autobrr/ztdl/internal/api/openapi"
	"github.com/autobrr/ztdl/internal/config"
	"github.com/autobrr/ztdl/internal/domain"
	"github.com/autobrr/ztdl/internal/services/alldebrid"
	"github.com/autobrr/ztdl/internal/services/availability"
	"github.com/autobrr/ztdl/internal/services/scraper"
	"github.com/autobrr/ztdl/internal/services/sitelocation"
)

type Server struct {
	server  *http.Server
	logger  zerolog.Logger
	config  *config.AppConfig
	version string

	scraper      *scraper.Service
	siteTracker  *sitelocation.Tracker
	availability *availability.Service
	broker       *availability.Broker
	debrid       *alldebrid.Client
}

type Dependencies struct {
	Config       *config.AppConfig
	Version      string
	Scraper      *scraper.Service
	SiteTracker  *sitelocation.Tracker
	Availability *availability.Service
	Broker       *availability.Broker
	Debrid       *alldebrid.Client
}

func NewServer(deps *Dependencies) *Server {
	s := Server{
		server: &http.Server{
			ReadHeaderTimeout: time.Second * 15,
			ReadTimeout:       60 * time.Second,
			WriteTimeout:      120 * time.Second,
			IdleTimeout:       180 * time.Second,
		},
		logger:       log.Logger.With().Str("module", "api").Logger(),
		config:       deps.Config,
		version:      deps.Version,
		scraper:      deps.Scraper,
		siteTracker:  deps.SiteTracker,
		availability: deps.Availability,
		broker:       deps.Broker,
		debrid:       deps.Debrid,
	}

	return &s
}

func (s *Server) ListenAndServe() error {
	return s.open(nil)
}

// ListenAndServeReady behaves like ListenAndServe but signals once the listener is active.
func (s *Server) ListenAndServeReady(ready chan<- struct{}) error {
	return s.open(ready)
}

func (s *Server) Open() error {
	return s.open(nil)
}

func (s *Server) open(ready chan<- struct{}) error {
	addr := fmt.Sprintf("%s:%d", s.config.Config.Host, s.config.Config.Port)

	var lastErr error
	for _, proto := range []string{"tcp", "tcp4", "tcp6"} {
		err := s.tryToServe(addr, proto, ready)
		if err == nil {
			return nil
		}

		if errors.Is(err, http.ErrServerClosed) {
			return err
		}

		s.logger.Error().Err(err).Str("addr", addr).Str("proto", proto).Msgf("Failed to start server")
		lastErr = err
	}

	return lastErr
}

func (s *Server) tryToServe(addr, protocol string, ready chan<- struct{}) error {
	listener, err := net.Listen(protocol, addr)
	if err != nil {
		return err
	}

	host := listener.Addr().String()
	// Replace 0.0.0.0 or :: with localhost for clickable links
	if strings.HasPrefix(host, "0.0.0.0:") || strings.HasPrefix(host, "[::]:") {
		host = strings.Replace(host, "0.0.0.0:", "localhost:", 1)
		host = strings.Replace(host, "[::]:", "localhost:", 1)
	}
	clickableURL := fmt.Sprintf("http://%s%s", host, s.config.Config.BaseURL)

	s.logger.Info().
		Str("protocol", protocol).
		Str("addr", listener.Addr().String()).
		Str("base_url", s.config.Config.BaseURL).
		Msgf("Starting API server - Open: %s", clickableURL)

	handler, err := s.Handler()
	if err != nil {
		listener.Close()
		return fmt.Errorf("build API router: %w", err)
	}

	s.server.Handler = handler

	if ready != nil {
		select {
		case ready <- struct{}{}:
		default:
		}
	}

	return s.server.Serve(listener)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) Handler() (*chi.Mux, error) {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID) // Must be before logger to capture request ID
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)

	corsMiddleware := cors.New(cors.Options{
		AllowCredentials: true,
		AllowedMethods:   []string{"HEAD", "OPTIONS", "GET", "POST"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowOriginFunc:  func(origin string) bool { return true },
		MaxAge:           300,
		Debug:            false,
	})
	r.Use(corsMiddleware.Handler)

	// Search results are large JSON documents; use a fast compression level
	compressor, err := httpcompression.DefaultAdapter(
		httpcompression.MinSize(1024),
		httpcompression.GzipCompressionLevel(2),
		httpcompression.Prefer(httpcompression.PreferServer),
	)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create HTTP compression adapter")
		compressor = func(next http.Handler) http.Handler { return next }
	}

	healthHandler := handlers.NewHealthHandler(s.version)
	searchHandler := handlers.NewSearchHandler(s.scraper, s.siteTracker, s.config.Config.SiteRefreshBeforeSearch)
	siteHandler := handlers.NewSiteHandler(s.siteTracker)
	downloadsHandler := handlers.NewDownloadsHandler(s.availability, s.broker, s.debrid.Configured)
	debridHandler := handlers.NewDebridHandler(s.debrid)

	s.config.RegisterReloadListener(func(cfg *domain.Config) {
		searchHandler.SetRefreshBeforeSearch(cfg.SiteRefreshBeforeSearch)
	})

	apiRouter := chi.NewRouter()
	apiRouter.Use(middleware.Logger(s.logger))

	apiRouter.Group(func(r chi.Router) {
		r.Use(compressor)

		r.Get("/health", healthHandler.HandleHealth)
		r.Get("/openapi.yaml", openapi.ServeSpec)

		r.Route("/search", func(r chi.Router) {
			r.Get("/", searchHandler.Search)
			r.Get("/pages", searchHandler.PageCounts)
		})

		r.Route("/site", func(r chi.Router) {
			r.Get("/status", siteHandler.GetStatus)
			r.Post("/refresh", siteHandler.Refresh)
		})

		r.Route("/downloads", func(r chi.Router) {
			r.Post("/check", downloadsHandler.Check)
			r.Post("/cancel", downloadsHandler.Cancel)
			r.Get("/sessions", downloadsHandler.Sessions)
		})

		r.Post("/debrid/validate", debridHandler.Validate)
	})

	// websocket upgrades need the raw connection, so no compression here
	apiRouter.Get("/downloads/{sessionId}/events", downloadsHandler.Events)

	baseURL := s.config.Config.BaseURL
	if baseURL == "" {
		baseURL = "/"
	}

	r.Get("/healthz/liveness", healthHandler.HandleLiveness)

	r.Mount(baseURL+"api", apiRouter)

	if baseURL != "/" {
		r.Get("/", func(w http.ResponseWriter, request *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte("Must use baseUrl: " + s.config.Config.BaseURL + " instead of /"))
		})
	}

	return r, nil
}
