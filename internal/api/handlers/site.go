// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/ztdl/internal/models"
	"github.com/autobrr/ztdl/internal/services/sitelocation"
)

type SiteTracker interface {
	Refresh(ctx context.Context)
	Status(ctx context.Context) (*sitelocation.Status, error)
}

type SiteHandler struct {
	tracker SiteTracker
}

func NewSiteHandler(tracker SiteTracker) *SiteHandler {
	return &SiteHandler{tracker: tracker}
}

type SiteStatusResponse struct {
	Success   bool                 `json:"success"`
	Data      *sitelocation.Status `json:"data"`
	Timestamp time.Time            `json:"timestamp"`
}

func (h *SiteHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	h.respondStatus(w, r)
}

// Refresh re-resolves the site address and returns the updated status.
func (h *SiteHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.tracker.Refresh(r.Context())
	h.respondStatus(w, r)
}

func (h *SiteHandler) respondStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.tracker.Status(r.Context())
	if err != nil {
		if errors.Is(err, models.ErrSiteLocationNotFound) {
			RespondError(w, http.StatusNotFound, "The indexing site location is unknown")
			return
		}
		log.Error().Err(err).Msg("failed to load site status")
		RespondError(w, http.StatusInternalServerError, "Failed to load site status")
		return
	}

	RespondJSON(w, http.StatusOK, SiteStatusResponse{
		Success:   true,
		Data:      status,
		Timestamp: time.Now().UTC(),
	})
}
