// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/ztdl/internal/services/availability"
	"github.com/autobrr/ztdl/internal/services/scraper"
	"github.com/autobrr/ztdl/internal/services/sitefetch"
)

type AvailabilityService interface {
	Check(ctx context.Context, req availability.CheckRequest) (*availability.DownloadAvailability, error)
	StartCheck(ctx context.Context, req availability.CheckRequest) (string, error)
	Cancel(sessionID string) bool
	ActiveSessions() []string
}

type DownloadsHandler struct {
	service          AvailabilityService
	events           EventSource
	debridConfigured func() bool
}

func NewDownloadsHandler(service AvailabilityService, events EventSource, debridConfigured func() bool) *DownloadsHandler {
	if debridConfigured == nil {
		debridConfigured = func() bool { return true }
	}
	return &DownloadsHandler{
		service:          service,
		events:           events,
		debridConfigured: debridConfigured,
	}
}

// episodeList accepts episode numbers given as JSON strings or numbers.
type episodeList []string

func (l *episodeList) UnmarshalJSON(data []byte) error {
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := make([]string, 0, len(raw))
	for _, v := range raw {
		switch e := v.(type) {
		case string:
			if e = strings.TrimSpace(e); e != "" {
				out = append(out, e)
			}
		case float64:
			out = append(out, strconv.FormatInt(int64(e), 10))
		default:
			return fmt.Errorf("unsupported episode value %v", v)
		}
	}
	*l = out
	return nil
}

type CheckDownloadRequest struct {
	DownloadLink string      `json:"downloadLink"`
	Type         string      `json:"type"`
	Episodes     episodeList `json:"episodes"`
	SessionID    string      `json:"sessionId"`
}

type CheckStartedResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

type CheckResultResponse struct {
	Success bool                               `json:"success"`
	Data    *availability.DownloadAvailability `json:"data"`
}

type CancelRequest struct {
	SessionID string `json:"sessionId"`
}

type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type SessionsResponse struct {
	Success bool     `json:"success"`
	Data    []string `json:"data"`
}

// Check runs an availability check. With a sessionId the check runs in the
// background and progress is streamed on the session's events socket.
func (h *DownloadsHandler) Check(w http.ResponseWriter, r *http.Request) {
	var body CheckDownloadRequest
	if err := decodeJSON(w, r, &body); err != nil {
		log.Warn().Err(err).Msg("failed to decode download check request")
		RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	body.DownloadLink = strings.TrimSpace(body.DownloadLink)
	if body.DownloadLink == "" || strings.TrimSpace(body.Type) == "" {
		RespondError(w, http.StatusBadRequest, "downloadLink and type are required")
		return
	}

	ct, err := scraper.ParseContentType(body.Type)
	if err != nil {
		RespondError(w, http.StatusBadRequest, "type must be films, series or mangas")
		return
	}

	if !h.debridConfigured() {
		RespondError(w, http.StatusBadRequest, "AllDebrid API key is not configured")
		return
	}

	req := availability.CheckRequest{
		DownloadURL: body.DownloadLink,
		Type:        ct,
		Episodes:    body.Episodes,
		SessionID:   strings.TrimSpace(body.SessionID),
	}

	log.Info().Str("link", req.DownloadURL).Str("session", req.SessionID).Msg("download availability check requested")

	if req.SessionID != "" {
		id, err := h.service.StartCheck(r.Context(), req)
		if err != nil {
			h.respondCheckError(w, err)
			return
		}
		RespondJSON(w, http.StatusAccepted, CheckStartedResponse{
			Success:   true,
			Message:   "Verification started in background",
			SessionID: id,
		})
		return
	}

	result, err := h.service.Check(r.Context(), req)
	if err != nil {
		if r.Context().Err() != nil {
			log.Debug().Str("link", req.DownloadURL).Msg("download check aborted by client")
			return
		}
		h.respondCheckError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, CheckResultResponse{Success: true, Data: result})
}

func (h *DownloadsHandler) respondCheckError(w http.ResponseWriter, err error) {
	var statusErr *sitefetch.StatusError

	switch {
	case errors.Is(err, availability.ErrSessionExists):
		RespondError(w, http.StatusConflict, "A verification with this sessionId is already running")
	case errors.Is(err, availability.ErrCancelled):
		RespondError(w, http.StatusConflict, err.Error())
	case errors.As(err, &statusErr):
		log.Warn().Err(err).Msg("download page could not be fetched")
		RespondError(w, http.StatusBadGateway, "Download page could not be fetched")
	default:
		log.Error().Err(err).Msg("download availability check failed")
		RespondError(w, http.StatusInternalServerError, "Error while checking availability")
	}
}

func (h *DownloadsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var body CancelRequest
	if err := decodeJSON(w, r, &body); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	id := strings.TrimSpace(body.SessionID)
	if id == "" {
		RespondError(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	if !h.service.Cancel(id) {
		RespondError(w, http.StatusNotFound, "Session not found or already finished")
		return
	}

	RespondJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Verification cancelled"})
}

func (h *DownloadsHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	ids := h.service.ActiveSessions()
	if ids == nil {
		ids = []string{}
	}
	RespondJSON(w, http.StatusOK, SessionsResponse{Success: true, Data: ids})
}
