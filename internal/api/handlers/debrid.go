// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"
)

type KeyValidator interface {
	Configured() bool
	ValidateAPIKey(ctx context.Context) (bool, error)
}

type DebridHandler struct {
	validator KeyValidator
}

func NewDebridHandler(validator KeyValidator) *DebridHandler {
	return &DebridHandler{validator: validator}
}

type ValidateKeyResponse struct {
	Success    bool `json:"success"`
	Configured bool `json:"configured"`
	Valid      bool `json:"valid"`
}

// Validate checks the configured AllDebrid API key against the user endpoint.
func (h *DebridHandler) Validate(w http.ResponseWriter, r *http.Request) {
	if !h.validator.Configured() {
		RespondJSON(w, http.StatusOK, ValidateKeyResponse{Success: true})
		return
	}

	valid, err := h.validator.ValidateAPIKey(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to validate AllDebrid API key")
		RespondError(w, http.StatusBadGateway, "AllDebrid could not be reached")
		return
	}

	RespondJSON(w, http.StatusOK, ValidateKeyResponse{Success: true, Configured: true, Valid: valid})
}
