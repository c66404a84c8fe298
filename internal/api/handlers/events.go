// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/ztdl/internal/services/availability"
)

const (
	eventWriteWait  = 10 * time.Second
	eventPingPeriod = 30 * time.Second
)

// EventSource hands out the progress stream of a check session.
type EventSource interface {
	Subscribe(sessionID string) (replay []availability.Event, events <-chan availability.Event, cancel func())
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Events streams a session's progress events over a websocket. Events
// published before the client connected are replayed first. The socket is
// closed after the terminal event.
func (h *DownloadsHandler) Events(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(chi.URLParam(r, "sessionId"))
	if sessionID == "" {
		RespondError(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("session", sessionID).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	replay, events, cancel := h.events.Subscribe(sessionID)
	defer cancel()

	logger := log.With().Str("session", sessionID).Logger()
	logger.Debug().Int("replayed", len(replay)).Msg("progress subscriber connected")

	// the client never sends anything; reading only detects the disconnect
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for _, ev := range replay {
		if err := writeEvent(conn, ev); err != nil {
			logger.Debug().Err(err).Msg("progress subscriber write failed")
			return
		}
	}

	ping := time.NewTicker(eventPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-gone:
			logger.Debug().Msg("progress subscriber disconnected")
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(eventWriteWait)); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session finished")
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(eventWriteWait))
				return
			}
			if err := writeEvent(conn, ev); err != nil {
				logger.Debug().Err(err).Msg("progress subscriber write failed")
				return
			}
		}
	}
}

func writeEvent(conn *websocket.Conn, ev availability.Event) error {
	if err := conn.SetWriteDeadline(time.Now().Add(eventWriteWait)); err != nil {
		return err
	}
	return conn.WriteJSON(ev)
}
