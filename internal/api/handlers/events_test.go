// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/ztdl/internal/services/availability"
)

func newEventsServer(t *testing.T, broker *availability.Broker) *httptest.Server {
	t.Helper()

	h := NewDownloadsHandler(&fakeAvailability{}, broker, nil)
	r := chi.NewRouter()
	r.Get("/api/downloads/{sessionId}/events", h.Events)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dialEvents(t *testing.T, srv *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()

	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/downloads/" + sessionID + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) availability.Event {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var ev availability.Event
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func progress(v float64) *float64 {
	return &v
}

func TestEventsReplayThenStream(t *testing.T) {
	broker := availability.NewBroker(time.Minute)
	broker.Publish(availability.Event{SessionID: "s1", Type: availability.EventStarted, Message: "started", Progress: progress(0)})
	broker.Publish(availability.Event{SessionID: "s1", Type: availability.EventStatus, Message: "scraping", Progress: progress(10)})

	srv := newEventsServer(t, broker)
	conn := dialEvents(t, srv, "s1")

	first := readEvent(t, conn)
	assert.Equal(t, availability.EventStarted, first.Type)
	second := readEvent(t, conn)
	assert.Equal(t, "scraping", second.Message)
	require.NotNil(t, second.Progress)
	assert.InDelta(t, 10, *second.Progress, 0.001)

	// the live subscription is registered before the replay is written
	broker.Publish(availability.Event{SessionID: "s1", Type: availability.EventComplete, Message: "done", Progress: progress(100)})

	last := readEvent(t, conn)
	assert.Equal(t, availability.EventComplete, last.Type)
	assert.Equal(t, "s1", last.SessionID)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
}

func TestEventsForFinishedSession(t *testing.T) {
	broker := availability.NewBroker(time.Minute)
	broker.Publish(availability.Event{SessionID: "s2", Type: availability.EventError, Message: "verification cancelled by user", Progress: progress(0)})

	srv := newEventsServer(t, broker)
	conn := dialEvents(t, srv, "s2")

	ev := readEvent(t, conn)
	assert.Equal(t, availability.EventError, ev.Type)
	assert.Equal(t, "verification cancelled by user", ev.Message)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
}
