// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package sitefetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentSendsBrowserHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><body><h1>Année</h1></body></html>`))
	}))
	defer srv.Close()

	c := NewClient(time.Second, WithReferer(func() string { return "https://site.example/" }))
	doc, err := c.Document(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, "Année", doc.Find("h1").Text())
	assert.Equal(t, BrowserUserAgent, got.Get("User-Agent"))
	assert.Equal(t, acceptLanguage, got.Get("Accept-Language"))
	assert.Equal(t, "https://site.example/", got.Get("Referer"))
}

func TestDocumentDecodesLatin1(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		_, _ = w.Write([]byte("<html><body><p>ann\xe9e</p></body></html>"))
	}))
	defer srv.Close()

	doc, err := NewClient(time.Second).Document(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "année", doc.Find("p").Text())
}

func TestDocumentStatusError(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		notFound bool
	}{
		{name: "not_found", status: http.StatusNotFound, notFound: true},
		{name: "server_error", status: http.StatusBadGateway},
		{name: "forbidden", status: http.StatusForbidden},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			_, err := NewClient(time.Second).Document(context.Background(), srv.URL)
			require.Error(t, err)

			var statusErr *StatusError
			require.True(t, errors.As(err, &statusErr))
			assert.Equal(t, tt.status, statusErr.StatusCode)
			assert.Equal(t, tt.notFound, statusErr.IsNotFound())
			assert.True(t, errors.Is(err, &StatusError{}))
		})
	}
}

func TestDocumentHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient(5*time.Second).Document(ctx, srv.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
