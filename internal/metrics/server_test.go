// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestParseBasicAuthUsers(t *testing.T) {
	users := ParseBasicAuthUsers("prom:$2y$10$abc, broken ,:nohash,other:$2a$10$def")
	assert.Len(t, users, 2)
	assert.Equal(t, []byte("$2y$10$abc"), users["prom"])
	assert.Equal(t, []byte("$2a$10$def"), users["other"])
	assert.Empty(t, ParseBasicAuthUsers(""))
}

func TestMetricsServerBasicAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)

	manager := NewMetricsManager()
	promauto.With(manager.Registerer()).NewCounter(prometheus.CounterOpts{
		Name: "ztdl_test_total",
		Help: "test counter",
	}).Inc()

	srv := NewMetricsServer(manager, "127.0.0.1", 0, "prom:"+string(hash))

	tests := []struct {
		name   string
		user   string
		pass   string
		status int
	}{
		{name: "no_credentials", status: http.StatusUnauthorized},
		{name: "wrong_password", user: "prom", pass: "nope", status: http.StatusUnauthorized},
		{name: "unknown_user", user: "other", pass: "secret", status: http.StatusUnauthorized},
		{name: "valid", user: "prom", pass: "secret", status: http.StatusOK},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
			if tt.user != "" {
				req.SetBasicAuth(tt.user, tt.pass)
			}
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Contains(t, rec.Body.String(), "ztdl_test_total 1")
			}
		})
	}
}
