// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package availability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains Prometheus metrics for availability checks
type Metrics struct {
	ActiveSessions prometheus.Gauge
	Checks         *prometheus.CounterVec
	Episodes       *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ztdl_availability_active_sessions",
			Help: "Availability checks currently running",
		}),
		Checks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ztdl_availability_checks_total",
			Help: "Finished availability checks by result (complete, error, cancelled)",
		}, []string{"result"}),
		Episodes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ztdl_availability_episodes_total",
			Help: "Verified episodes by result (available, unavailable)",
		}, []string{"result"}),
	}
}

func (m *Metrics) sessionStarted() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

func (m *Metrics) sessionFinished(result string) {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
	m.Checks.WithLabelValues(result).Inc()
}

func (m *Metrics) observeEpisode(available bool) {
	if m == nil {
		return
	}
	label := "unavailable"
	if available {
		label = "available"
	}
	m.Episodes.WithLabelValues(label).Inc()
}
