// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package sitelocation

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains Prometheus metrics for the site location tracker
type Metrics struct {
	Checks       *prometheus.CounterVec
	ResponseTime prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Checks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ztdl_site_checks_total",
			Help: "Site location checks by result (unchanged, relocated, error)",
		}, []string{"result"}),
		ResponseTime: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ztdl_site_response_time_seconds",
			Help: "Home page response time measured by the last successful check",
		}),
	}
}

func (m *Metrics) observeRefresh(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Checks.WithLabelValues(result).Inc()
	if elapsed > 0 {
		m.ResponseTime.Set(elapsed.Seconds())
	}
}
