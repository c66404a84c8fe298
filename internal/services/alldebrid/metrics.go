// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package alldebrid

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains Prometheus metrics for link checks
type Metrics struct {
	Checks          *prometheus.CounterVec
	TransientErrors prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Checks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ztdl_link_checks_total",
			Help: "Completed link checks by result (available, unavailable)",
		}, []string{"result"}),
		TransientErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "ztdl_link_check_retries_total",
			Help: "Link checks retried after a transient API error",
		}),
	}
}

func (m *Metrics) observeCheck(result *LinkAvailability) {
	if m == nil {
		return
	}
	label := "unavailable"
	if result.Available {
		label = "available"
	}
	m.Checks.WithLabelValues(label).Inc()
}

func (m *Metrics) transientRetry() {
	if m == nil {
		return
	}
	m.TransientErrors.Inc()
}
