// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package metrics owns the Prometheus registry and the metrics HTTP server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Manager holds the registry every service registers its collectors on.
type Manager struct {
	registry *prometheus.Registry
}

func NewMetricsManager() *Manager {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Manager{registry: reg}
}

// Registerer is handed to the services' metric constructors.
func (m *Manager) Registerer() prometheus.Registerer {
	return m.registry
}

func (m *Manager) Gatherer() prometheus.Gatherer {
	return m.registry
}
