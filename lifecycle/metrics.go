// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package lifecycle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	state       *prometheus.GaugeVec
	refreshes   prometheus.Counter
	identityIDs *prometheus.CounterVec
}

func newMetrics(registerer prometheus.Registerer) *metrics {
	factory := promauto.With(registerer)
	return &metrics{
		state: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rship_exec_lifecycle_state",
			Help: "1 for the current connection lifecycle state, 0 for the others.",
		}, []string{"state"}),
		refreshes: factory.NewCounter(prometheus.CounterOpts{
			Name: "rship_exec_lifecycle_refreshes_total",
			Help: "Resync passes run.",
		}),
		identityIDs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rship_exec_lifecycle_identity_updates_total",
			Help: "Identity results applied, by machine id source.",
		}, []string{"source"}),
	}
}

func (m *metrics) setState(current State) {
	for _, state := range allStates {
		value := 0.0
		if state == current {
			value = 1
		}
		m.state.WithLabelValues(state.String()).Set(value)
	}
}
