// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package syncclient

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons and command results used as metric labels.
const (
	reasonNotConnected = "not_connected"
	reasonSendFailed   = "send_failed"
	reasonEncode       = "encode"
	reasonMalformed    = "malformed"
	reasonNoHandler    = "no_handler"
	reasonNoQuery      = "no_query"
	reasonUnknown      = "unknown_command"

	resultOK      = "ok"
	resultError   = "error"
	resultInvalid = "invalid"
	resultGone    = "gone"
)

type metrics struct {
	sent       *prometheus.CounterVec
	suppressed prometheus.Counter
	dropped    *prometheus.CounterVec
	commands   *prometheus.CounterVec
}

func newMetrics(registerer prometheus.Registerer) *metrics {
	factory := promauto.With(registerer)
	return &metrics{
		sent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rship_exec_sync_messages_sent_total",
			Help: "Messages written to the server, by item type.",
		}, []string{"item_type"}),
		suppressed: factory.NewCounter(prometheus.CounterOpts{
			Name: "rship_exec_sync_statuses_suppressed_total",
			Help: "Target status sends skipped because the cached status matched.",
		}),
		dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rship_exec_sync_messages_dropped_total",
			Help: "Inbound or outbound messages dropped, by reason.",
		}, []string{"reason"}),
		commands: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rship_exec_sync_commands_total",
			Help: "Action commands dispatched to a handler, by result.",
		}, []string{"result"}),
	}
}
