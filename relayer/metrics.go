// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package relayer

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	failureUnknownDestination = "unknown_destination"
	failureMalformedCall      = "malformed_call"
	failureSign               = "sign"
	failureSubmit             = "submit"
	failureCommand            = "command"
	failureNoRouter           = "no_router"
	failureExecute            = "execute"
)

type Metrics struct {
	relayedCallCount      *prometheus.CounterVec
	completedMessageCount *prometheus.CounterVec
	canceledMessageCount  *prometheus.CounterVec
	failedRelayCount      *prometheus.CounterVec
	submitBatchLatencyMS  *prometheus.GaugeVec
}

func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := Metrics{
		relayedCallCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relayed_call_count",
				Help: "Number of contract calls delivered to a destination router",
			},
			[]string{"source_chain", "destination_chain"},
		),
		completedMessageCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "completed_message_count",
				Help: "Number of deliveries that completed",
			},
			[]string{"source_chain", "destination_chain"},
		),
		canceledMessageCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canceled_message_count",
				Help: "Number of deliveries that were canceled",
			},
			[]string{"source_chain", "destination_chain"},
		),
		failedRelayCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "failed_relay_count",
				Help: "Number of contract calls that failed to relay",
			},
			[]string{"source_chain", "destination_chain", "failure_reason"},
		),
		submitBatchLatencyMS: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "submit_batch_latency_ms",
				Help: "Latency of signing and submitting a command batch in milliseconds",
			},
			[]string{"destination_chain"},
		),
	}

	registerer.MustRegister(m.relayedCallCount)
	registerer.MustRegister(m.completedMessageCount)
	registerer.MustRegister(m.canceledMessageCount)
	registerer.MustRegister(m.failedRelayCount)
	registerer.MustRegister(m.submitBatchLatencyMS)

	return &m
}

func (m *Metrics) failed(sourceChain, destinationChain, reason string) {
	m.failedRelayCount.WithLabelValues(sourceChain, destinationChain, reason).Inc()
}
