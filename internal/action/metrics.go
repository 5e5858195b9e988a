// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

package action

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/deckhand/deckhand/internal/apierr"
)

// StatusSuccess labels a call that returned a response. Failed calls are
// labelled with the lower-cased error type, e.g. "invalid_credentials".
const StatusSuccess = "success"

// ActionCalls counts dispatched calls.
// Use RegisterMetrics to register this with a Prometheus registry.
var ActionCalls = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "deckhand_action_calls_total",
		Help: "Total number of dispatched action calls",
	},
	[]string{"action", "source", "status"},
)

// ActionDuration observes call latency.
// Use RegisterMetrics to register this with a Prometheus registry.
var ActionDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "deckhand_action_duration_seconds",
		Help:    "Action call duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"action", "source"},
)

// RegisterMetrics registers the action metrics with reg.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(ActionCalls)
	reg.MustRegister(ActionDuration)
}

// statusOf maps a dispatch result to a metric status label.
func statusOf(err error) string {
	if err == nil {
		return StatusSuccess
	}
	return strings.ToLower(apierr.KindOf(err).String())
}

// recorder collects the labels of a single dispatch.
type recorder struct {
	start  time.Time
	action string
	source string
}

func newRecorder(action string) *recorder {
	return &recorder{start: time.Now(), action: action, source: "unknown"}
}

func (r *recorder) record(err error) {
	ActionCalls.WithLabelValues(r.action, r.source, statusOf(err)).Inc()
	ActionDuration.WithLabelValues(r.action, r.source).Observe(time.Since(r.start).Seconds())
}
