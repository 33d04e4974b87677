package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "screencast",
		Subsystem: "session",
		Name:      "transitions_total",
		Help:      "Session state transitions by the target state.",
	}, []string{"state"})
	failures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "screencast",
		Subsystem: "session",
		Name:      "failures_total",
		Help:      "Sessions ended by a failure.",
	}, []string{"reason"})
	active = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "screencast",
		Subsystem: "session",
		Name:      "active",
		Help:      "Sessions not yet in a terminal state.",
	})
)
