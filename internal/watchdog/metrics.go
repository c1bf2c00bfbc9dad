package watchdog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashwatch_polls_total",
		Help: "Polls by signal and outcome (ok, degraded, dropped, discarded, panic).",
	}, []string{"signal", "outcome"})

	pollDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dashwatch_poll_duration_seconds",
		Help:    "Time spent fetching a signal value.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"signal"})

	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashwatch_transitions_total",
		Help: "Confirmed value transitions.",
	}, []string{"signal"})

	notificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashwatch_notifications_total",
		Help: "Notifications handed to the notifier.",
	}, []string{"signal"})

	suppressedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashwatch_suppressed_total",
		Help: "Confirmed transitions that did not notify, by reason (sleep, disabled, debounce).",
	}, []string{"signal", "reason"})

	sleepEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashwatch_sleep_detected_total",
		Help: "Sleep/wake events that opened a grace period, by detector.",
	}, []string{"signal", "detector"})
)
