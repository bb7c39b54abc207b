package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "consensus"

var (
	Ticks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ticks_total",
		Help:      "Ticks evaluated by the control pipeline.",
	})

	Commands = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "commands_total",
		Help:      "Commands produced, by law and outcome (applied, deferred, failsafe).",
	}, []string{"law", "outcome"})

	StepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "step_duration_seconds",
		Help:      "Wall time spent computing one tick for the whole fleet.",
		Buckets:   prometheus.ExponentialBuckets(1e-5, 4, 10),
	})

	FleetSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "fleet_size",
		Help:      "Vehicles in the most recent frame.",
	})

	NeighborResyncs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "neighbor_resyncs_total",
		Help:      "Neighbor set recomputations, by law.",
	}, []string{"law"})

	NonFinite = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "non_finite_total",
		Help:      "Law outputs rejected as NaN or infinite, by law.",
	}, []string{"law"})

	FailsafeInterventions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "failsafe_interventions_total",
		Help:      "Commands changed by a failsafe, by mode.",
	}, []string{"mode"})

	PacketsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "packets_received_total",
		Help:      "Datagrams received by the UDP bridge, by result (ok, malformed, rejected).",
	}, []string{"result"})

	TickDurationMismatch = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tick_duration_mismatch_total",
		Help:      "Snapshots whose tick duration differs from the configured one, counted once per distinct value.",
	})

	HubClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "hub_clients",
		Help:      "Connected websocket viewers.",
	})
)
