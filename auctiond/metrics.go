package main

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Command outcomes.
const (
	outcomeOK       = "ok"
	outcomeRejected = "rejected"
	outcomeError    = "error"
)

type metrics struct {
	commands    *prometheus.CounterVec
	transfers   prometheus.Counter
	workersBusy prometheus.Gauge
	connsDenied prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auctiond_commands_total",
			Help: "Requests handled, by request type, auction operation and outcome",
		}, []string{"type", "op", "outcome"}),
		transfers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auctiond_transfers_total",
			Help: "Transfers paid out of escrow",
		}),
		workersBusy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "auctiond_workers_busy",
			Help: "Connections currently being served",
		}),
		connsDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auctiond_connections_rejected_total",
			Help: "Connections closed because the worker pool was full",
		}),
	}
	reg.MustRegister(m.commands, m.transfers, m.workersBusy, m.connsDenied)
	return m
}

func (m *metrics) observe(reqType, op, outcome string) {
	m.commands.WithLabelValues(reqType, op, outcome).Inc()
}
