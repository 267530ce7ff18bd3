package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	BatchesRun     prometheus.Counter
	Candidates     prometheus.Counter
	ChasesSent     prometheus.Counter
	ChasesFailed   prometheus.Counter
	ChaseConflicts prometheus.Counter
	RecordsExpired prometheus.Counter
}

func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		BatchesRun: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chase_batches_run_total",
			Help: "Number of chase batch cycles executed.",
		}),
		Candidates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chase_candidates_total",
			Help: "Invoices considered across all batch cycles.",
		}),
		ChasesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chase_sent_total",
			Help: "Chase emails successfully sent.",
		}),
		ChasesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chase_failed_total",
			Help: "Chase attempts that failed at a collaborator.",
		}),
		ChaseConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chase_conflicts_total",
			Help: "Chase commits rejected by the optimistic write guard.",
		}),
		RecordsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chase_records_expired_total",
			Help: "Failed chase records deleted by the retention job.",
		}),
	}
	reg.MustRegister(
		m.BatchesRun,
		m.Candidates,
		m.ChasesSent,
		m.ChasesFailed,
		m.ChaseConflicts,
		m.RecordsExpired,
	)
	return m
}
