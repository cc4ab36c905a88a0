package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	executionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vtu_executions_total",
		Help: "Purchase executions by kind and result status",
	}, []string{"kind", "status"})

	providerCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vtu_provider_call_duration_seconds",
		Help:    "Latency of provider fulfillment calls by kind and outcome",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"kind", "outcome"})

	sweepItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vtu_sweep_items_total",
		Help: "Items handled by reconciliation sweeps, labeled by sweep and result",
	}, []string{"sweep", "result"})

	refundsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vtu_refunds_total",
		Help: "Compensating credits issued, labeled by source",
	}, []string{"source"})
)
