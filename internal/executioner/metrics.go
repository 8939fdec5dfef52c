package executioner

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	opsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ndexec_ops_executed_total",
		Help: "Total number of ops executed successfully",
	}, []string{"kind", "backend"})

	opErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ndexec_op_errors_total",
		Help: "Total number of ops that failed validation or execution",
	}, []string{"kind", "backend"})

	opDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ndexec_op_duration_seconds",
		Help:    "Time spent executing one op, including every slice of an axis execution",
		Buckets: prometheus.ExponentialBuckets(1e-6, 4, 12),
	}, []string{"kind"})

	nonFiniteOutputs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ndexec_nonfinite_outputs_total",
		Help: "Ops whose output held NaN or Inf values, counted only in debug mode",
	}, []string{"op"})
)
