package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	soakIterations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ndexec_soak_iterations_total",
		Help: "The total number of ops executed by the soak loop",
	})

	soakElements = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ndexec_soak_elements_total",
		Help: "The total number of input elements processed by the soak loop",
	})
)

// allocationReporter is satisfied by memory.CheckedAllocator.
type allocationReporter interface {
	CurrentAlloc() int
}

func newMux(mem allocationReporter) *http.ServeMux {
	if mem != nil {
		prometheus.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "ndexec_allocated_bytes",
				Help: "Bytes currently allocated through the CLI's Arrow allocator",
			},
			func() float64 { return float64(mem.CurrentAlloc()) },
		))
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", handleHealth)
	return mux
}

func startMetricsServer(addr string, mem allocationReporter) {
	log.Info().Str("addr", addr).Msg("Serving metrics")
	if err := http.ListenAndServe(addr, newMux(mem)); err != nil {
		log.Fatal().Err(err).Msg("Metrics server failed")
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
