package device

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	scratchHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ndexec_scratch_pool_hits_total",
		Help: "Total number of gather buffers served from the scratch pool",
	})

	scratchMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ndexec_scratch_pool_misses_total",
		Help: "Total number of gather buffers allocated because the pool had none large enough",
	})

	vectorizedFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ndexec_vectorized_fallbacks_total",
		Help: "Ops the vectorized backend ran through the strided reference kernels",
	}, []string{"op"})

	parallelChunks = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ndexec_parallel_chunks",
		Help:    "Number of chunks the parallel backend split an op into",
		Buckets: prometheus.ExponentialBuckets(1, 2, 8),
	})
)
