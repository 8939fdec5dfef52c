package buffer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var bytesAllocated = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ndexec_buffer_bytes_allocated_total",
	Help: "Total number of bytes allocated for host data buffers",
}, []string{"dtype"})
