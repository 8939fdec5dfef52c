//go:build cgo && netlib

package device

// This file routes the blas64 calls of the vectorized backend to the system
// BLAS (Accelerate on macOS, OpenBLAS on Linux) when built with -tags netlib.

import (
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/netlib/blas/netlib"
)

func init() {
	blas64.Use(netlib.Implementation{})
	log.Debug().Msg("netlib BLAS enabled for blas64")
}
