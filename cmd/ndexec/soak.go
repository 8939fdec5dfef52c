package main

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/23skdu/longbow-ndexec/internal/executioner"
	"github.com/23skdu/longbow-ndexec/internal/ndarray"
)

type soakStats struct {
	iterations int64
	elements   int64
	elapsed    time.Duration
}

// soak runs freshly built ops over x from concurrency goroutines until d
// has passed or ctx is done. Every op gets its own output, so goroutines
// never write to shared views.
func soak(ctx context.Context, e *executioner.Executioner, spec opSpec, x *ndarray.NDArray, axis *int, d time.Duration, concurrency int) (soakStats, error) {
	log.Info().Str("duration", d.String()).Int("concurrency", concurrency).Msg("Starting soak test")
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	var iterations, elements atomic.Int64
	start := time.Now()
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				elapsed := time.Since(start)
				log.Info().
					Str("elapsed", elapsed.Round(time.Second).String()).
					Int64("iter", iterations.Load()).
					Float64("elements_per_sec", float64(elements.Load())/elapsed.Seconds()).
					Msg("Soak test progress")
			}
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < max(concurrency, 1); w++ {
		g.Go(func() error {
			for gctx.Err() == nil {
				op, err := spec.build(x)
				if err != nil {
					return err
				}
				if axis != nil {
					_, err = e.ExecAlong(gctx, op, *axis)
				} else {
					_, err = e.ExecAndReturn(gctx, op)
				}
				if err != nil {
					if gctx.Err() != nil {
						return nil
					}
					return err
				}
				iterations.Add(1)
				elements.Add(int64(x.Length()))
				soakIterations.Inc()
				soakElements.Add(float64(x.Length()))
			}
			return nil
		})
	}
	err := g.Wait()
	close(done)

	stats := soakStats{iterations: iterations.Load(), elements: elements.Load(), elapsed: time.Since(start)}
	rate := float64(stats.elements) / stats.elapsed.Seconds()
	log.Info().
		Str("total_iterations", humanize.Comma(stats.iterations)).
		Dur("total_time", stats.elapsed).
		Float64("avg_elements_per_sec", rate).
		Str("throughput", humanize.SIWithDigits(rate, 2, "elem/s")).
		Msg("Soak test complete")
	return stats, err
}
