// Package executioner dispatches ops to a compute backend.
//
// An Executioner holds a configuration and a backend for its lifetime and no
// state between calls. Every entry point is synchronous: when it returns, all
// writes to the op's output and result slot are visible to the caller.
//
// Scalar, comparison and transform ops write z (x unless the op was given
// another output) and read x and y. Accumulations only read. Execution along
// an axis writes a freshly allocated output. A failing op may already have
// written part of z; those writes are not rolled back.
package executioner

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/23skdu/longbow-ndexec/internal/config"
	"github.com/23skdu/longbow-ndexec/internal/device"
	"github.com/23skdu/longbow-ndexec/internal/ndarray"
	"github.com/23skdu/longbow-ndexec/internal/ops"
)

var tracer = otel.Tracer("ndexec-executioner")

// Executioner runs ops against one backend.
type Executioner struct {
	cfg     config.Configuration
	env     *config.Environment
	backend device.Backend
}

// Option customises New.
type Option func(*Executioner)

// WithBackend uses b instead of the backend named by the configuration.
func WithBackend(b device.Backend) Option {
	return func(e *Executioner) { e.backend = b }
}

// WithEnvironment consults env for the debug and verbose flags at execution
// time, in addition to those of the configuration.
func WithEnvironment(env *config.Environment) Option {
	return func(e *Executioner) { e.env = env }
}

// New validates cfg and builds its backend from the device registry.
func New(cfg config.Configuration, opts ...Option) (*Executioner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Executioner{cfg: cfg}
	for _, opt := range opts {
		opt(e)
	}
	if e.backend == nil {
		b, err := device.New(cfg.Backend, device.OptionsFrom(cfg))
		if err != nil {
			return nil, err
		}
		e.backend = b
	}
	log.Info().
		Str("backend", e.backend.Name()).
		Str("dtype", cfg.DType).
		Int("workers", cfg.Workers).
		Msg("executioner ready")
	return e, nil
}

var (
	defaultOnce sync.Once
	defaultExec *Executioner
	defaultErr  error
)

// Default returns the process-wide executioner built from the process-wide
// Environment on first use. If the configured backend cannot run here, the
// reference backend is used instead.
func Default() (*Executioner, error) {
	defaultOnce.Do(func() {
		env := config.Env()
		cfg := env.Configuration()
		defaultExec, defaultErr = New(cfg, WithEnvironment(env))
		if errors.Is(defaultErr, device.ErrBackendUnavailable) {
			log.Warn().Err(defaultErr).Str("backend", cfg.Backend).Msg("falling back to reference backend")
			cfg.Backend = "reference"
			defaultExec, defaultErr = New(cfg, WithEnvironment(env))
		}
	})
	return defaultExec, defaultErr
}

// Backend returns the backend ops are dispatched to.
func (e *Executioner) Backend() device.Backend { return e.backend }

// Configuration returns the configuration the executioner was built with.
func (e *Executioner) Configuration() config.Configuration { return e.cfg }

func (e *Executioner) debug() bool {
	return e.cfg.Debug || (e.env != nil && e.env.IsDebug())
}

func (e *Executioner) verbose() bool {
	return e.cfg.Verbose || (e.env != nil && e.env.IsVerbose())
}

// Exec runs op over all of its operands. Elementwise ops return their
// output view; accumulations return a rank-0 array holding the result, which
// is also left in the op's result slot.
func (e *Executioner) Exec(ctx context.Context, op *ops.Op) (*ndarray.NDArray, error) {
	if _, err := e.ExecAndReturn(ctx, op); err != nil {
		return nil, err
	}
	if op.Kind() != ops.KindAccumulation {
		return op.Z()
	}
	v, err := op.CurrentResult()
	if err != nil {
		return nil, err
	}
	x := op.X()
	return ndarray.NewFactory(x.DType(), x.Allocator()).Scalar(v)
}

// ExecAndReturn runs op and returns it with its output and result slot populated.
func (e *Executioner) ExecAndReturn(ctx context.Context, op *ops.Op) (*ops.Op, error) {
	ctx, span := e.start(ctx, "Exec", op)
	defer span.End()
	start := time.Now()

	err := e.run(ctx, op)
	e.finish(span, op, start, err)
	if err != nil {
		return nil, err
	}
	return op, nil
}

func (e *Executioner) run(ctx context.Context, op *ops.Op) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := op.Validate(); err != nil {
		return err
	}
	result, err := e.dispatch(op)
	if err != nil {
		return err
	}
	op.Finish(result)
	if e.debug() {
		e.checkFinite(op, result)
	}
	return nil
}

// ExecAlong runs op independently on every slice of x taken along axis, in
// index order. Within a slice, elements are visited row-major over the
// remaining axes.
//
// Accumulations write the result of slice i to element i of a new rank-1
// array of length shape[axis], which becomes the op's output; CurrentResult
// then fails with ErrNoScalarResult. SoftMax normalises each slice on its
// own. Other elementwise ops produce the same values as Exec, slice by slice.
func (e *Executioner) ExecAlong(ctx context.Context, op *ops.Op, axis int) (*ndarray.NDArray, error) {
	ctx, span := e.start(ctx, "ExecAlong", op)
	defer span.End()
	span.SetAttributes(attribute.Int("ndexec.axis", axis))
	start := time.Now()

	out, err := e.runAlong(ctx, op, axis)
	e.finish(span, op, start, err)
	return out, err
}

func (e *Executioner) runAlong(ctx context.Context, op *ops.Op, axis int) (*ndarray.NDArray, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := op.Validate(); err != nil {
		return nil, err
	}
	x, y, z := op.Operands()
	xs, err := x.Slices(axis)
	if err != nil {
		return nil, err
	}
	var ys, zs []*ndarray.NDArray
	// y and z were validated against x's shape, so their slicing cannot fail.
	if y != nil {
		ys = must.M1(y.Slices(axis))
	}
	if op.Kind() == ops.KindAccumulation {
		z, err = x.NewLike(len(xs))
		if err != nil {
			return nil, err
		}
	} else {
		zs = must.M1(z.Slices(axis))
	}

	for i, xi := range xs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var yi, zi *ndarray.NDArray
		if ys != nil {
			yi = ys[i]
		}
		if zs != nil {
			zi = zs[i]
		}
		sub := op.Derive(xi, yi, zi)
		r, err := e.dispatch(sub)
		if err != nil {
			return nil, errors.WithMessagef(err, "slice %d along axis %d", i, axis)
		}
		if op.Kind() == ops.KindAccumulation {
			if err := z.PutDouble(i, r); err != nil {
				return nil, err
			}
		}
	}
	op.FinishAlong(z)
	if e.debug() {
		e.checkFinite(op, 0)
	}
	return z, nil
}

func (e *Executioner) dispatch(op *ops.Op) (float64, error) {
	if !e.backend.Supports(op.Type()) {
		return 0, errors.Wrapf(ops.ErrIllegalOpKind, "%s backend does not support %s", e.backend.Name(), op.Type())
	}
	if e.verbose() {
		x := op.X()
		log.Debug().
			Str("op", op.Type().String()).
			Str("kind", op.Kind().String()).
			Str("backend", e.backend.Name()).
			Ints("shape", x.Shape()).
			Ints("stride", x.Stride()).
			Str("order", x.Order().String()).
			Msg("dispatch")
	}
	var (
		result float64
		err    error
	)
	switch op.Kind() {
	case ops.KindScalar, ops.KindComparison:
		err = e.backend.Scalar(op)
	case ops.KindTransform:
		err = e.backend.Transform(op)
	case ops.KindAccumulation:
		result, err = e.backend.Accumulate(op)
	default:
		err = errors.Wrapf(ops.ErrIllegalOpKind, "op kind %s", op.Kind())
	}
	e.backend.Synchronize()
	return result, err
}

func (e *Executioner) start(ctx context.Context, name string, op *ops.Op) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, name)
	span.SetAttributes(
		attribute.String("ndexec.op", op.Type().String()),
		attribute.String("ndexec.kind", op.Kind().String()),
		attribute.String("ndexec.backend", e.backend.Name()),
	)
	if x := op.X(); x != nil {
		span.SetAttributes(attribute.Int("ndexec.length", x.Length()))
	}
	return ctx, span
}

func (e *Executioner) finish(span trace.Span, op *ops.Op, start time.Time, err error) {
	kind := op.Kind().String()
	opDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		opErrors.WithLabelValues(kind, e.backend.Name()).Inc()
		if e.verbose() {
			log.Debug().Err(err).Str("op", op.Type().String()).Msg("op failed")
		}
		return
	}
	opsExecuted.WithLabelValues(kind, e.backend.Name()).Inc()
}

// checkFinite warns about NaN or Inf in the op's output. It only reads.
func (e *Executioner) checkFinite(op *ops.Op, result float64) {
	bad := 0
	if op.Kind() == ops.KindAccumulation && !op.IsDimensional() {
		if math.IsNaN(result) || math.IsInf(result, 0) {
			bad = 1
		}
	} else {
		_, _, z := op.Operands()
		for _, v := range z.ToFloat64s() {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				bad++
			}
		}
	}
	if bad == 0 {
		return
	}
	nonFiniteOutputs.WithLabelValues(op.Type().String()).Inc()
	log.Warn().
		Str("op", op.Type().String()).
		Int("count", bad).
		Msg("non-finite values in op output")
}
