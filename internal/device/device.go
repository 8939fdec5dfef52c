package device

import (
	"slices"
	"sync"

	"github.com/pkg/errors"

	"github.com/23skdu/longbow-ndexec/internal/config"
	"github.com/23skdu/longbow-ndexec/internal/ops"
)

var (
	// ErrBackendUnavailable is returned when a registered backend cannot run in
	// this process, for example a device backend without a device runtime.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrUnknownBackend is returned by New for names nobody registered.
	ErrUnknownBackend = errors.New("unknown backend")
)

// Backend executes validated ops over host views. Every method blocks until
// the work is done; backends that parallelise internally wait for their
// workers before returning.
type Backend interface {
	Name() string

	// Supports reports whether the backend has a kernel for t.
	Supports(t ops.Type) bool

	// Scalar runs KindScalar and KindComparison ops, writing z.
	Scalar(o *ops.Op) error

	// Transform runs KindTransform ops, writing z.
	Transform(o *ops.Op) error

	// Accumulate runs a KindAccumulation op and returns its float64 result.
	// It does not touch the op's result slot.
	Accumulate(o *ops.Op) (float64, error)

	// Synchronize blocks until all queued work is complete.
	Synchronize()
}

// Options tune a backend instance.
type Options struct {
	Workers      int
	MinChunkSize int
	Device       int
}

// OptionsFrom extracts backend options from a configuration.
func OptionsFrom(cfg config.Configuration) Options {
	return Options{Workers: cfg.Workers, MinChunkSize: cfg.MinChunkSize, Device: cfg.Device}
}

// Factory builds a backend from options.
type Factory func(opts Options) (Backend, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a backend available under name. Registering a name twice
// replaces the earlier factory.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// New builds the backend registered under name.
func New(name string, opts Options) (Backend, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrUnknownBackend, "%q (registered: %v)", name, Names())
	}
	return f(opts)
}

// Names lists the registered backends in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func init() {
	Register("reference", func(Options) (Backend, error) { return NewReferenceBackend(), nil })
	Register("vectorized", func(Options) (Backend, error) { return NewVectorizedBackend(), nil })
	Register("parallel", func(opts Options) (Backend, error) { return NewParallelBackend(opts), nil })
	Register("gpu", newGPUBackend)
}

func checkKind(b Backend, o *ops.Op, kinds ...ops.Kind) error {
	if !slices.Contains(kinds, o.Kind()) {
		return errors.Wrapf(ops.ErrIllegalOpKind, "%s backend cannot run %s op %s here", b.Name(), o.Kind(), o.Type())
	}
	if !b.Supports(o.Type()) {
		return errors.Wrapf(ops.ErrIllegalOpKind, "%s backend has no kernel for %s", b.Name(), o.Type())
	}
	return nil
}
