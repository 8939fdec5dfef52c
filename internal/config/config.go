package config

import (
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/23skdu/longbow-ndexec/internal/buffer"
)

// ErrInvalidConfig is returned by Load, FromEnv and Validate for settings that
// cannot be honoured.
var ErrInvalidConfig = errors.New("invalid configuration")

// Environment variables read by FromEnv.
const (
	EnvDebug    = "NDEXEC_DEBUG"
	EnvVerbose  = "NDEXEC_VERBOSE"
	EnvBackend  = "NDEXEC_BACKEND"
	EnvDType    = "NDEXEC_DTYPE"
	EnvWorkers  = "NDEXEC_WORKERS"
	EnvMinChunk = "NDEXEC_MIN_CHUNK"
	EnvDevice   = "NDEXEC_DEVICE"
)

// Configuration selects the compute backend and its tuning knobs.
type Configuration struct {
	// Debug enables extra validation of op outputs (NaN/Inf scans).
	Debug bool `yaml:"debug"`
	// Verbose logs every dispatched op.
	Verbose bool `yaml:"verbose"`
	// Backend is a name registered with the device package.
	Backend string `yaml:"backend"`
	// DType is the default element type of newly created arrays.
	DType string `yaml:"dtype"`
	// Workers bounds the goroutines of the parallel backend.
	Workers int `yaml:"workers"`
	// MinChunkSize is the smallest index range handed to a parallel worker.
	MinChunkSize int `yaml:"min_chunk_size"`
	// Device is the ordinal used by device backends.
	Device int `yaml:"device"`
}

// Default returns the configuration used when nothing else is specified.
func Default() Configuration {
	return Configuration{
		Backend:      "vectorized",
		DType:        buffer.Double.String(),
		Workers:      runtime.NumCPU(),
		MinChunkSize: 4096,
	}
}

// Load reads a YAML file on top of Default.
func Load(path string) (Configuration, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "reading config %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(ErrInvalidConfig, "parsing %s: %v", path, err)
	}
	return cfg, cfg.Validate()
}

// FromEnv applies NDEXEC_* overrides to base.
func FromEnv(base Configuration) (Configuration, error) {
	cfg := base
	if v, ok := os.LookupEnv(EnvDebug); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return base, errors.Wrapf(ErrInvalidConfig, "%s=%q", EnvDebug, v)
		}
		cfg.Debug = b
	}
	if v, ok := os.LookupEnv(EnvVerbose); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return base, errors.Wrapf(ErrInvalidConfig, "%s=%q", EnvVerbose, v)
		}
		cfg.Verbose = b
	}
	if v, ok := os.LookupEnv(EnvBackend); ok && v != "" {
		cfg.Backend = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := os.LookupEnv(EnvDType); ok && v != "" {
		cfg.DType = v
	}
	if v, ok := os.LookupEnv(EnvWorkers); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return base, errors.Wrapf(ErrInvalidConfig, "%s=%q", EnvWorkers, v)
		}
		cfg.Workers = n
	}
	if v, ok := os.LookupEnv(EnvMinChunk); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return base, errors.Wrapf(ErrInvalidConfig, "%s=%q", EnvMinChunk, v)
		}
		cfg.MinChunkSize = n
	}
	if v, ok := os.LookupEnv(EnvDevice); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return base, errors.Wrapf(ErrInvalidConfig, "%s=%q", EnvDevice, v)
		}
		cfg.Device = n
	}
	return cfg, cfg.Validate()
}

// ElementType parses DType.
func (c Configuration) ElementType() (buffer.DType, error) {
	return buffer.ParseDType(c.DType)
}

// Validate checks ranges and names that can be checked without the device registry.
func (c Configuration) Validate() error {
	if c.Backend == "" {
		return errors.Wrap(ErrInvalidConfig, "empty backend name")
	}
	if _, err := c.ElementType(); err != nil {
		return errors.Wrapf(ErrInvalidConfig, "dtype %q", c.DType)
	}
	if c.Workers < 1 {
		return errors.Wrapf(ErrInvalidConfig, "workers must be positive, got %d", c.Workers)
	}
	if c.MinChunkSize < 1 {
		return errors.Wrapf(ErrInvalidConfig, "min_chunk_size must be positive, got %d", c.MinChunkSize)
	}
	if c.Device < 0 {
		return errors.Wrapf(ErrInvalidConfig, "device ordinal %d", c.Device)
	}
	return nil
}
