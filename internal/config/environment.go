package config

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Environment is the process-wide configuration holder. Reads vastly
// outnumber writes; both are safe from any goroutine.
type Environment struct {
	mu  sync.RWMutex
	cfg Configuration
}

var (
	envOnce sync.Once
	env     *Environment
)

// Env returns the process-wide Environment, built from Default and the
// NDEXEC_* variables on first use. Invalid variables are logged and ignored.
func Env() *Environment {
	envOnce.Do(func() {
		cfg, err := FromEnv(Default())
		if err != nil {
			log.Warn().Err(err).Msg("ignoring environment configuration")
			cfg = Default()
		}
		env = &Environment{cfg: cfg}
	})
	return env
}

// NewEnvironment returns an Environment independent of the process-wide one.
func NewEnvironment(cfg Configuration) (*Environment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Environment{cfg: cfg}, nil
}

// Configuration returns a copy of the current settings.
func (e *Environment) Configuration() Configuration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

// Set replaces the settings after validating them.
func (e *Environment) Set(cfg Configuration) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	e.cfg = cfg
	e.mu.Unlock()
	return nil
}

func (e *Environment) IsDebug() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg.Debug
}

func (e *Environment) IsVerbose() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg.Verbose
}

func (e *Environment) EnableDebug(on bool) {
	e.mu.Lock()
	e.cfg.Debug = on
	e.mu.Unlock()
}

func (e *Environment) SetVerbose(on bool) {
	e.mu.Lock()
	e.cfg.Verbose = on
	e.mu.Unlock()
}
