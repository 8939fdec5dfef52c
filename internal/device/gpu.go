package device

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// newGPUBackend is the factory behind the "gpu" name. No device runtime is
// linked into this build, so selecting it always fails; callers fall back to
// a host backend.
func newGPUBackend(opts Options) (Backend, error) {
	log.Debug().Int("device", opts.Device).Msg("gpu backend requested without a device runtime")
	return nil, errors.Wrapf(ErrBackendUnavailable, "gpu device %d: no device runtime in this build", opts.Device)
}
