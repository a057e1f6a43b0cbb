package supervisor

import "github.com/teosibileau/grillgauge/internal/errors"

const (
	ErrRegistryUnavailable = errors.ErrorCode("supervisor_registry_unavailable")
	ErrDiscoveryFailed     = errors.ErrorCode("supervisor_discovery_failed")
	ErrInvalidInterval     = errors.ErrorCode("supervisor_invalid_interval")
	ErrShutdownTimeout     = errors.ErrorCode("supervisor_shutdown_timeout")
)
