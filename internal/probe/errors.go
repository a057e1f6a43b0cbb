package probe

import "github.com/teosibileau/grillgauge/internal/errors"

const (
	ErrFrameTooShort = errors.ErrorCode("probe_frame_too_short")
)
