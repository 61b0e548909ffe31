package operation

import "errors"

var (
	ErrModeChangeTimeout  = errors.New("mode change timeout")
	ErrArmingFailed       = errors.New("arming failed")
	ErrDisarmTimeout      = errors.New("disarm timeout")
	ErrAltitudeTimeout    = errors.New("altitude timeout")
	ErrUploadFailed       = errors.New("mission upload failed")
	ErrPreconditionNotMet = errors.New("precondition not met")
)
