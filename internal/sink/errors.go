package sink

import "errors"

// Shared error taxonomy. Start-time failures are terminal for that
// attempt and move the output to StatusError; per-frame failures are
// absorbed and counted by the sink that saw them.
var (
	ErrAlreadyRunning    = errors.New("output already running")
	ErrNotRunning        = errors.New("output not running")
	ErrInvalidFrame      = errors.New("frame missing or invalid")
	ErrInvalidResolution = errors.New("resolution outside supported range")
	ErrNoSurface         = errors.New("no presentable surface available")
	ErrDeviceLost        = errors.New("display connection lost")
	ErrSenderFailed      = errors.New("video sender could not be created")
)
