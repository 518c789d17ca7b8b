package crew

import "errors"

var (
	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("crew: invalid config")

	// ErrMissingHardware is returned when takeoff finds an unwired device.
	ErrMissingHardware = errors.New("crew: hardware not wired")

	// ErrAlreadyLanded is returned when Land runs twice.
	ErrAlreadyLanded = errors.New("crew: already landed")

	// ErrNotAirborne is returned when Land runs before Takeoff.
	ErrNotAirborne = errors.New("crew: takeoff has not happened")
)
