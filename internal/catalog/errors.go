package catalog

import "errors"

// Errors returned by New when the configured vocabulary is unusable.
var (
	// ErrNoDevices is returned when the device map is empty.
	ErrNoDevices = errors.New("catalog: no devices configured")

	// ErrInvalidEntry is returned for a device with an empty name or control point.
	ErrInvalidEntry = errors.New("catalog: invalid device entry")

	// ErrNoStates is returned when the permitted state set is empty.
	ErrNoStates = errors.New("catalog: no states configured")

	// ErrInvalidState is returned for an empty state token or an activate
	// token that is not part of the permitted set.
	ErrInvalidState = errors.New("catalog: invalid state")
)
