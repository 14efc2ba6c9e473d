package dispatch

import "errors"

var (
	// ErrDispatchFailed wraps every failure reported in a failed Outcome.
	ErrDispatchFailed = errors.New("dispatch: send failed")

	// ErrNoClient is returned by New when the device client is nil.
	ErrNoClient = errors.New("dispatch: device client is required")

	// ErrNoDeviceID is returned by New when the target device id is empty.
	ErrNoDeviceID = errors.New("dispatch: device id is required")
)
