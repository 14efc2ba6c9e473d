package command

import "errors"

// Rejection errors carried by Result.Err.
var (
	// ErrMalformedPayload is returned when the payload is not a JSON object.
	ErrMalformedPayload = errors.New("command: malformed payload")

	// ErrUnrecognizedCommand is returned when the device type or state is
	// not part of the catalog.
	ErrUnrecognizedCommand = errors.New("command: unrecognized command")
)
