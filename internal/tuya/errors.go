package tuya

import (
	"errors"
	"fmt"
)

// Sentinel errors for OpenAPI operations.
var (
	// ErrUnknownRegion is returned when no base URL can be derived from the region.
	ErrUnknownRegion = errors.New("tuya: unknown region")

	// ErrMissingCredentials is returned when the API key or secret is empty.
	ErrMissingCredentials = errors.New("tuya: api key and secret are required")

	// ErrRequestFailed is returned for transport failures and non-2xx HTTP replies.
	ErrRequestFailed = errors.New("tuya: request failed")

	// ErrTokenFailed is returned when an access token cannot be obtained.
	ErrTokenFailed = errors.New("tuya: token request failed")
)

// codeTokenInvalid is the OpenAPI error code for an expired or revoked token.
const codeTokenInvalid = 1010

// APIError is a reply with "success": false.
type APIError struct {
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tuya: api error %d: %s", e.Code, e.Msg)
}
