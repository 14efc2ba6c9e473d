// Package tuya is a minimal Tuya OpenAPI (cloud) client.
//
// It implements the two calls the relay needs:
//
//   - GET  /v1.0/token?grant_type=1                    (access token)
//   - POST /v1.0/iot-03/devices/{device_id}/commands   (send data points)
//
// Every request is signed with HMAC-SHA256 over the client id, the access
// token (when present), a millisecond timestamp and the canonical request
// string (method, body hash, path). Tokens are cached until shortly before
// they expire; a "token invalid" reply drops the cached token and the
// request is repeated once with a fresh one.
//
// Thread Safety: a Client is safe for concurrent use. The token cache is the
// only shared state and is guarded by a mutex.
package tuya
