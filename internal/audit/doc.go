// Package audit persists a history of every inbound control message and
// what became of it: dispatched, failed, or rejected by validation.
//
// The log backs the GET /api/v1/audit endpoint. It records outcomes only;
// no device state is derived from it.
package audit
