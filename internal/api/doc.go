// Package api serves the relay's WebSocket control endpoint and its small
// HTTP side API.
//
// Each WebSocket connection is handed to a session.Session that pushes
// every inbound frame through the validate, translate, dispatch pipeline.
// Clients never receive a reply on the socket; the server only sends
// keep-alive pings.
//
// The side API is read-only:
//
//	GET /api/v1/health     liveness plus component status
//	GET /api/v1/catalog    addressable device types and states
//	GET /api/v1/sessions   open WebSocket sessions and their counters
//	GET /api/v1/metrics    JSON runtime and relay counters
//	GET /api/v1/audit      dispatch history (when the database is enabled)
//	GET /metrics           Prometheus exposition
//
// There is no client authentication.
package api
