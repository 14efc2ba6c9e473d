// Package session runs the per-connection receive loop.
//
// Each accepted WebSocket connection gets one Session. Run reads frames one
// at a time and pushes each through the Pipeline (validate, translate,
// dispatch) before reading the next, so commands from a single connection
// reach the device in arrival order. A rejected message or a failed
// dispatch is logged and counted; only a read error or context
// cancellation ends the loop. The client never receives a reply.
package session
