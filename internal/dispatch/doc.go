// Package dispatch sends translated commands to the remote device client.
//
// A Dispatcher makes exactly one DeviceClient.SendCommand call per Send and
// always returns an Outcome value: transport errors, remote rejections,
// timeouts and even panics inside the client are captured as a failed
// Outcome wrapping ErrDispatchFailed. Nothing is retried or batched here;
// any retry policy belongs to the DeviceClient.
//
// Observers registered with WithObserver see every Outcome after the call
// completes (metrics, MQTT events, audit log). A misbehaving observer
// cannot affect the Outcome returned to the caller.
package dispatch
