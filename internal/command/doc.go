// Package command turns raw client messages into Tuya command payloads.
//
// The pipeline for one inbound message is:
//
//	raw bytes --Validator.Validate--> Result --Translator.Translate--> Command
//
// Validate never fails out of band: malformed JSON and unknown
// device/state pairs are reported through Result.Reason so callers can
// branch on the outcome and carry on with the next message.
//
// A Command is only ever built from a Result whose Reason is
// ReasonAccepted, which guarantees both the device and the state were
// present in the catalog.
package command
