package command

// Reason classifies the outcome of validating one inbound message.
type Reason string

// Validation outcomes.
const (
	ReasonAccepted     Reason = "accepted"
	ReasonMalformed    Reason = "malformed_payload"
	ReasonUnrecognized Reason = "unrecognized_command"
)

// Inbound field names on the client wire format.
const (
	FieldDeviceType = "deviceType"
	FieldState      = "state"
)

// Result is the outcome of Validator.Validate.
//
// DeviceType and State echo the inbound values (empty when absent or not a
// string) so rejections can be logged with the offending fields.
// ControlPoint is only set when Reason is ReasonAccepted.
type Result struct {
	Reason       Reason
	DeviceType   string
	State        string
	ControlPoint string
	Err          error
}

// Accepted reports whether the message passed validation.
func (r Result) Accepted() bool {
	return r.Reason == ReasonAccepted
}

// Command is a single Tuya data-point instruction.
type Command struct {
	Code  string `json:"code"`
	Value bool   `json:"value"`
}

// Payload is the body sent to the Tuya device commands endpoint.
//
//	{"commands":[{"code":"switch_1","value":true}]}
type Payload struct {
	Commands []Command `json:"commands"`
}

// NewPayload wraps commands in the remote envelope.
func NewPayload(cmds ...Command) Payload {
	return Payload{Commands: cmds}
}
