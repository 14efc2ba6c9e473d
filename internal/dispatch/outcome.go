package dispatch

import (
	"encoding/json"
	"time"

	"github.com/nerrad567/tuya-relay/internal/command"
)

// Outcome is the result of a single dispatch.
type Outcome struct {
	Success bool

	// Command is what was sent.
	Command command.Command

	// DeviceID is the remote device the command targeted.
	DeviceID string

	// Meta identifies where the command came from, for observers.
	Meta Meta

	// Response is the raw remote reply, when one was received.
	Response json.RawMessage

	// Err is non-nil on failure and always wraps ErrDispatchFailed.
	Err error

	Duration time.Duration
	SentAt   time.Time
}

// Meta carries request context that is not part of the remote payload.
type Meta struct {
	SessionID  string
	DeviceType string
	State      string
}

// ErrorString returns the error text or an empty string.
func (o Outcome) ErrorString() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}
