package command

import (
	"encoding/json"
	"fmt"

	"github.com/nerrad567/tuya-relay/internal/catalog"
	"github.com/nerrad567/tuya-relay/internal/infrastructure/logging"
)

// maxLoggedPayload bounds how much of a rejected payload ends up in logs.
const maxLoggedPayload = 256

// Validator checks inbound messages against a Catalog.
//
// Thread Safety: safe for concurrent use; it holds no mutable state.
type Validator struct {
	catalog *catalog.Catalog
	logger  *logging.Logger
}

// NewValidator creates a Validator backed by cat. A nil logger discards
// validation events.
func NewValidator(cat *catalog.Catalog, logger *logging.Logger) *Validator {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Validator{
		catalog: cat,
		logger:  logger.With("component", "validator"),
	}
}

// Validate decodes raw and checks it against the catalog.
//
// Anything that is not a JSON object is ReasonMalformed. A missing or
// non-string deviceType/state is not a decode error; it simply fails to
// match and yields ReasonUnrecognized.
func (v *Validator) Validate(raw []byte) Result {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		if err == nil {
			err = fmt.Errorf("payload is null")
		}
		v.logger.Warn("message is not valid JSON",
			"payload", truncate(raw),
			"error", err,
		)
		return Result{
			Reason: ReasonMalformed,
			Err:    fmt.Errorf("%w: %w", ErrMalformedPayload, err),
		}
	}

	deviceType, _ := fields[FieldDeviceType].(string) //nolint:errcheck // non-string values are treated as absent
	state, _ := fields[FieldState].(string)           //nolint:errcheck // non-string values are treated as absent

	code, known := v.catalog.LookupControlPoint(deviceType)
	if !known || !v.catalog.IsPermittedState(state) {
		v.logger.Warn("invalid message format or data",
			"device_type", deviceType,
			"state", state,
			"known_device", known,
		)
		return Result{
			Reason:     ReasonUnrecognized,
			DeviceType: deviceType,
			State:      state,
			Err:        fmt.Errorf("%w: device_type=%q state=%q", ErrUnrecognizedCommand, deviceType, state),
		}
	}

	v.logger.Debug("valid message",
		"device_type", deviceType,
		"state", state,
		"control_point", code,
	)
	return Result{
		Reason:       ReasonAccepted,
		DeviceType:   deviceType,
		State:        state,
		ControlPoint: code,
	}
}

func truncate(raw []byte) string {
	if len(raw) <= maxLoggedPayload {
		return string(raw)
	}
	return string(raw[:maxLoggedPayload]) + "..."
}
