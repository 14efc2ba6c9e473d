package session

import (
	"context"

	"github.com/nerrad567/tuya-relay/internal/command"
	"github.com/nerrad567/tuya-relay/internal/dispatch"
	"github.com/nerrad567/tuya-relay/internal/infrastructure/logging"
)

// Recorder is told about every validation result, including rejections
// that never reach the dispatcher.
type Recorder interface {
	RecordValidation(ctx context.Context, sessionID string, r command.Result)
}

// Pipeline wires the per-message processing stages together.
//
// Validator, Translator and Dispatcher are required. Recorder and Logger
// are optional.
type Pipeline struct {
	Validator  *command.Validator
	Translator command.Translator
	Dispatcher *dispatch.Dispatcher
	Recorder   Recorder
	Logger     *logging.Logger
}

// Result describes what happened to one inbound message.
type Result struct {
	Validation command.Result

	// Outcome is nil when the message was rejected before dispatch.
	Outcome *dispatch.Outcome
}

// Dispatched reports whether the message reached the remote client.
func (r Result) Dispatched() bool {
	return r.Outcome != nil
}

// Err returns the rejection or dispatch error, if any.
func (r Result) Err() error {
	if r.Validation.Err != nil {
		return r.Validation.Err
	}
	if r.Outcome != nil {
		return r.Outcome.Err
	}
	return nil
}

// Process handles a single raw message.
func (p *Pipeline) Process(ctx context.Context, sessionID string, raw []byte) Result {
	v := p.Validator.Validate(raw)
	if p.Recorder != nil {
		p.Recorder.RecordValidation(ctx, sessionID, v)
	}

	cmd, ok := p.Translator.TranslateResult(v)
	if !ok {
		return Result{Validation: v}
	}

	p.logger().Debug("dispatching command",
		"session_id", sessionID,
		"device_type", v.DeviceType,
		"code", cmd.Code,
		"value", cmd.Value,
	)

	o := p.Dispatcher.Send(ctx, cmd, dispatch.Meta{
		SessionID:  sessionID,
		DeviceType: v.DeviceType,
		State:      v.State,
	})
	return Result{Validation: v, Outcome: &o}
}

func (p *Pipeline) logger() *logging.Logger {
	if p.Logger == nil {
		return logging.Discard()
	}
	return p.Logger
}
