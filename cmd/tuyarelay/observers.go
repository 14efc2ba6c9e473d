package main

import (
	"context"
	"time"

	"github.com/nerrad567/tuya-relay/internal/audit"
	"github.com/nerrad567/tuya-relay/internal/command"
	"github.com/nerrad567/tuya-relay/internal/dispatch"
	"github.com/nerrad567/tuya-relay/internal/infrastructure/influxdb"
	"github.com/nerrad567/tuya-relay/internal/infrastructure/logging"
	"github.com/nerrad567/tuya-relay/internal/infrastructure/mqtt"
	"github.com/nerrad567/tuya-relay/internal/session"
)

// auditWriteTimeout bounds a single audit insert. Inserts run detached from
// the session context so a closing connection still gets its row.
const auditWriteTimeout = 5 * time.Second

// recorderSet fans validation results out to several recorders.
type recorderSet []session.Recorder

// RecordValidation implements session.Recorder.
func (rs recorderSet) RecordValidation(ctx context.Context, sessionID string, r command.Result) {
	for _, rec := range rs {
		rec.RecordValidation(ctx, sessionID, r)
	}
}

// eventPublisher is the part of mqtt.Client used for events.
type eventPublisher interface {
	PublishJSON(topic string, v any, retained bool) error
	Topics() mqtt.Topics
}

// DispatchEvent is published on {prefix}/dispatch/{deviceType}.
type DispatchEvent struct {
	SessionID  string  `json:"session_id"`
	DeviceType string  `json:"device_type"`
	State      string  `json:"state"`
	DeviceID   string  `json:"device_id"`
	Code       string  `json:"code"`
	Value      bool    `json:"value"`
	Success    bool    `json:"success"`
	Error      string  `json:"error,omitempty"`
	DurationMS float64 `json:"duration_ms"`
	Timestamp  string  `json:"timestamp"`
}

// RejectionEvent is published on {prefix}/rejected.
type RejectionEvent struct {
	SessionID  string `json:"session_id"`
	Reason     string `json:"reason"`
	DeviceType string `json:"device_type,omitempty"`
	State      string `json:"state,omitempty"`
	Error      string `json:"error,omitempty"`
	Timestamp  string `json:"timestamp"`
}

// mqttEvents publishes dispatch outcomes and rejections.
type mqttEvents struct {
	client eventPublisher
	log    *logging.Logger
}

// ObserveDispatch implements dispatch.Observer.
func (e *mqttEvents) ObserveDispatch(_ context.Context, o dispatch.Outcome) {
	ev := DispatchEvent{
		SessionID:  o.Meta.SessionID,
		DeviceType: o.Meta.DeviceType,
		State:      o.Meta.State,
		DeviceID:   o.DeviceID,
		Code:       o.Command.Code,
		Value:      o.Command.Value,
		Success:    o.Success,
		Error:      o.ErrorString(),
		DurationMS: float64(o.Duration) / float64(time.Millisecond),
		Timestamp:  o.SentAt.UTC().Format(time.RFC3339Nano),
	}
	topic := e.client.Topics().Dispatch(o.Meta.DeviceType)
	if err := e.client.PublishJSON(topic, ev, false); err != nil {
		e.log.Debug("dispatch event not published", "topic", topic, "error", err)
	}
}

// RecordValidation implements session.Recorder. Accepted messages are
// reported by ObserveDispatch instead.
func (e *mqttEvents) RecordValidation(_ context.Context, sessionID string, r command.Result) {
	if r.Accepted() {
		return
	}
	ev := RejectionEvent{
		SessionID:  sessionID,
		Reason:     string(r.Reason),
		DeviceType: r.DeviceType,
		State:      r.State,
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
	}
	if r.Err != nil {
		ev.Error = r.Err.Error()
	}
	topic := e.client.Topics().Rejected()
	if err := e.client.PublishJSON(topic, ev, false); err != nil {
		e.log.Debug("rejection event not published", "topic", topic, "error", err)
	}
}

// pointWriter is the part of influxdb.Client used for metrics.
type pointWriter interface {
	WriteDispatch(p influxdb.DispatchPoint)
	WriteValidation(reason, deviceType string)
}

// influxPoints writes time-series points for validations and dispatches.
type influxPoints struct {
	client pointWriter
}

// ObserveDispatch implements dispatch.Observer.
func (p *influxPoints) ObserveDispatch(_ context.Context, o dispatch.Outcome) {
	p.client.WriteDispatch(influxdb.DispatchPoint{
		DeviceType: o.Meta.DeviceType,
		Code:       o.Command.Code,
		Value:      o.Command.Value,
		Success:    o.Success,
		Duration:   o.Duration,
		Time:       o.SentAt,
	})
}

// RecordValidation implements session.Recorder. Device types are only
// tagged for accepted messages, which are bounded by the catalog.
func (p *influxPoints) RecordValidation(_ context.Context, _ string, r command.Result) {
	deviceType := ""
	if r.Accepted() {
		deviceType = r.DeviceType
	}
	p.client.WriteValidation(string(r.Reason), deviceType)
}

// auditObserver stores every dispatch outcome.
type auditObserver struct {
	repo audit.Repository
	log  *logging.Logger
}

// ObserveDispatch implements dispatch.Observer.
func (a *auditObserver) ObserveDispatch(ctx context.Context, o dispatch.Outcome) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditWriteTimeout)
	defer cancel()

	result := audit.ResultSent
	if !o.Success {
		result = audit.ResultFailed
	}
	value := o.Command.Value

	e := &audit.Entry{
		SessionID:  o.Meta.SessionID,
		Result:     result,
		DeviceType: o.Meta.DeviceType,
		State:      o.Meta.State,
		Code:       o.Command.Code,
		Value:      &value,
		Error:      o.ErrorString(),
		DurationMS: float64(o.Duration) / float64(time.Millisecond),
		CreatedAt:  o.SentAt,
	}
	if err := a.repo.Create(ctx, e); err != nil {
		a.log.Error("writing audit entry", "session_id", o.Meta.SessionID, "error", err)
	}
}
