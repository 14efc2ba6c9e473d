package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/tuya-relay/internal/command"
	"github.com/nerrad567/tuya-relay/internal/infrastructure/logging"
)

// DeviceClient is the remote device-cloud collaborator.
//
// Implementations must be safe for concurrent use; the Dispatcher calls
// SendCommand from every connection goroutine without extra locking.
type DeviceClient interface {
	SendCommand(ctx context.Context, deviceID string, payload command.Payload) (json.RawMessage, error)
}

// Observer is notified of every Outcome.
type Observer interface {
	ObserveDispatch(ctx context.Context, o Outcome)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, o Outcome)

// ObserveDispatch implements Observer.
func (f ObserverFunc) ObserveDispatch(ctx context.Context, o Outcome) { f(ctx, o) }

// Dispatcher sends commands for a single pre-configured device.
//
// Thread Safety: safe for concurrent use once constructed.
type Dispatcher struct {
	client    DeviceClient
	deviceID  string
	observers []Observer
	logger    *logging.Logger
	now       func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithObserver adds an Observer. Observers run in registration order.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) {
		if o != nil {
			d.observers = append(d.observers, o)
		}
	}
}

// WithLogger sets the dispatcher logger.
func WithLogger(logger *logging.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger.With("component", "dispatcher")
		}
	}
}

// New creates a Dispatcher that targets deviceID through client.
func New(client DeviceClient, deviceID string, opts ...Option) (*Dispatcher, error) {
	if client == nil {
		return nil, ErrNoClient
	}
	if deviceID == "" {
		return nil, ErrNoDeviceID
	}

	d := &Dispatcher{
		client:   client,
		deviceID: deviceID,
		logger:   logging.Discard(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// DeviceID returns the target device.
func (d *Dispatcher) DeviceID() string {
	return d.deviceID
}

// Send dispatches cmd and reports the outcome. It never panics and never
// returns an error out of band.
func (d *Dispatcher) Send(ctx context.Context, cmd command.Command, meta Meta) Outcome {
	payload := command.NewPayload(cmd)

	start := d.now()
	resp, err := d.call(ctx, payload)

	o := Outcome{
		Success:  err == nil,
		Command:  cmd,
		DeviceID: d.deviceID,
		Meta:     meta,
		Response: resp,
		Duration: d.now().Sub(start),
		SentAt:   start,
	}

	if err != nil {
		o.Err = fmt.Errorf("%w: %w", ErrDispatchFailed, err)
		d.logger.Error("error sending command",
			"code", cmd.Code,
			"value", cmd.Value,
			"session_id", meta.SessionID,
			"error", err,
		)
	} else {
		d.logger.Info("command sent",
			"code", cmd.Code,
			"value", cmd.Value,
			"session_id", meta.SessionID,
			"duration_ms", o.Duration.Milliseconds(),
		)
		d.logger.Debug("remote response", "response", string(resp))
	}

	d.notify(ctx, o)
	return o
}

// call invokes the client, converting a panic into an error.
func (d *Dispatcher) call(ctx context.Context, payload command.Payload) (resp json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("device client panic: %v", r)
		}
	}()
	return d.client.SendCommand(ctx, d.deviceID, payload)
}

func (d *Dispatcher) notify(ctx context.Context, o Outcome) {
	for _, obs := range d.observers {
		d.safeObserve(ctx, obs, o)
	}
}

func (d *Dispatcher) safeObserve(ctx context.Context, obs Observer, o Outcome) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("dispatch observer panic recovered", "panic", r)
		}
	}()
	obs.ObserveDispatch(ctx, o)
}
