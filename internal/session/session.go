package session

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/tuya-relay/internal/command"
	"github.com/nerrad567/tuya-relay/internal/infrastructure/logging"
)

// Reader yields inbound frames. *websocket.Conn satisfies it.
type Reader interface {
	ReadMessage() (messageType int, p []byte, err error)
}

// State is the lifecycle state of a Session.
type State int32

// Session states. Closed is terminal.
const (
	StateOpen State = iota
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Stats is a snapshot of a session's counters.
type Stats struct {
	Received       uint64    `json:"received"`
	Accepted       uint64    `json:"accepted"`
	Malformed      uint64    `json:"malformed"`
	Unrecognized   uint64    `json:"unrecognized"`
	Dispatched     uint64    `json:"dispatched"`
	DispatchFailed uint64    `json:"dispatch_failed"`
	OpenedAt       time.Time `json:"opened_at"`
}

// Session is the receive loop for one connection.
//
// Thread Safety: Run must be called at most once. State, Stats and ID are
// safe to call from any goroutine.
type Session struct {
	id       string
	pipeline *Pipeline
	logger   *logging.Logger
	openedAt time.Time

	state          atomic.Int32
	received       atomic.Uint64
	accepted       atomic.Uint64
	malformed      atomic.Uint64
	unrecognized   atomic.Uint64
	dispatched     atomic.Uint64
	dispatchFailed atomic.Uint64
}

// New creates an open Session with a fresh ID.
func New(p *Pipeline, logger *logging.Logger) *Session {
	if logger == nil {
		logger = logging.Discard()
	}
	id := uuid.NewString()
	return &Session{
		id:       id,
		pipeline: p,
		logger:   logger.With("session_id", id),
		openedAt: time.Now(),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Stats returns a snapshot of the message counters.
func (s *Session) Stats() Stats {
	return Stats{
		Received:       s.received.Load(),
		Accepted:       s.accepted.Load(),
		Malformed:      s.malformed.Load(),
		Unrecognized:   s.unrecognized.Load(),
		Dispatched:     s.dispatched.Load(),
		DispatchFailed: s.dispatchFailed.Load(),
		OpenedAt:       s.openedAt,
	}
}

// Run reads and processes frames until r fails or ctx is cancelled.
//
// The returned error is the read error or ctx.Err(). A blocked read is not
// interrupted by ctx alone; callers close the underlying connection to
// unblock it.
func (s *Session) Run(ctx context.Context, r Reader) error {
	defer s.state.Store(int32(StateClosed))

	s.logger.Debug("session opened")

	for {
		if err := ctx.Err(); err != nil {
			s.logger.Debug("session closed", "reason", "context done")
			return err
		}

		_, raw, err := r.ReadMessage()
		if err != nil {
			s.logClose(err)
			return err
		}

		s.received.Add(1)
		s.count(s.pipeline.Process(ctx, s.id, raw))
	}
}

func (s *Session) count(res Result) {
	switch res.Validation.Reason {
	case command.ReasonAccepted:
		s.accepted.Add(1)
	case command.ReasonMalformed:
		s.malformed.Add(1)
	case command.ReasonUnrecognized:
		s.unrecognized.Add(1)
	}

	if res.Outcome == nil {
		return
	}
	s.dispatched.Add(1)
	if !res.Outcome.Success {
		s.dispatchFailed.Add(1)
	}
}

func (s *Session) logClose(err error) {
	if errors.Is(err, io.EOF) ||
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		s.logger.Debug("session closed", "reason", err.Error())
		return
	}
	s.logger.Warn("session closed unexpectedly", "error", err)
}
