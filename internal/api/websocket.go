package api

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/tuya-relay/internal/infrastructure/logging"
	"github.com/nerrad567/tuya-relay/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// SessionInfo describes one open WebSocket session.
type SessionInfo struct {
	ID         string        `json:"id"`
	RemoteAddr string        `json:"remote_addr"`
	State      string        `json:"state"`
	Stats      session.Stats `json:"stats"`
}

// Hub tracks open WebSocket connections.
type Hub struct {
	logger *logging.Logger
	conns  map[*wsConn]struct{}
	mu     sync.RWMutex
}

// wsConn pairs a socket with the session reading from it.
type wsConn struct {
	conn       *websocket.Conn
	session    *session.Session
	remoteAddr string
	done       chan struct{}
	closeOnce  sync.Once
}

func (c *wsConn) close() {
	c.closeOnce.Do(func() {
		c.conn.Close() //nolint:errcheck // best-effort close
	})
}

// NewHub creates an empty Hub.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		logger: logger,
		conns:  make(map[*wsConn]struct{}),
	}
}

// register adds a connection.
func (h *Hub) register(c *wsConn) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	n := len(h.conns)
	h.mu.Unlock()
	h.logger.Info("client connected", "session_id", c.session.ID(), "remote_addr", c.remoteAddr, "clients", n)
}

// unregister removes a connection.
func (h *Hub) unregister(c *wsConn) {
	h.mu.Lock()
	delete(h.conns, c)
	n := len(h.conns)
	h.mu.Unlock()
	h.logger.Info("client disconnected", "session_id", c.session.ID(), "remote_addr", c.remoteAddr, "clients", n)
}

// ClientCount returns the number of open connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Sessions returns every open session, oldest first.
func (h *Hub) Sessions() []SessionInfo {
	h.mu.RLock()
	out := make([]SessionInfo, 0, len(h.conns))
	for c := range h.conns {
		out = append(out, SessionInfo{
			ID:         c.session.ID(),
			RemoteAddr: c.remoteAddr,
			State:      c.session.State().String(),
			Stats:      c.session.Stats(),
		})
	}
	h.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Stats.OpenedAt.Before(out[j].Stats.OpenedAt)
	})
	return out
}

// CloseAll closes every socket, which ends each session's read loop.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	conns := make([]*wsConn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.close()
	}
}

// handleWebSocket upgrades the request and starts a session for it.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written an HTTP error.
		s.logger.Warn("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	c := &wsConn{
		conn:       conn,
		session:    session.New(s.pipeline, s.logger),
		remoteAddr: r.RemoteAddr,
		done:       make(chan struct{}),
	}

	s.hub.register(c)
	s.metrics.ConnectionOpened()

	go s.serve(c)
}

// serve runs the session until the socket closes, then cleans up.
func (s *Server) serve(c *wsConn) {
	defer func() {
		close(c.done)
		c.close()
		s.hub.unregister(c)
		s.metrics.ConnectionClosed()
	}()

	pingInterval := time.Duration(s.wsCfg.PingInterval) * time.Second
	pongWait := time.Duration(s.wsCfg.PongTimeout) * time.Second
	readWait := pingInterval + pongWait

	c.conn.SetReadLimit(int64(s.wsCfg.MaxMessageSize))
	//nolint:errcheck // best-effort deadline on setup
	c.conn.SetReadDeadline(time.Now().Add(readWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readWait))
	})

	go c.pingLoop(pingInterval, pongWait)

	//nolint:errcheck // Run logs its own close reason
	c.session.Run(s.ctx, &deadlineReader{conn: c.conn, wait: readWait})
}

// pingLoop keeps the connection alive until the session ends. Pings are
// the only frames the server ever writes.
func (c *wsConn) pingLoop(interval, writeWait time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.close()
				return
			}
		}
	}
}

// deadlineReader extends the read deadline after every frame, so any
// client traffic keeps the connection alive even without pong replies.
type deadlineReader struct {
	conn *websocket.Conn
	wait time.Duration
}

func (d *deadlineReader) ReadMessage() (int, []byte, error) {
	mt, p, err := d.conn.ReadMessage()
	if err == nil {
		//nolint:errcheck // best-effort deadline reset
		d.conn.SetReadDeadline(time.Now().Add(d.wait))
	}
	return mt, p, err
}
