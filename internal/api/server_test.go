package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/tuya-relay/internal/audit"
	"github.com/nerrad567/tuya-relay/internal/catalog"
	"github.com/nerrad567/tuya-relay/internal/command"
	"github.com/nerrad567/tuya-relay/internal/dispatch"
	"github.com/nerrad567/tuya-relay/internal/infrastructure/config"
	"github.com/nerrad567/tuya-relay/internal/infrastructure/database"
	"github.com/nerrad567/tuya-relay/internal/infrastructure/logging"
	"github.com/nerrad567/tuya-relay/internal/metrics"
	"github.com/nerrad567/tuya-relay/internal/session"
	"github.com/nerrad567/tuya-relay/migrations"
)

const (
	testDeviceID = "bf0123456789abcdef"
	waitTimeout  = 3 * time.Second
)

// fakeClient records every payload it is asked to send.
type fakeClient struct {
	mu       sync.Mutex
	payloads []command.Payload
}

func (c *fakeClient) SendCommand(_ context.Context, _ string, p command.Payload) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads = append(c.payloads, p)
	return json.RawMessage(`true`), nil
}

func (c *fakeClient) sent() []command.Command {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []command.Command
	for _, p := range c.payloads {
		out = append(out, p.Commands...)
	}
	return out
}

type testEnv struct {
	srv     *Server
	ts      *httptest.Server
	client  *fakeClient
	metrics *metrics.Metrics
}

type envOption func(*Deps)

func withAudit(repo audit.Repository) envOption {
	return func(d *Deps) { d.Audit = repo }
}

func withMaxMessageSize(n int) envOption {
	return func(d *Deps) { d.WebSocket.MaxMessageSize = n }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	log := logging.Discard()
	cat, err := catalog.New(
		map[string]string{"MainFan": "switch_1", "MainLight": "switch_2"},
		[]string{"turn_on", "turn_off"},
		"turn_on",
	)
	if err != nil {
		t.Fatalf("catalog.New() error = %v", err)
	}

	m := metrics.New()
	client := &fakeClient{}
	d, err := dispatch.New(client, testDeviceID, dispatch.WithObserver(m), dispatch.WithLogger(log))
	if err != nil {
		t.Fatalf("dispatch.New() error = %v", err)
	}

	deps := Deps{
		Server: config.ServerConfig{
			Host:     "127.0.0.1",
			Port:     0,
			Timeouts: config.ServerTimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		WebSocket: config.WebSocketConfig{
			Path:           "/",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logger:  log,
		Catalog: cat,
		Pipeline: &session.Pipeline{
			Validator:  command.NewValidator(cat, log),
			Translator: command.NewTranslator(cat.ActivateState()),
			Dispatcher: d,
			Recorder:   m,
			Logger:     log,
		},
		Metrics: m,
		Version: "test",
	}
	for _, opt := range opts {
		opt(&deps)
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(func() {
		srv.Close() //nolint:errcheck // test cleanup
		ts.Close()
	})

	return &testEnv{srv: srv, ts: ts, client: client, metrics: m}
}

func (e *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close() //nolint:errcheck // test cleanup
	}
	t.Cleanup(func() { conn.Close() }) //nolint:errcheck // test cleanup
	return conn
}

func (e *testEnv) get(t *testing.T, path string, v any) int {
	t.Helper()

	resp, err := http.Get(e.ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s error = %v", path, err)
	}
	defer resp.Body.Close()

	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decoding %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

func send(t *testing.T, conn *websocket.Conn, msg string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("New(Deps{}) should fail without a logger")
	}
	if _, err := New(Deps{Logger: logging.Discard()}); err == nil {
		t.Error("New() should fail without a catalog")
	}
}

func TestWebSocket_DispatchesAcceptedMessage(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t)

	send(t, conn, `{"deviceType":"MainFan","state":"turn_on"}`)
	waitFor(t, "dispatch", func() bool { return len(env.client.sent()) == 1 })

	got := env.client.sent()[0]
	if got.Code != "switch_1" || !got.Value {
		t.Errorf("sent %+v, want switch_1=true", got)
	}
}

func TestWebSocket_RejectedMessagesAreNotDispatched(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t)

	send(t, conn, `not json`)
	send(t, conn, `{"deviceType":"Heater","state":"turn_on"}`)
	send(t, conn, `{"deviceType":"MainFan","state":"explode"}`)
	send(t, conn, `{"deviceType":"MainLight","state":"turn_off"}`)

	// Messages are handled in order, so once the valid one lands the
	// rejected ones have already been processed.
	waitFor(t, "dispatch", func() bool { return len(env.client.sent()) >= 1 })

	sent := env.client.sent()
	if len(sent) != 1 {
		t.Fatalf("dispatched %d commands, want 1", len(sent))
	}
	if sent[0].Code != "switch_2" || sent[0].Value {
		t.Errorf("sent %+v, want switch_2=false", sent[0])
	}

	snap := env.metrics.Snapshot()
	if snap.MessagesReceived != 4 {
		t.Errorf("MessagesReceived = %d, want 4", snap.MessagesReceived)
	}
	if snap.MessagesMalformed != 1 || snap.MessagesUnrecognized != 2 {
		t.Errorf("malformed=%d unrecognized=%d, want 1 and 2", snap.MessagesMalformed, snap.MessagesUnrecognized)
	}
}

func TestWebSocket_SessionsAreIndependent(t *testing.T) {
	env := newTestEnv(t)
	a := env.dial(t)
	b := env.dial(t)

	waitFor(t, "two sessions", func() bool { return env.srv.hub.ClientCount() == 2 })

	a.Close() //nolint:errcheck // closing one client
	waitFor(t, "one session", func() bool { return env.srv.hub.ClientCount() == 1 })

	send(t, b, `{"deviceType":"MainFan","state":"turn_off"}`)
	waitFor(t, "dispatch", func() bool { return len(env.client.sent()) == 1 })
}

func TestWebSocket_OversizedMessageClosesConnection(t *testing.T) {
	env := newTestEnv(t, withMaxMessageSize(64))
	conn := env.dial(t)

	send(t, conn, `{"deviceType":"MainFan","state":"`+strings.Repeat("x", 128)+`"}`)

	conn.SetReadDeadline(time.Now().Add(waitTimeout)) //nolint:errcheck // test deadline
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("ReadMessage() should fail after the server closes the connection")
	}
	waitFor(t, "session cleanup", func() bool { return env.srv.hub.ClientCount() == 0 })

	if n := len(env.client.sent()); n != 0 {
		t.Errorf("dispatched %d commands, want 0", n)
	}
}

func TestServer_CloseEndsSessions(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t)
	waitFor(t, "session", func() bool { return env.srv.hub.ClientCount() == 1 })

	if err := env.srv.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(waitTimeout)) //nolint:errcheck // test deadline
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("ReadMessage() should fail after server Close")
	}
	waitFor(t, "session cleanup", func() bool { return env.srv.hub.ClientCount() == 0 })
}

func TestServer_StartAndClose(t *testing.T) {
	env := newTestEnv(t)

	if err := env.srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start should fail")
	}
	if err := env.srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if env.srv.Addr() == "" {
		t.Fatal("Addr() is empty after Start")
	}
	if err := env.srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	resp, err := http.Get("http://" + env.srv.Addr() + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET health error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestHandleHealth(t *testing.T) {
	env := newTestEnv(t)

	var body struct {
		Status     string            `json:"status"`
		Version    string            `json:"version"`
		Components map[string]string `json:"components"`
	}
	if code := env.get(t, "/api/v1/health", &body); code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	if body.Status != statusOK {
		t.Errorf("status = %q, want %q", body.Status, statusOK)
	}
	if body.Version != "test" {
		t.Errorf("version = %q, want test", body.Version)
	}
	for _, c := range []string{"mqtt", "database"} {
		if body.Components[c] != statusDisabled {
			t.Errorf("components[%s] = %q, want %q", c, body.Components[c], statusDisabled)
		}
	}
}

func TestHandleCatalog(t *testing.T) {
	env := newTestEnv(t)

	var body CatalogResponse
	if code := env.get(t, "/api/v1/catalog", &body); code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	if len(body.Devices) != 2 {
		t.Errorf("devices = %d, want 2", len(body.Devices))
	}
	if len(body.States) != 2 {
		t.Errorf("states = %d, want 2", len(body.States))
	}
	if body.ActivateState != "turn_on" {
		t.Errorf("activate_state = %q, want turn_on", body.ActivateState)
	}
}

func TestHandleSessions(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t)

	send(t, conn, `{"deviceType":"MainFan","state":"turn_on"}`)
	waitFor(t, "dispatch", func() bool { return len(env.client.sent()) == 1 })

	var body struct {
		Sessions []SessionInfo `json:"sessions"`
		Count    int           `json:"count"`
	}
	waitFor(t, "session stats", func() bool {
		env.get(t, "/api/v1/sessions", &body)
		return body.Count == 1 && body.Sessions[0].Stats.Dispatched == 1
	})

	s := body.Sessions[0]
	if s.ID == "" {
		t.Error("session ID is empty")
	}
	if s.State != "open" {
		t.Errorf("state = %q, want open", s.State)
	}
}

func TestHandleMetrics(t *testing.T) {
	env := newTestEnv(t)

	var body SystemMetrics
	if code := env.get(t, "/api/v1/metrics", &body); code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	if body.Version != "test" {
		t.Errorf("version = %q, want test", body.Version)
	}
	if body.Runtime.Goroutines == 0 {
		t.Error("goroutines = 0")
	}
	if body.MQTT.Enabled {
		t.Error("mqtt should be reported disabled")
	}
	if body.Database != nil {
		t.Error("database stats should be omitted when disabled")
	}
}

func TestPrometheusEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.dial(t)
	waitFor(t, "session", func() bool { return env.srv.hub.ClientCount() == 1 })

	resp, err := http.Get(env.ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	if !strings.Contains(string(body), "tuyarelay_websocket_connections_active 1") {
		t.Errorf("metrics output missing active connection gauge:\n%s", body)
	}
}

func TestHandleAudit_Disabled(t *testing.T) {
	env := newTestEnv(t)

	var body Error
	if code := env.get(t, "/api/v1/audit", &body); code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", code)
	}
	if body.Code != ErrCodeUnavailable {
		t.Errorf("code = %q, want %q", body.Code, ErrCodeUnavailable)
	}
}

func TestHandleAudit(t *testing.T) {
	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "relay.db"),
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup
	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	repo := audit.NewSQLiteRepository(db.DB)
	for _, e := range []*audit.Entry{
		{SessionID: "s-1", Result: audit.ResultSent, DeviceType: "MainFan", Code: "switch_1"},
		{SessionID: "s-2", Result: audit.ResultFailed, DeviceType: "MainLight", Code: "switch_2", Error: "timeout"},
	} {
		if err := repo.Create(context.Background(), e); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	env := newTestEnv(t, withAudit(repo))

	tests := []struct {
		name      string
		query     string
		wantCode  int
		wantTotal int
	}{
		{"all", "", http.StatusOK, 2},
		{"by session", "?session_id=s-2", http.StatusOK, 1},
		{"by result", "?result=sent", http.StatusOK, 1},
		{"no match", "?device_type=Heater", http.StatusOK, 0},
		{"bad limit", "?limit=ten", http.StatusBadRequest, 0},
		{"bad offset", "?offset=-x", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body audit.ListResult
			code := env.get(t, "/api/v1/audit"+tt.query, &body)
			if code != tt.wantCode {
				t.Fatalf("status = %d, want %d", code, tt.wantCode)
			}
			if code == http.StatusOK && body.Total != tt.wantTotal {
				t.Errorf("total = %d, want %d", body.Total, tt.wantTotal)
			}
		})
	}
}
