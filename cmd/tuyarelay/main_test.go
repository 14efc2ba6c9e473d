package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/tuya-relay/internal/audit"
	"github.com/nerrad567/tuya-relay/internal/command"
)

const testDeviceID = "bf0123456789abcdef"

// fakeCloud accepts any signature and records command payloads.
type fakeCloud struct {
	mu       sync.Mutex
	commands []command.Payload
}

func (f *fakeCloud) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1.0/token", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"success":true,"result":{"access_token":"tok","expire_time":7200}}`)
	})
	mux.HandleFunc("/v1.0/iot-03/devices/"+testDeviceID+"/commands", func(w http.ResponseWriter, r *http.Request) {
		var p command.Payload
		if err := json.NewDecoder(r.Body).Decode(&p); err == nil {
			f.mu.Lock()
			f.commands = append(f.commands, p)
			f.mu.Unlock()
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"success":true,"result":true}`)
	})
	return mux
}

func (f *fakeCloud) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.commands)
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("finding free port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close() //nolint:errcheck // released for the server under test
	return port
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("TUYARELAY_CONFIG", "")
	if got := getConfigPath(""); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv("TUYARELAY_CONFIG", "/etc/tuyarelay.yaml")
	if got := getConfigPath(""); got != "/etc/tuyarelay.yaml" {
		t.Errorf("getConfigPath() = %q, want env value", got)
	}
	if got := getConfigPath("/tmp/flag.yaml"); got != "/tmp/flag.yaml" {
		t.Errorf("getConfigPath() = %q, want flag value", got)
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx, "/nonexistent/path/config.yaml"); err == nil {
		t.Fatal("run() should fail with a missing config file")
	}
}

func TestRun_MissingCredentials(t *testing.T) {
	t.Setenv("TUYARELAY_CLOUD_API_KEY", "")
	t.Setenv("TUYARELAY_CLOUD_API_SECRET", "")

	path := writeConfig(t, `
cloud:
  region: eu
  device_id: `+testDeviceID+`
logging:
  level: error
`)

	err := run(context.Background(), path)
	if err == nil {
		t.Fatal("run() should fail without cloud credentials")
	}
	if !strings.Contains(err.Error(), "cloud.api_key") {
		t.Errorf("error = %v, want it to mention cloud.api_key", err)
	}
}

func TestRun_RelaysAndShutsDown(t *testing.T) {
	cloud := &fakeCloud{}
	ts := httptest.NewServer(cloud.handler())
	defer ts.Close()

	port := freePort(t)
	path := writeConfig(t, fmt.Sprintf(`
server:
  host: 127.0.0.1
  port: %d
cloud:
  base_url: %s
  api_key: test-key
  api_secret: test-secret
  device_id: %s
  timeout: 5
logging:
  level: error
  format: text
database:
  enabled: true
  path: %s
  wal_mode: true
  busy_timeout: 5
`, port, ts.URL, testDeviceID, filepath.Join(t.TempDir(), "relay.db")))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- run(ctx, path) }()

	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	waitUntil(t, "health endpoint", func() bool {
		resp, err := http.Get(base + "/api/v1/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	})

	conn, resp, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://127.0.0.1:%d/", port), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	for _, msg := range []string{
		`{"deviceType":"Heater","state":"turn_on"}`,
		`{"deviceType":"MainFan","state":"turn_on"}`,
	} {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			t.Fatalf("WriteMessage() error = %v", err)
		}
	}

	waitUntil(t, "cloud command", func() bool { return cloud.count() == 1 })

	waitUntil(t, "audit entry", func() bool {
		resp, err := http.Get(base + "/api/v1/audit")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var body audit.ListResult
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return false
		}
		return body.Total == 1 && body.Entries[0].Code == "switch_1"
	})

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run() error = %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("run() did not return after cancel")
	}
}
