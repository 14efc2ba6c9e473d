package catalog

import (
	"errors"
	"sync"
	"testing"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := New(
		map[string]string{"MainFan": "switch_1", "MainLight": "switch_2"},
		[]string{"turn_on", "turn_off"},
		"turn_on",
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name     string
		devices  map[string]string
		states   []string
		activate string
		wantErr  error
	}{
		{
			name:     "no devices",
			devices:  nil,
			states:   []string{"turn_on"},
			activate: "turn_on",
			wantErr:  ErrNoDevices,
		},
		{
			name:     "empty control point",
			devices:  map[string]string{"MainFan": ""},
			states:   []string{"turn_on"},
			activate: "turn_on",
			wantErr:  ErrInvalidEntry,
		},
		{
			name:     "empty device name",
			devices:  map[string]string{"": "switch_1"},
			states:   []string{"turn_on"},
			activate: "turn_on",
			wantErr:  ErrInvalidEntry,
		},
		{
			name:     "no states",
			devices:  map[string]string{"MainFan": "switch_1"},
			states:   nil,
			activate: "turn_on",
			wantErr:  ErrNoStates,
		},
		{
			name:     "empty state token",
			devices:  map[string]string{"MainFan": "switch_1"},
			states:   []string{"turn_on", ""},
			activate: "turn_on",
			wantErr:  ErrInvalidState,
		},
		{
			name:     "activate not permitted",
			devices:  map[string]string{"MainFan": "switch_1"},
			states:   []string{"turn_on", "turn_off"},
			activate: "on",
			wantErr:  ErrInvalidState,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.devices, tt.states, tt.activate)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("New() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLookupControlPoint(t *testing.T) {
	c := newTestCatalog(t)

	tests := []struct {
		device string
		want   string
		found  bool
	}{
		{"MainFan", "switch_1", true},
		{"MainLight", "switch_2", true},
		{"Heater", "", false},
		{"mainfan", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := c.LookupControlPoint(tt.device)
		if ok != tt.found || got != tt.want {
			t.Errorf("LookupControlPoint(%q) = (%q, %v), want (%q, %v)", tt.device, got, ok, tt.want, tt.found)
		}
	}
}

func TestIsPermittedState(t *testing.T) {
	c := newTestCatalog(t)

	for _, s := range []string{"turn_on", "turn_off"} {
		if !c.IsPermittedState(s) {
			t.Errorf("IsPermittedState(%q) = false, want true", s)
		}
	}
	for _, s := range []string{"", "on", "TURN_ON", "toggle"} {
		if c.IsPermittedState(s) {
			t.Errorf("IsPermittedState(%q) = true, want false", s)
		}
	}
}

func TestNew_CopiesInput(t *testing.T) {
	devices := map[string]string{"MainFan": "switch_1"}
	c, err := New(devices, []string{"turn_on"}, "turn_on")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	devices["Heater"] = "switch_9"

	if _, ok := c.LookupControlPoint("Heater"); ok {
		t.Error("catalog must not observe mutations of the input map")
	}
}

func TestEntriesAndStatesSorted(t *testing.T) {
	c := newTestCatalog(t)

	entries := c.Entries()
	if len(entries) != 2 || entries[0].DeviceType != "MainFan" || entries[1].DeviceType != "MainLight" {
		t.Errorf("Entries() = %v, want MainFan then MainLight", entries)
	}

	states := c.States()
	if len(states) != 2 || states[0] != "turn_off" || states[1] != "turn_on" {
		t.Errorf("States() = %v, want [turn_off turn_on]", states)
	}

	if c.ActivateState() != "turn_on" {
		t.Errorf("ActivateState() = %q, want turn_on", c.ActivateState())
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
}

func TestConcurrentLookups(t *testing.T) {
	c := newTestCatalog(t)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				if _, ok := c.LookupControlPoint("MainFan"); !ok {
					t.Error("LookupControlPoint(MainFan) not found")
					return
				}
				_ = c.IsPermittedState("turn_off")
			}
		}()
	}
	wg.Wait()
}
