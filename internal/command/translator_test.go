package command

import (
	"encoding/json"
	"testing"
)

func TestTranslate(t *testing.T) {
	tr := NewTranslator("turn_on")

	tests := []struct {
		code  string
		state string
		want  Command
	}{
		{"switch_1", "turn_on", Command{Code: "switch_1", Value: true}},
		{"switch_2", "turn_off", Command{Code: "switch_2", Value: false}},
		{"switch_2", "turn_on", Command{Code: "switch_2", Value: true}},
	}

	for _, tt := range tests {
		if got := tr.Translate(tt.code, tt.state); got != tt.want {
			t.Errorf("Translate(%q, %q) = %+v, want %+v", tt.code, tt.state, got, tt.want)
		}
	}
}

func TestTranslate_Deterministic(t *testing.T) {
	tr := NewTranslator("turn_on")

	first := tr.Translate("switch_1", "turn_on")
	second := tr.Translate("switch_1", "turn_on")
	if first != second {
		t.Errorf("Translate is not deterministic: %+v != %+v", first, second)
	}
}

func TestTranslateResult(t *testing.T) {
	tr := NewTranslator("turn_on")

	cmd, ok := tr.TranslateResult(Result{Reason: ReasonAccepted, ControlPoint: "switch_1", State: "turn_on"})
	if !ok || cmd != (Command{Code: "switch_1", Value: true}) {
		t.Errorf("TranslateResult(accepted) = (%+v, %v)", cmd, ok)
	}

	for _, reason := range []Reason{ReasonMalformed, ReasonUnrecognized} {
		if _, ok := tr.TranslateResult(Result{Reason: reason, ControlPoint: "switch_1", State: "turn_on"}); ok {
			t.Errorf("TranslateResult(%s) built a command", reason)
		}
	}
}

func TestPayload_WireShape(t *testing.T) {
	data, err := json.Marshal(NewPayload(Command{Code: "switch_1", Value: true}))
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}

	want := `{"commands":[{"code":"switch_1","value":true}]}`
	if string(data) != want {
		t.Errorf("payload = %s, want %s", data, want)
	}
}
