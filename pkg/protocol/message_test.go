package protocol

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/teslashibe/go-ev3way/pkg/crew"
)

func TestNewMessage(t *testing.T) {
	tests := []struct {
		name    string
		msgType MessageType
		data    any
		wantErr bool
	}{
		{
			name:    "start message",
			msgType: TypeStart,
			data:    StartData{Source: "pit"},
		},
		{
			name:    "nil data",
			msgType: TypePing,
			data:    nil,
		},
		{
			name:    "unmarshalable data",
			msgType: TypeEvent,
			data:    make(chan int),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewMessage(tt.msgType, tt.data)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if msg.Type != tt.msgType {
				t.Errorf("NewMessage() type = %v, want %v", msg.Type, tt.msgType)
			}
			if msg.Timestamp == 0 {
				t.Error("NewMessage() timestamp should be set")
			}
		})
	}
}

func TestStatusMessage(t *testing.T) {
	status := crew.Status{
		MissionID: "m-1",
		Time:      time.Date(2019, 4, 28, 12, 0, 0, 0, time.UTC),
		Active:    crew.RoleLineTracer,
		Flags:     "obstacle",
		Command:   &crew.Command{Forward: 5, Turn: -20, Left: 12, Right: 31},
		Cycles:    7,
	}

	msg, err := NewStatusMessage(status)
	if err != nil {
		t.Fatalf("NewStatusMessage() error = %v", err)
	}
	raw, err := msg.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}
	if !strings.Contains(string(raw), `"active":"line_tracer"`) {
		t.Errorf("status JSON should name the role, got %s", raw)
	}

	parsed, err := ParseMessage(raw)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	got, err := parsed.GetStatus()
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if got.Active != crew.RoleLineTracer || got.Command == nil || got.Command.Turn != -20 {
		t.Errorf("GetStatus() = %+v", got)
	}
}

func TestEventMessage(t *testing.T) {
	msg, err := NewEventMessage("m-2", crew.Entry{Kind: crew.EventDeparting, Role: crew.RoleAnchorWatch, Detail: "touch"})
	if err != nil {
		t.Fatalf("NewEventMessage() error = %v", err)
	}

	data, err := msg.GetEventData()
	if err != nil {
		t.Fatalf("GetEventData() error = %v", err)
	}
	if data.MissionID != "m-2" || data.Kind != crew.EventDeparting || data.Detail != "touch" {
		t.Errorf("GetEventData() = %+v", data)
	}

	// The entry is flattened into the data object.
	var flat map[string]any
	json.Unmarshal(msg.Data, &flat)
	if flat["kind"] != "departing" || flat["role"] != "anchor_watch" {
		t.Errorf("event data = %v", flat)
	}
}

func TestStartAndLandMessages(t *testing.T) {
	start, _ := NewStartMessage("operator-1")
	sd, err := start.GetStartData()
	if err != nil || sd.Source != "operator-1" {
		t.Errorf("GetStartData() = %+v, %v", sd, err)
	}

	land, _ := NewLandMessage("end of run")
	ld, err := land.GetLandData()
	if err != nil || ld.Reason != "end of run" {
		t.Errorf("GetLandData() = %+v, %v", ld, err)
	}
}

func TestPingPongMessage(t *testing.T) {
	ping, err := NewPingMessage("ping-123")
	if err != nil {
		t.Fatalf("NewPingMessage() error = %v", err)
	}
	pd, _ := ping.GetPingData()
	if pd.ID != "ping-123" || pd.Timestamp == 0 {
		t.Errorf("ping data = %+v", pd)
	}

	now := time.Now().UnixMilli()
	pong, err := NewPongMessage("ping-123", now-50, now)
	if err != nil {
		t.Fatalf("NewPongMessage() error = %v", err)
	}
	pg, _ := pong.GetPongData()
	if pg.LatencyMs != 50 {
		t.Errorf("LatencyMs = %d, want 50", pg.LatencyMs)
	}
}

func TestHelloMessage(t *testing.T) {
	msg, _ := NewHelloMessage("m-3", "ev3way")
	hd, err := msg.GetHelloData()
	if err != nil || hd.MissionID != "m-3" || hd.Robot != "ev3way" {
		t.Errorf("GetHelloData() = %+v, %v", hd, err)
	}
}

func TestParseInvalidMessage(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"invalid json", "{invalid}"},
		{"missing type", `{"ts":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseMessage([]byte(tt.data)); err == nil {
				t.Error("ParseMessage() should fail")
			}
		})
	}
}

func TestParseDataWithoutPayload(t *testing.T) {
	msg := &Message{Type: TypeLand}
	ld, err := msg.GetLandData()
	if err != nil {
		t.Fatalf("GetLandData() error = %v", err)
	}
	if ld.Reason != "" {
		t.Errorf("Reason = %q, want empty", ld.Reason)
	}
}
