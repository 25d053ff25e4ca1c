package ws

import (
	"encoding/json"
	"testing"
)

func TestMarshalFrame_EventFrame(t *testing.T) {
	payload, _ := json.Marshal(map[string]string{"content": "world"})
	orig := Frame{
		Type:      FrameTypeEvent,
		Event:     "assistant.message",
		SessionID: "sess_abc",
		Payload:   payload,
	}

	data, err := MarshalFrame(orig)
	if err != nil {
		t.Fatalf("MarshalFrame: %v", err)
	}

	var got Frame
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got.Type != FrameTypeEvent {
		t.Fatalf("expected type %q, got %q", FrameTypeEvent, got.Type)
	}
	if got.Event != "assistant.message" {
		t.Fatalf("expected event %q, got %q", "assistant.message", got.Event)
	}
	if got.SessionID != "sess_abc" {
		t.Fatalf("expected session_id %q, got %q", "sess_abc", got.SessionID)
	}
}

func TestNewEventFrame(t *testing.T) {
	f, err := NewEventFrame("user.message", "sess_42", map[string]string{"content": "hi"})
	if err != nil {
		t.Fatalf("NewEventFrame: %v", err)
	}
	if f.Type != FrameTypeEvent {
		t.Fatalf("expected type %q, got %q", FrameTypeEvent, f.Type)
	}
	if f.Event != "user.message" {
		t.Fatalf("expected event %q, got %q", "user.message", f.Event)
	}
	if f.SessionID != "sess_42" {
		t.Fatalf("expected session_id %q, got %q", "sess_42", f.SessionID)
	}

	var p map[string]string
	if err := json.Unmarshal(f.Payload, &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if p["content"] != "hi" {
		t.Fatalf("expected payload.content %q, got %q", "hi", p["content"])
	}
}
