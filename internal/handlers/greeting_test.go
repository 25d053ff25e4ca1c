package handlers

import (
	"context"
	"strings"
	"testing"
)

func TestGreetingHandler_Capability(t *testing.T) {
	h := &GreetingHandler{}
	out, err := h.Handle(context.Background(), Input{Message: "what can you do?"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !strings.Contains(out.Message, "FAQ") {
		t.Errorf("expected capability blurb, got %q", out.Message)
	}
}

func TestGreetingHandler_Farewell(t *testing.T) {
	h := &GreetingHandler{}
	out, _ := h.Handle(context.Background(), Input{Message: "goodbye"})
	if !strings.Contains(strings.ToLower(out.Message), "goodbye") {
		t.Errorf("expected farewell message, got %q", out.Message)
	}
}

func TestGreetingHandler_Thanks(t *testing.T) {
	h := &GreetingHandler{}
	out, _ := h.Handle(context.Background(), Input{Message: "thanks a lot!"})
	if !strings.Contains(strings.ToLower(out.Message), "welcome") {
		t.Errorf("expected you're-welcome message, got %q", out.Message)
	}
}

func TestGreetingHandler_DefaultGreeting(t *testing.T) {
	h := &GreetingHandler{}
	out, _ := h.Handle(context.Background(), Input{Message: "hi"})
	if out.Status != StatusSuccess {
		t.Errorf("expected success status, got %v", out.Status)
	}
	if !strings.Contains(strings.ToLower(out.Message), "hello") {
		t.Errorf("expected default greeting, got %q", out.Message)
	}
}

func TestGreetingHandler_NeverPersistsState(t *testing.T) {
	h := &GreetingHandler{}
	out, _ := h.Handle(context.Background(), Input{Message: "hello"})
	if out.ConfirmationData != nil || out.RequiredSlots != nil {
		t.Error("expected greeting handler to never produce flow-relevant state")
	}
}
