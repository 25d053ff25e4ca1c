package flow

import (
	"testing"
	"time"
)

type emailState struct {
	Step string `json:"step"`
	To   string `json:"to"`
}

func TestPauseResume_RoundTrip(t *testing.T) {
	s := NewStore(time.Minute)
	if err := s.Pause("sess_1", "email", emailState{Step: "preview", To: "a@b.com"}); err != nil {
		t.Fatalf("Pause: %v", err)
	}

	var got emailState
	found, err := s.Resume("sess_1", "email", &got)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if !found {
		t.Fatal("expected flow to be found")
	}
	if got.Step != "preview" || got.To != "a@b.com" {
		t.Errorf("got %+v", got)
	}
}

func TestResume_RemovesState(t *testing.T) {
	s := NewStore(time.Minute)
	_ = s.Pause("sess_1", "email", emailState{Step: "preview"})

	var first emailState
	found, _ := s.Resume("sess_1", "email", &first)
	if !found {
		t.Fatal("expected first resume to find state")
	}

	var second emailState
	found, _ = s.Resume("sess_1", "email", &second)
	if found {
		t.Fatal("expected second resume to find nothing — resume consumes the blob")
	}
}

func TestPause_LastWriteWins(t *testing.T) {
	s := NewStore(time.Minute)
	_ = s.Pause("sess_1", "email", emailState{Step: "faculty_select"})
	_ = s.Pause("sess_1", "email", emailState{Step: "preview"})

	var got emailState
	found, _ := s.Resume("sess_1", "email", &got)
	if !found || got.Step != "preview" {
		t.Errorf("expected last pause to win, got %+v found=%v", got, found)
	}
}

func TestResume_ExpiredReturnsNothing(t *testing.T) {
	s := NewStore(10 * time.Millisecond)
	_ = s.Pause("sess_1", "email", emailState{Step: "preview"})

	time.Sleep(20 * time.Millisecond)

	var got emailState
	found, err := s.Resume("sess_1", "email", &got)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if found {
		t.Fatal("expected expired flow to not resume")
	}
}

func TestHas_TrueWhileLive(t *testing.T) {
	s := NewStore(time.Minute)
	if s.Has("sess_1", "email") {
		t.Fatal("expected Has to be false before pause")
	}
	_ = s.Pause("sess_1", "email", emailState{Step: "preview"})
	if !s.Has("sess_1", "email") {
		t.Fatal("expected Has to be true after pause")
	}
}

func TestHas_FalseAfterExpiry(t *testing.T) {
	s := NewStore(10 * time.Millisecond)
	_ = s.Pause("sess_1", "email", emailState{Step: "preview"})
	time.Sleep(20 * time.Millisecond)
	if s.Has("sess_1", "email") {
		t.Fatal("expected Has to be false after expiry")
	}
}

func TestClear_IsIdempotent(t *testing.T) {
	s := NewStore(time.Minute)
	s.Clear("sess_1", "email") // no-op, must not panic
	_ = s.Pause("sess_1", "email", emailState{Step: "preview"})
	s.Clear("sess_1", "email")
	s.Clear("sess_1", "email")
	if s.Has("sess_1", "email") {
		t.Fatal("expected flow to be cleared")
	}
}

func TestCheckSessionTimeout(t *testing.T) {
	s := NewStore(10 * time.Millisecond)
	s.UpdateActivity("sess_1")

	if s.CheckSessionTimeout("sess_1") {
		t.Fatal("expected no timeout immediately after activity")
	}

	time.Sleep(20 * time.Millisecond)
	if !s.CheckSessionTimeout("sess_1") {
		t.Fatal("expected timeout after inactivity period")
	}
}

func TestEndSession_ClearsAllFlows(t *testing.T) {
	s := NewStore(time.Minute)
	_ = s.Pause("sess_1", "email", emailState{Step: "preview"})
	_ = s.Pause("sess_1", "ticket", emailState{Step: "triage"})

	s.EndSession("sess_1")

	if s.Has("sess_1", "email") || s.Has("sess_1", "ticket") {
		t.Fatal("expected all flows cleared after EndSession")
	}
}

func TestSweep_RemovesInactiveSessions(t *testing.T) {
	s := NewStore(10 * time.Millisecond)
	_ = s.Pause("sess_1", "email", emailState{Step: "preview"})

	time.Sleep(20 * time.Millisecond)

	cleared := s.Sweep()
	if cleared != 1 {
		t.Errorf("expected 1 session cleared, got %d", cleared)
	}
}

func TestIndependentSessionsDoNotInterfere(t *testing.T) {
	s := NewStore(time.Minute)
	_ = s.Pause("sess_1", "email", emailState{Step: "preview", To: "a@b.com"})
	_ = s.Pause("sess_2", "email", emailState{Step: "faculty_select", To: "c@d.com"})

	var got1, got2 emailState
	s.Resume("sess_1", "email", &got1)
	s.Resume("sess_2", "email", &got2)

	if got1.To != "a@b.com" || got2.To != "c@d.com" {
		t.Errorf("sessions interfered: got1=%+v got2=%+v", got1, got2)
	}
}
