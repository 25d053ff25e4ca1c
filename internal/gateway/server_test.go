package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dohr-michael/advisorbot/internal/chatmemory"
	"github.com/dohr-michael/advisorbot/internal/events"
)

// stubOrchestrator is a minimal Orchestrator for HTTP-layer tests; the real
// C8 control flow is exercised in internal/orchestrator's own tests.
type stubOrchestrator struct {
	handleResp any
	handleErr  error
	confirmResp any
	confirmErr  error
	lastHandle  OrchestratorRequest
	lastConfirm ConfirmActionRequest
}

func (s *stubOrchestrator) Handle(ctx context.Context, req OrchestratorRequest) (any, error) {
	s.lastHandle = req
	return s.handleResp, s.handleErr
}

func (s *stubOrchestrator) ConfirmAction(ctx context.Context, req ConfirmActionRequest) (any, error) {
	s.lastConfirm = req
	return s.confirmResp, s.confirmErr
}

func newTestServer(t *testing.T, orch Orchestrator) (*Server, chatmemory.Store) {
	t.Helper()
	bus := events.NewBus(64)
	t.Cleanup(func() { bus.Close() })

	memory := chatmemory.NewFileStore(t.TempDir())
	srv := NewServer(bus, memory, orch, "localhost", 0)
	t.Cleanup(func() { srv.hub.Close() })
	return srv, memory
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer(t, &stubOrchestrator{})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("expected status %q, got %q", "ok", body["status"])
	}
}

func TestHandleOrchestrator_RequiresSessionID(t *testing.T) {
	srv, _ := newTestServer(t, &stubOrchestrator{})

	body, _ := json.Marshal(OrchestratorRequest{Message: "hi"})
	req := httptest.NewRequest(http.MethodPost, "/chat/orchestrator", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}
}

func TestHandleOrchestrator_DelegatesToOrchestrator(t *testing.T) {
	stub := &stubOrchestrator{handleResp: map[string]string{"type": "faq", "message": "answer"}}
	srv, _ := newTestServer(t, stub)

	reqBody, _ := json.Marshal(OrchestratorRequest{
		Message:   "where is the registrar?",
		SessionID: "sess_1",
		UserID:    "u1",
	})
	req := httptest.NewRequest(http.MethodPost, "/chat/orchestrator", bytes.NewReader(reqBody))
	w := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if stub.lastHandle.SessionID != "sess_1" {
		t.Fatalf("expected orchestrator to receive session_id sess_1, got %q", stub.lastHandle.SessionID)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["type"] != "faq" {
		t.Fatalf("expected type %q, got %q", "faq", body["type"])
	}
}

func TestHandleOrchestrator_Unavailable(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	reqBody, _ := json.Marshal(OrchestratorRequest{Message: "hi", SessionID: "sess_1"})
	req := httptest.NewRequest(http.MethodPost, "/chat/orchestrator", bytes.NewReader(reqBody))
	w := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", w.Code)
	}
}

func TestHandleConfirmAction_RequiresSessionID(t *testing.T) {
	srv, _ := newTestServer(t, &stubOrchestrator{})

	body, _ := json.Marshal(ConfirmActionRequest{Confirmed: true})
	req := httptest.NewRequest(http.MethodPost, "/chat/confirm-action", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}
}

func TestHandleConfirmAction_Delegates(t *testing.T) {
	stub := &stubOrchestrator{confirmResp: map[string]string{"type": "ack"}}
	srv, _ := newTestServer(t, stub)

	reqBody, _ := json.Marshal(ConfirmActionRequest{
		SessionID:  "sess_1",
		Confirmed:  true,
		ActionData: map[string]any{"action": "send_email"},
	})
	req := httptest.NewRequest(http.MethodPost, "/chat/confirm-action", bytes.NewReader(reqBody))
	w := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if !stub.lastConfirm.Confirmed {
		t.Fatal("expected orchestrator to receive confirmed=true")
	}
}

func TestHandleSessionHistory_RequiresUserID(t *testing.T) {
	srv, memory := newTestServer(t, &stubOrchestrator{})
	if err := memory.SaveMessage("alice", "sess_1", chatmemory.RoleStudent, "hi", "", "", nil); err != nil {
		t.Fatalf("SaveMessage: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/chat/session/sess_1", nil)
	w := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var body []chatmemory.Message
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body) != 0 {
		t.Fatalf("expected empty history without user_id (tenant isolation), got %d messages", len(body))
	}
}

func TestHandleSessionHistory_ScopedToUser(t *testing.T) {
	srv, memory := newTestServer(t, &stubOrchestrator{})
	if err := memory.SaveMessage("alice", "sess_1", chatmemory.RoleStudent, "alice msg", "", "", nil); err != nil {
		t.Fatalf("SaveMessage: %v", err)
	}
	if err := memory.SaveMessage("bob", "sess_1", chatmemory.RoleStudent, "bob msg", "", "", nil); err != nil {
		t.Fatalf("SaveMessage: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/chat/session/sess_1?user_id=alice", nil)
	w := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var body []chatmemory.Message
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body) != 1 || body[0].Content != "alice msg" {
		t.Fatalf("expected only alice's message, got %+v", body)
	}
}
