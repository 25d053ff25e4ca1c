package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dohr-michael/advisorbot/internal/chatmemory"
	"github.com/dohr-michael/advisorbot/internal/events"
	"github.com/dohr-michael/advisorbot/internal/gateway/ws"
)

// OrchestratorRequest mirrors the POST /chat/orchestrator body (spec §6.1).
type OrchestratorRequest struct {
	Message   string `json:"message"`
	Mode      string `json:"mode,omitempty"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id,omitempty"`
}

// ConfirmActionRequest mirrors the POST /chat/confirm-action body.
type ConfirmActionRequest struct {
	SessionID   string         `json:"session_id"`
	Confirmed   bool           `json:"confirmed"`
	ActionData  map[string]any `json:"action_data"`
	EditedDraft map[string]any `json:"edited_draft,omitempty"`
}

// Orchestrator is the contract the gateway needs from the orchestrator core
// (C8). It is declared here, not imported, so the HTTP layer depends on a
// narrow interface rather than the whole orchestrator package.
type Orchestrator interface {
	Handle(ctx context.Context, req OrchestratorRequest) (any, error)
	ConfirmAction(ctx context.Context, req ConfirmActionRequest) (any, error)
}

// Server is the advisorbot HTTP gateway.
type Server struct {
	httpServer *http.Server
	hub        *ws.Hub
	bus        *events.Bus
	memory     chatmemory.Store
	orch       Orchestrator
	host       string
	port       int
}

// NewServer creates a new gateway server.
func NewServer(bus *events.Bus, memory chatmemory.Store, orch Orchestrator, host string, port int) *Server {
	hub := ws.NewHub(bus)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	s := &Server{
		hub:    hub,
		bus:    bus,
		memory: memory,
		orch:   orch,
		host:   host,
		port:   port,
	}

	r.Get("/api/health", s.handleHealth)
	r.Get("/ops/turnlog/ws", hub.ServeWS)

	r.Post("/chat/orchestrator", s.handleOrchestrator)
	r.Post("/chat/confirm-action", s.handleConfirmAction)
	r.Get("/chat/session/{session_id}", s.handleSessionHistory)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", host, port),
		Handler: r,
	}

	return s
}

// Start begins listening. It blocks until the server is stopped.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	slog.Info("advisorbot gateway listening", "addr", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleOrchestrator(w http.ResponseWriter, r *http.Request) {
	var req OrchestratorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}
	if s.orch == nil {
		http.Error(w, "orchestrator not available", http.StatusServiceUnavailable)
		return
	}

	envelope, err := s.orch.Handle(r.Context(), req)
	if err != nil {
		slog.Error("orchestrator handle", "error", err, "session_id", req.SessionID)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(envelope)
}

func (s *Server) handleConfirmAction(w http.ResponseWriter, r *http.Request) {
	var req ConfirmActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}
	if s.orch == nil {
		http.Error(w, "orchestrator not available", http.StatusServiceUnavailable)
		return
	}

	envelope, err := s.orch.ConfirmAction(r.Context(), req)
	if err != nil {
		slog.Error("orchestrator confirm-action", "error", err, "session_id", req.SessionID)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(envelope)
}

func (s *Server) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		// No authenticated user: the tenant-isolation invariant (spec §4.2)
		// means an empty user scope returns an empty result, not every
		// tenant's rows.
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]chatmemory.Message{})
		return
	}

	history, err := s.memory.SessionHistory(userID, sessionID, 0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(history)
}
