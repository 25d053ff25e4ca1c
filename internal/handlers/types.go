// Package handlers implements the flow handlers (C7): FAQ, ticket-status,
// and greeting are one-shot here; email and ticket are multi-step state
// machines delegated to internal/emailflow and internal/ticketflow.
// Each handler is a pure function of (message, user_id, session_id,
// student_profile, entities, flow_state); handlers never call the
// classifier. The multi-step flows write their own state to the
// flow-pause store (C1); the orchestrator and the executor also clear it.
package handlers

import (
	"context"

	"github.com/dohr-michael/advisorbot/internal/classify"
)

// Status is the handler-output status vocabulary validated by the
// orchestrator (spec §4.8's validation rules), distinct from the
// envelope "type" vocabulary the orchestrator derives from it.
type Status string

const (
	StatusSuccess           Status = "success"
	StatusError             Status = "error"
	StatusNeedsInput        Status = "needs_input"
	StatusNeedsConfirmation Status = "needs_confirmation"
	StatusNeedsEscalation   Status = "needs_escalation"
)

// StudentProfile is the student identity context passed to every
// handler, grounded on original_source/agents/agent_data_access.py's
// get_student_profile row shape.
type StudentProfile struct {
	Email      string
	FullName   string
	RollNumber string
	Department string
	Year       string
}

// Input bundles everything a handler needs for one turn.
type Input struct {
	Message       string
	UserID        string
	SessionID     string
	Profile       StudentProfile
	Entities      classify.Entities
	HistoryText   string
	HasActiveFlow bool
}

// Output is a handler's return contract. Metadata/ResolvedEntities/
// RequiredSlots are mappings; SideEffects/Citations are lists, per
// spec §4.8's validation rules on handler output.
type Output struct {
	Status           Status
	Message          string
	Agent            string
	Metadata         map[string]any
	ResolvedEntities map[string]any
	Artifacts        map[string]any
	RequiredSlots    map[string]any
	SideEffects      []string
	Citations        []string
	ConfirmationData map[string]any
}

// Valid reports whether out satisfies the orchestrator's validation
// rules (spec §4.8): a known status and a non-empty message.
func (out Output) Valid() bool {
	switch out.Status {
	case StatusSuccess, StatusError, StatusNeedsInput, StatusNeedsConfirmation, StatusNeedsEscalation:
	default:
		return false
	}
	return out.Message != ""
}

// Handler is the common contract for every flow handler.
type Handler interface {
	Handle(ctx context.Context, in Input) (Output, error)
}
