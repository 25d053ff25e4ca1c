// Package orchestrator implements the dialogue orchestrator (C8): the
// per-turn entry point that loads flow state, classifies intent,
// routes to a flow handler, validates the handler's output, gates
// confirmed side effects through the executor, and persists the turn,
// per spec §4.8's eleven-step control flow.
package orchestrator

// EnvelopeType is the closed set of envelope shapes the HTTP layer
// renders differently (spec §4.8).
type EnvelopeType string

const (
	TypeInformation         EnvelopeType = "information"
	TypeClarificationReq    EnvelopeType = "clarification_request"
	TypeEmailPreview        EnvelopeType = "email_preview"
	TypeTicketPreview       EnvelopeType = "ticket_preview"
	TypeConfirmationRequest EnvelopeType = "confirmation_request"
)

// Metadata is the envelope's metadata block.
type Metadata struct {
	Intent         string         `json:"intent"`
	Confidence     float64        `json:"confidence"`
	ActiveFlow     string         `json:"active_flow,omitempty"`
	ExtractedSlots map[string]any `json:"extracted_slots,omitempty"`
}

// AgentOutput is the optional sub-agent diagnostic block, present
// whenever a flow handler (not the orchestrator itself) produced the
// response.
type AgentOutput struct {
	AgentName      string         `json:"agent_name"`
	DetectedIntent string         `json:"detected_intent,omitempty"`
	Confidence     float64        `json:"confidence,omitempty"`
	RequiredSlots  map[string]any `json:"required_slots,omitempty"`
	ActionType     string         `json:"action_type,omitempty"`
	PreviewOrFinal string         `json:"preview_or_final,omitempty"`
	MessageToUser  string         `json:"message_to_user,omitempty"`
	Citations      []string       `json:"citations,omitempty"`
}

// Envelope is the structured response the orchestrator returns to the
// HTTP layer (spec §4.8).
type Envelope struct {
	Type         EnvelopeType   `json:"type"`
	Agent        string         `json:"agent"`
	Content      any            `json:"content"`
	Metadata     Metadata       `json:"metadata"`
	AgentOutput  *AgentOutput   `json:"agent_output,omitempty"`
}
