package events

import (
	"encoding/json"
	"time"
)

// EventPayload is the interface all typed payloads implement.
type EventPayload interface {
	EventType() EventType
}

// =============================================================================
// USER / ASSISTANT EVENTS
// =============================================================================

type UserMessagePayload struct {
	UserID  string `json:"user_id"`
	Content string `json:"content"`
}

func (UserMessagePayload) EventType() EventType { return EventUserMessage }

type AssistantMessagePayload struct {
	Status  string `json:"status"`
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
}

func (AssistantMessagePayload) EventType() EventType { return EventAssistantMessage }

// =============================================================================
// CLASSIFICATION EVENTS
// =============================================================================

type IntentClassifiedPayload struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	FromRegex  bool    `json:"from_regex,omitempty"`
}

func (IntentClassifiedPayload) EventType() EventType { return EventIntentClassified }

// =============================================================================
// FLOW LIFECYCLE EVENTS
// =============================================================================

type FlowPayload struct {
	FlowKey string `json:"flow_key"`
	Step    string `json:"step,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

type FlowStartedPayload struct{ FlowPayload }

func (FlowStartedPayload) EventType() EventType { return EventFlowStarted }

type FlowPausedPayload struct{ FlowPayload }

func (FlowPausedPayload) EventType() EventType { return EventFlowPaused }

type FlowResumedPayload struct{ FlowPayload }

func (FlowResumedPayload) EventType() EventType { return EventFlowResumed }

type FlowExpiredPayload struct{ FlowPayload }

func (FlowExpiredPayload) EventType() EventType { return EventFlowExpired }

type FlowClearedPayload struct{ FlowPayload }

func (FlowClearedPayload) EventType() EventType { return EventFlowCleared }

// =============================================================================
// SIDE-EFFECT EVENTS
// =============================================================================

type SideEffectPayload struct {
	Kind   string `json:"kind"` // "email" | "ticket"
	Reason string `json:"reason,omitempty"`
}

func (SideEffectPayload) EventType() EventType { return EventSideEffectExecuted }

type SideEffectBlockedPayload struct {
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}

func (SideEffectBlockedPayload) EventType() EventType { return EventSideEffectBlocked }

// =============================================================================
// GOVERNANCE / DEDUP EVENTS
// =============================================================================

type QuotaExceededPayload struct {
	Kind      string `json:"kind"` // "email" | "ticket"
	Used      int    `json:"used"`
	Max       int    `json:"max"`
	DayKey    string `json:"day_key"`
}

func (QuotaExceededPayload) EventType() EventType { return EventQuotaExceeded }

type DuplicateSuppressedPayload struct {
	Intent      string `json:"intent"`
	Fingerprint string `json:"fingerprint"`
}

func (DuplicateSuppressedPayload) EventType() EventType { return EventDuplicateSuppressed }

// =============================================================================
// INTERNAL EVENTS
// =============================================================================

type LLMCallPayload struct {
	Phase        string        `json:"phase"`
	Model        string        `json:"model"`
	Provider     string        `json:"provider,omitempty"`
	MessageCount int           `json:"message_count,omitempty"`
	TokensInput  int           `json:"tokens_input,omitempty"`
	TokensOutput int           `json:"tokens_output,omitempty"`
	Duration     time.Duration `json:"duration,omitempty"`
	Error        string        `json:"error,omitempty"`
}

func (LLMCallPayload) EventType() EventType { return EventLLMCall }

// =============================================================================
// TYPED EVENT CONSTRUCTORS
// =============================================================================

func NewTypedEvent(source EventSource, payload EventPayload) Event {
	return Event{
		ID:        generateEventID(),
		Type:      payload.EventType(),
		Timestamp: time.Now(),
		Source:    source,
		Payload:   toMap(payload),
	}
}

func NewTypedEventWithSession(source EventSource, payload EventPayload, sessionID string) Event {
	return Event{
		ID:        generateEventID(),
		SessionID: sessionID,
		Type:      payload.EventType(),
		Timestamp: time.Now(),
		Source:    source,
		Payload:   toMap(payload),
	}
}

func toMap(v any) map[string]any {
	var result map[string]any
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

// =============================================================================
// TYPED PAYLOAD EXTRACTORS
// =============================================================================

func ExtractPayload[T EventPayload](e Event) (T, bool) {
	var result T
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return result, false
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, false
	}
	return result, true
}

func GetUserMessagePayload(e Event) (UserMessagePayload, bool) {
	return ExtractPayload[UserMessagePayload](e)
}

func GetAssistantMessagePayload(e Event) (AssistantMessagePayload, bool) {
	return ExtractPayload[AssistantMessagePayload](e)
}

func GetIntentClassifiedPayload(e Event) (IntentClassifiedPayload, bool) {
	return ExtractPayload[IntentClassifiedPayload](e)
}

func GetLLMCallPayload(e Event) (LLMCallPayload, bool) {
	return ExtractPayload[LLMCallPayload](e)
}
